package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/shrek82/jormx/proxy"
	"github.com/shrek82/jormx/proxy/source"
)

func newProxyCmd(a *app) *cobra.Command {
	var (
		dir        string
		out        string
		pkg        string
		importPath string
	)
	cmd := &cobra.Command{
		Use:   "proxy [packages]",
		Short: "Write typed proxy sources for the entities of Go packages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = a.cfg.Proxy.Dir
			}
			if pkg == "" {
				pkg = a.cfg.Proxy.Package
			}
			if importPath == "" {
				importPath = a.cfg.Proxy.ImportPath
			}
			descriptors, err := source.Load(dir, args...)
			if err != nil {
				return err
			}
			var opts []proxy.GeneratorOption
			if importPath != "" {
				opts = append(opts, proxy.WithImportPath(importPath))
			}
			gen, err := proxy.NewGenerator(out, pkg, opts...)
			if err != nil {
				return err
			}
			for _, d := range descriptors {
				for _, w := range d.Warnings {
					a.log.Warn("%s: %s", d.Entity, w)
				}
				name, changed, err := gen.Generate(cmd.Context(), d)
				if err != nil {
					return err
				}
				if changed {
					a.log.Info("wrote %s", name)
				} else {
					a.log.Debug("%s unchanged", name)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d proxies in %s\n", len(descriptors), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to resolve package patterns from")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (default proxy.dir)")
	cmd.Flags().StringVarP(&pkg, "package", "p", "", "package name of the output (default proxy.package)")
	cmd.Flags().StringVar(&importPath, "import-path", "", "import path of the output package")
	cmd.AddCommand(newPullCmd(a))
	return cmd
}

// newPullCmd copies artifacts published by running services through redis
// into the proxy directory, so the next build compiles them in.
func newPullCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch proxy artifacts published to redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := a.cfg.Proxy.Redis
			if r.Addr == "" {
				return fmt.Errorf("proxy.redis.addr is not configured")
			}
			if out == "" {
				out = a.cfg.Proxy.Dir
			}
			client := redis.NewClient(&redis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB})
			defer client.Close()
			n, err := pull(cmd.Context(), proxy.NewRedisStore(client, r.Prefix), out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d artifacts changed in %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (default proxy.dir)")
	return cmd
}

func pull(ctx context.Context, from proxy.ArtifactStore, dir string) (int, error) {
	to, err := proxy.NewFileStore(dir)
	if err != nil {
		return 0, err
	}
	names, err := from.List(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, name := range names {
		content, err := from.Fetch(ctx, name)
		if err != nil {
			return changed, err
		}
		ok, err := to.Publish(ctx, name, content)
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}
