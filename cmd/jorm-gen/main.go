// Command jorm-gen produces the build-time artifacts of a jormx project:
// typed proxy sources for entity packages and YAML result set mappings for
// existing tables.
package main

import (
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/shrek82/jormx/config"
	"github.com/shrek82/jormx/logger"
)

type app struct {
	configPath string
	cfg        *config.Config
	log        logger.Logger
}

func (a *app) load() error {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.Load(a.configPath); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.log = logger.New(cfg.Log)
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "jorm-gen",
		Short:         "Generate jormx proxies and result set mappings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (yaml, toml or json)")
	root.AddCommand(newProxyCmd(a), newMappingCmd(a))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "jorm-gen:", err)
		os.Exit(1)
	}
}
