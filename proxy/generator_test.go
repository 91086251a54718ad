package proxy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrek82/jormx/internal/fixtures"
	"github.com/shrek82/jormx/model"
	"github.com/shrek82/jormx/proxy"
)

const fixtureProxies = "github.com/shrek82/jormx/internal/fixtures/proxies"

func TestFileName(t *testing.T) {
	assert.Equal(t, "jormproxy_examplecomshopOrder.go", proxy.FileName("example.com/shop.Order"))
	assert.Equal(t, "jormproxy_examplecommyappOrderLine.go", proxy.FileName("example.com/my-app.Order_Line"))
}

func TestNewGeneratorConfiguration(t *testing.T) {
	_, err := proxy.NewGenerator("", "proxies")
	assert.ErrorIs(t, err, model.ErrConfiguration)
	_, err = proxy.NewGenerator(t.TempDir(), " ")
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestDescribeAuthor(t *testing.T) {
	d := proxy.Describe(authorModel(t))
	assert.Same(t, d, proxy.Describe(authorModel(t)))
	assert.Equal(t, "AuthorProxy", d.ProxyName())

	names := func(refs []proxy.FieldRef) []string {
		out := make([]string, len(refs))
		for i, r := range refs {
			out[i] = r.Name
		}
		return out
	}
	assert.Equal(t, []string{"ID"}, names(d.Identifiers))
	assert.Equal(t, []string{"Name", "Books", "Profile"}, names(d.Lazy))
	assert.Equal(t, []string{"Nick", "Loads"}, names(d.Transient))

	methods := map[string]proxy.Method{}
	for _, m := range d.Methods {
		methods[m.Name] = m
	}
	assert.Equal(t, "ID", methods["GetID"].FastField)
	assert.Contains(t, methods, "Greeting")
	assert.Contains(t, methods, "Rename")
	assert.NotContains(t, methods, "PostLoad", "hooks are not delegated")
	assert.True(t, d.HasPostLoad)
	assert.Empty(t, d.Warnings)
}

type Gadget struct {
	Code  string `jorm:"pk getter:Key"`
	Label string
	Ch    chan int
}

func (g *Gadget) Key(prefix string) string { return prefix + g.Code }
func (g *Gadget) Target() string          { return g.Label }
func (g *Gadget) SetLabel(string)         {}

func TestDescribeRejectsUnsafeMembers(t *testing.T) {
	m, err := model.GetModel(&Gadget{})
	require.NoError(t, err)
	d := proxy.Describe(m)

	for _, meth := range d.Methods {
		assert.Empty(t, meth.FastField, meth.Name)
		assert.NotEqual(t, "Target", meth.Name)
		assert.NotEqual(t, "SetLabel", meth.Name)
	}
	assert.Len(t, d.Warnings, 4)
}

func TestRenderAuthor(t *testing.T) {
	g, err := proxy.NewGenerator(t.TempDir(), "proxies", proxy.WithImportPath(fixtureProxies))
	require.NoError(t, err)

	src, err := g.Render(proxy.Describe(authorModel(t)))
	require.NoError(t, err)
	code := string(src)

	for _, want := range []string{
		"// Code generated by jorm-gen. DO NOT EDIT.",
		"package proxies",
		"type AuthorProxy struct",
		"proxy.Lazy",
		"proxy.Register((*fixtures.Author)(nil)",
		"func (p *AuthorProxy) ID() int64",
		"func (p *AuthorProxy) Name() (v string, err error)",
		"func (p *AuthorProxy) SetName(v string) error",
		"func (p *AuthorProxy) Books() (v *collection.Collection[*fixtures.Book], err error)",
		"func (p *AuthorProxy) SetNick(v string)",
		"if !p.IsInitialized() {",
		"return p.entity.GetID()",
		"func (p *AuthorProxy) Greeting(a0 string) string",
		"p.MustLoad()",
		"func (p *AuthorProxy) Rename(a0 string) (err error)",
		"func (p *AuthorProxy) Clone() (*AuthorProxy, error)",
		"return proxy.Sleep(p)",
		"return proxy.WakeInto(p, data)",
	} {
		assert.Contains(t, code, want)
	}
	assert.NotContains(t, code, "PostLoad")
}

func TestGenerateSkipsUnchangedOutput(t *testing.T) {
	dir := t.TempDir()
	g, err := proxy.NewGenerator(dir, "proxies")
	require.NoError(t, err)
	d := proxy.Describe(authorModel(t))
	ctx := context.Background()

	name, changed, err := g.Generate(ctx, d)
	require.NoError(t, err)
	assert.True(t, changed)
	path := filepath.Join(dir, name)
	first, err := os.Stat(path)
	require.NoError(t, err)

	_, changed, err = g.Generate(ctx, d)
	require.NoError(t, err)
	assert.False(t, changed)
	second, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime())

	store, err := proxy.NewFileStore(dir)
	require.NoError(t, err)
	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, names)
}

func TestGenerateIntoUncreatableDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	g, err := proxy.NewGenerator(filepath.Join(file, "proxies"), "proxies")
	require.NoError(t, err)
	_, _, err = g.Generate(context.Background(), proxy.Describe(authorModel(t)))
	assert.ErrorIs(t, err, model.ErrProxyGeneration)
}

func TestRenderUsesFixtureTypes(t *testing.T) {
	m, err := model.GetModel(&fixtures.Shelf{})
	require.NoError(t, err)
	g, err := proxy.NewGenerator(t.TempDir(), "proxies")
	require.NoError(t, err)

	src, err := g.Render(proxy.Describe(m))
	require.NoError(t, err)
	assert.Contains(t, string(src), "func (p *ShelfProxy) CreatedBy() (v string, err error)")
	assert.Contains(t, string(src), "func (p *ShelfProxy) Books() (v []*fixtures.Book, err error)")
}
