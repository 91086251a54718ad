package proxy

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dave/jennifer/jen"

	"github.com/shrek82/jormx/model"
)

const (
	filePrefix = "jormproxy_"
	selfPath   = "github.com/shrek82/jormx/proxy"
)

// FileName returns the artifact name of the proxy of entity, a qualified
// type name.
func FileName(entity string) string {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '/', '.', '-', '_':
			return -1
		}
		return r
	}, entity)
	return filePrefix + stripped + ".go"
}

// Generator renders proxy sources and publishes them to an ArtifactStore.
type Generator struct {
	dir        string
	pkg        string
	importPath string

	mu    sync.Mutex
	store ArtifactStore
}

type GeneratorOption func(*Generator)

// WithImportPath sets the import path of the generated package, so entity
// types declared in that same package are referenced unqualified.
func WithImportPath(path string) GeneratorOption {
	return func(g *Generator) { g.importPath = path }
}

// WithArtifactStore publishes to store instead of files under dir.
func WithArtifactStore(store ArtifactStore) GeneratorOption {
	return func(g *Generator) { g.store = store }
}

func NewGenerator(dir, pkg string, opts ...GeneratorOption) (*Generator, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: proxy directory is empty", model.ErrConfiguration)
	}
	if strings.TrimSpace(pkg) == "" {
		return nil, fmt.Errorf("%w: proxy package is empty", model.ErrConfiguration)
	}
	g := &Generator{dir: dir, pkg: pkg}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Generator) Dir() string { return g.dir }

func (g *Generator) Package() string { return g.pkg }

func (g *Generator) artifactStore() (ArtifactStore, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.store == nil {
		fs, err := NewFileStore(g.dir)
		if err != nil {
			return nil, err
		}
		g.store = fs
	}
	return g.store, nil
}

// Generate renders the proxy of d and publishes it. changed is false when
// the stored artifact already had this content.
func (g *Generator) Generate(ctx context.Context, d *Descriptor) (name string, changed bool, err error) {
	src, err := g.Render(d)
	if err != nil {
		return "", false, err
	}
	store, err := g.artifactStore()
	if err != nil {
		return "", false, err
	}
	name = FileName(d.Entity)
	changed, err = store.Publish(ctx, name, src)
	return name, changed, err
}

// Render returns the formatted source of the proxy of d.
func (g *Generator) Render(d *Descriptor) ([]byte, error) {
	var f *jen.File
	if g.importPath != "" {
		f = jen.NewFilePathName(g.importPath, g.pkg)
	} else {
		f = jen.NewFile(g.pkg)
	}
	f.HeaderComment("Code generated by jorm-gen. DO NOT EDIT.")
	f.ImportName(selfPath, "proxy")

	r := &renderer{d: d, name: d.ProxyName(), entity: jen.Qual(d.PkgPath, d.TypeName)}
	r.header(f)
	for _, fr := range d.Identifiers {
		r.identifier(f, fr)
	}
	for _, fr := range d.Lazy {
		r.lazy(f, fr)
	}
	for _, fr := range d.Transient {
		r.transient(f, fr)
	}
	for _, m := range d.Methods {
		r.method(f, m)
	}
	r.clone(f)
	r.serialization(f)

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("%w: render %s: %v", model.ErrProxyGeneration, d.Entity, err)
	}
	return buf.Bytes(), nil
}

type renderer struct {
	d      *Descriptor
	name   string
	entity *jen.Statement
}

func (r *renderer) recv() *jen.Statement {
	return jen.Id("p").Op("*").Id(r.name)
}

func (r *renderer) entityPtr() *jen.Statement {
	return jen.Op("*").Add(r.entity.Clone())
}

func (r *renderer) field(name string) *jen.Statement {
	return jen.Id("p").Dot("entity").Dot(name)
}

// loadOrReturn is `if err = p.EnsureLoaded(); err != nil { return }` for
// methods with named results.
func loadOrReturn() *jen.Statement {
	return jen.If(
		jen.Err().Op("=").Id("p").Dot("EnsureLoaded").Call(),
		jen.Err().Op("!=").Nil(),
	).Block(jen.Return())
}

func (r *renderer) header(f *jen.File) {
	f.Commentf("%s is a lazy reference to %s.", r.name, r.d.TypeName)
	f.Type().Id(r.name).Struct(
		jen.Qual(selfPath, "Lazy"),
		jen.Id("entity").Add(r.entityPtr()),
	)

	f.Func().Id("init").Params().Block(
		jen.Qual(selfPath, "Register").Call(
			jen.Parens(r.entityPtr()).Call(jen.Nil()),
			jen.Func().Params(jen.Id("target").Any()).Qual(selfPath, "Proxy").Block(
				jen.Return(jen.Op("&").Id(r.name).Values(jen.Dict{
					jen.Id("entity"): jen.Id("target").Assert(r.entityPtr()),
				})),
			),
		),
	)

	f.Func().Params(r.recv()).Id("Target").Params().Any().Block(
		jen.Return(jen.Id("p").Dot("entity")),
	)
	f.Func().Params(r.recv()).Id("State").Params().Op("*").Qual(selfPath, "Lazy").Block(
		jen.Return(jen.Op("&").Id("p").Dot("Lazy")),
	)
	f.Comment("Entity loads the entity and returns it.")
	f.Func().Params(r.recv()).Id("Entity").Params().Params(r.entityPtr(), jen.Error()).Block(
		jen.If(jen.Err().Op(":=").Id("p").Dot("EnsureLoaded").Call(), jen.Err().Op("!=").Nil()).Block(
			jen.Return(jen.Nil(), jen.Err()),
		),
		jen.Return(jen.Id("p").Dot("entity"), jen.Nil()),
	)
}

func (r *renderer) identifier(f *jen.File, fr FieldRef) {
	f.Func().Params(r.recv()).Id(fr.Name).Params().Add(typeCode(fr.Type)).Block(
		jen.Return(r.field(fr.Name)),
	)
}

func (r *renderer) lazy(f *jen.File, fr FieldRef) {
	f.Func().Params(r.recv()).Id(fr.Name).Params().Params(
		jen.Id("v").Add(typeCode(fr.Type)), jen.Err().Error(),
	).Block(
		loadOrReturn(),
		jen.Return(r.field(fr.Name), jen.Nil()),
	)
	f.Func().Params(r.recv()).Id("Set"+fr.Name).Params(jen.Id("v").Add(typeCode(fr.Type))).Error().Block(
		jen.If(jen.Err().Op(":=").Id("p").Dot("EnsureLoaded").Call(), jen.Err().Op("!=").Nil()).Block(
			jen.Return(jen.Err()),
		),
		r.field(fr.Name).Op("=").Id("v"),
		jen.Return(jen.Nil()),
	)
}

func (r *renderer) transient(f *jen.File, fr FieldRef) {
	f.Func().Params(r.recv()).Id(fr.Name).Params().Add(typeCode(fr.Type)).Block(
		jen.Return(r.field(fr.Name)),
	)
	f.Func().Params(r.recv()).Id("Set" + fr.Name).Params(jen.Id("v").Add(typeCode(fr.Type))).Block(
		r.field(fr.Name).Op("=").Id("v"),
	)
}

func (r *renderer) method(f *jen.File, m Method) {
	params := make([]jen.Code, len(m.Params))
	args := make([]jen.Code, len(m.Params))
	for i, t := range m.Params {
		id := fmt.Sprintf("a%d", i)
		if m.Variadic && i == len(m.Params)-1 {
			params[i] = jen.Id(id).Op("...").Add(typeCode(*t.Elem))
			args[i] = jen.Id(id).Op("...")
			continue
		}
		params[i] = jen.Id(id).Add(typeCode(t))
		args[i] = jen.Id(id)
	}
	call := jen.Id("p").Dot("entity").Dot(m.Name).Call(args...)
	decl := f.Func().Params(r.recv()).Id(m.Name).Params(params...)

	if m.FastField != "" {
		decl.Add(typeCode(m.Results[0])).Block(
			jen.If(jen.Op("!").Id("p").Dot("IsInitialized").Call()).Block(
				jen.Return(r.field(m.FastField)),
			),
			jen.Return(call),
		)
		return
	}

	n := len(m.Results)
	if n > 0 && m.Results[n-1].IsError() {
		results := make([]jen.Code, n)
		for i, t := range m.Results[:n-1] {
			results[i] = jen.Id(fmt.Sprintf("r%d", i)).Add(typeCode(t))
		}
		results[n-1] = jen.Err().Error()
		decl.Params(results...).Block(loadOrReturn(), jen.Return(call))
		return
	}

	load := jen.Id("p").Dot("MustLoad").Call()
	switch n {
	case 0:
		decl.Block(load, call)
	case 1:
		decl.Add(typeCode(m.Results[0])).Block(load, jen.Return(call))
	default:
		results := make([]jen.Code, n)
		for i, t := range m.Results {
			results[i] = typeCode(t)
		}
		decl.Params(results...).Block(load, jen.Return(call))
	}
}

func (r *renderer) clone(f *jen.File) {
	f.Comment("Clone copies the proxy. An uninitialized original stays uninitialized;")
	f.Comment("the clone is loaded on its own.")
	f.Func().Params(r.recv()).Id("Clone").Params().Params(jen.Op("*").Id(r.name), jen.Error()).Block(
		jen.Id("c").Op(":=").Op("&").Id(r.name).Values(jen.Dict{
			jen.Id("entity"): jen.New(r.entity.Clone()),
		}),
		jen.Op("*").Id("c").Dot("entity").Op("=").Op("*").Id("p").Dot("entity"),
		jen.If(
			jen.Err().Op(":=").Id("p").Dot("CloneTo").Call(jen.Op("&").Id("c").Dot("Lazy"), jen.Id("c").Dot("entity")),
			jen.Err().Op("!=").Nil(),
		).Block(jen.Return(jen.Nil(), jen.Err())),
		jen.Return(jen.Id("c"), jen.Nil()),
	)
}

func (r *renderer) serialization(f *jen.File) {
	f.Func().Params(r.recv()).Id("MarshalJSON").Params().Params(jen.Index().Byte(), jen.Error()).Block(
		jen.Return(jen.Qual(selfPath, "Sleep").Call(jen.Id("p"))),
	)
	f.Func().Params(r.recv()).Id("UnmarshalJSON").Params(jen.Id("data").Index().Byte()).Error().Block(
		jen.If(jen.Id("p").Dot("entity").Op("==").Nil()).Block(
			jen.Id("p").Dot("entity").Op("=").New(r.entity.Clone()),
		),
		jen.Return(jen.Qual(selfPath, "WakeInto").Call(jen.Id("p"), jen.Id("data"))),
	)
}

func typeCode(t TypeRef) *jen.Statement {
	switch t.Kind {
	case TypeNamed:
		var s *jen.Statement
		if t.Path == "" {
			s = jen.Id(t.Name)
		} else {
			s = jen.Qual(t.Path, t.Name)
		}
		if len(t.Args) > 0 {
			args := make([]jen.Code, len(t.Args))
			for i, a := range t.Args {
				args[i] = typeCode(a)
			}
			s = s.Types(args...)
		}
		return s
	case TypePointer:
		return jen.Op("*").Add(typeCode(*t.Elem))
	case TypeSlice:
		return jen.Index().Add(typeCode(*t.Elem))
	case TypeArray:
		return jen.Index(jen.Lit(t.Len)).Add(typeCode(*t.Elem))
	case TypeMap:
		return jen.Map(typeCode(*t.Key)).Add(typeCode(*t.Elem))
	case TypeFunc:
		params := make([]jen.Code, len(t.Params))
		for i, p := range t.Params {
			if t.Variadic && i == len(t.Params)-1 {
				params[i] = jen.Op("...").Add(typeCode(*p.Elem))
				continue
			}
			params[i] = typeCode(p)
		}
		results := make([]jen.Code, len(t.Results))
		for i, r := range t.Results {
			results[i] = typeCode(r)
		}
		return jen.Func().Params(params...).Params(results...)
	}
	return jen.Any()
}
