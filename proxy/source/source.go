// Package source builds proxy descriptors from Go source, so proxies can be
// generated before the entity package is compiled into a binary. Getters
// marked as fast path are checked against their bodies here, which reflect
// cannot do.
package source

import (
	"fmt"
	"go/ast"
	"go/types"
	"reflect"
	"sort"

	"golang.org/x/tools/go/packages"

	"github.com/shrek82/jormx/model"
	"github.com/shrek82/jormx/proxy"
)

// LoadMode specifies what information to load from packages.
const LoadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedSyntax |
	packages.NeedTypes |
	packages.NeedTypesInfo |
	packages.NeedImports

// Load describes every entity type declared in the packages matching
// patterns. dir is the directory patterns are resolved from; empty means
// the current directory.
func Load(dir string, patterns ...string) ([]*proxy.Descriptor, error) {
	cfg := &packages.Config{Mode: LoadMode, Dir: dir}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load packages: %w", err)
	}

	var errs []error
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			errs = append(errs, e)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("package errors: %v", errs)
	}

	var out []*proxy.Descriptor
	for _, pkg := range pkgs {
		out = append(out, describePackage(pkg)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out, nil
}

func describePackage(pkg *packages.Package) []*proxy.Descriptor {
	var out []*proxy.Descriptor
	scope := pkg.Types.Scope()
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || !tn.Exported() || tn.IsAlias() {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok || named.TypeParams().Len() > 0 {
			continue
		}
		st, ok := named.Underlying().(*types.Struct)
		if !ok {
			continue
		}
		shape, ok := shapeOf(pkg, named, st)
		if !ok {
			continue
		}
		out = append(out, proxy.Build(shape))
	}
	return out
}

// shapeOf reads the members of an entity struct. ok is false when the
// struct has no identifier and is therefore not an entity.
func shapeOf(pkg *packages.Package, named *types.Named, st *types.Struct) (proxy.Shape, bool) {
	obj := named.Obj()
	s := proxy.Shape{
		Entity:   obj.Pkg().Path() + "." + obj.Name(),
		PkgPath:  obj.Pkg().Path(),
		TypeName: obj.Name(),
		Verified: map[string]bool{},
	}

	seen := map[string]bool{}
	collectFields(&s, st, seen)
	hasID := false
	for _, f := range s.Fields {
		hasID = hasID || f.Identifier
	}
	if !hasID {
		for i := range s.Fields {
			f := &s.Fields[i]
			if f.Name == "ID" && !f.Transient && !f.Association {
				f.Identifier, hasID = true, true
			}
		}
	}
	if !hasID {
		return s, false
	}

	mset := types.NewMethodSet(types.NewPointer(named))
	for i := 0; i < mset.Len(); i++ {
		fn, ok := mset.At(i).Obj().(*types.Func)
		if !ok || !fn.Exported() {
			continue
		}
		switch fn.Name() {
		case "PostLoad":
			s.HasPostLoad = true
		case "BeforeSerialize":
			s.HasBeforeSerialize = true
		case "AfterDeserialize":
			s.HasAfterDeserialize = true
		}
		s.Methods = append(s.Methods, methodOf(fn))
	}

	for _, f := range s.Fields {
		if f.Identifier && f.Getter != "" && returnsField(pkg, obj.Name(), f.Getter, f.Name) {
			s.Verified[f.Getter] = true
		}
	}
	return s, true
}

// collectFields flattens st the way model does: untagged embedded structs
// are inlined and outer fields shadow promoted ones.
func collectFields(s *proxy.Shape, st *types.Struct, seen map[string]bool) {
	var embedded []*types.Struct
	for i := 0; i < st.NumFields(); i++ {
		v := st.Field(i)
		tagStr := reflect.StructTag(st.Tag(i)).Get("jorm")
		if v.Embedded() && tagStr == "" {
			if inner, ok := v.Type().Underlying().(*types.Struct); ok {
				embedded = append(embedded, inner)
				continue
			}
		}
		if !v.Exported() || seen[v.Name()] {
			continue
		}
		seen[v.Name()] = true

		tag := model.ParseTag(tagStr)
		ref, err := typeRef(v.Type())
		sf := proxy.ShapeField{
			FieldRef:   proxy.FieldRef{Name: v.Name(), Type: ref, Association: tag.RelationType != ""},
			Identifier: tag.PrimaryKey && tag.RelationType == "" && !tag.Ignore,
			Transient:  tag.Ignore,
			Primitive:  isPrimitive(v.Type()),
			Getter:     tag.Getter,
			Err:        err,
		}
		s.Fields = append(s.Fields, sf)
	}
	for _, inner := range embedded {
		collectFields(s, inner, seen)
	}
}

func methodOf(fn *types.Func) proxy.ShapeMethod {
	sig := fn.Type().(*types.Signature)
	m := proxy.ShapeMethod{Method: proxy.Method{Name: fn.Name(), Variadic: sig.Variadic()}}
	for i := 0; i < sig.Params().Len(); i++ {
		ref, err := typeRef(sig.Params().At(i).Type())
		if err != nil {
			m.Err = err
			return m
		}
		m.Params = append(m.Params, ref)
	}
	for i := 0; i < sig.Results().Len(); i++ {
		ref, err := typeRef(sig.Results().At(i).Type())
		if err != nil {
			m.Err = err
			return m
		}
		m.Results = append(m.Results, ref)
	}
	return m
}

func isPrimitive(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&(types.IsInteger|types.IsString) != 0
}

func typeRef(t types.Type) (proxy.TypeRef, error) {
	switch tt := types.Unalias(t).(type) {
	case *types.Named:
		obj := tt.Obj()
		if obj.Pkg() == nil {
			return proxy.Named("", obj.Name()), nil
		}
		if !obj.Exported() {
			return proxy.TypeRef{}, fmt.Errorf("type %s is not exported", tt)
		}
		var args []proxy.TypeRef
		for i := 0; i < tt.TypeArgs().Len(); i++ {
			a, err := typeRef(tt.TypeArgs().At(i))
			if err != nil {
				return proxy.TypeRef{}, err
			}
			args = append(args, a)
		}
		return proxy.Named(obj.Pkg().Path(), obj.Name(), args...), nil
	case *types.Basic:
		return proxy.Named("", tt.Name()), nil
	case *types.Pointer:
		elem, err := typeRef(tt.Elem())
		return proxy.PointerTo(elem), err
	case *types.Slice:
		elem, err := typeRef(tt.Elem())
		return proxy.SliceOf(elem), err
	case *types.Array:
		elem, err := typeRef(tt.Elem())
		return proxy.TypeRef{Kind: proxy.TypeArray, Len: int(tt.Len()), Elem: &elem}, err
	case *types.Map:
		key, err := typeRef(tt.Key())
		if err != nil {
			return proxy.TypeRef{}, err
		}
		elem, err := typeRef(tt.Elem())
		return proxy.TypeRef{Kind: proxy.TypeMap, Key: &key, Elem: &elem}, err
	case *types.Interface:
		if tt.Empty() {
			return proxy.TypeRef{Kind: proxy.TypeAny}, nil
		}
	case *types.Signature:
		fn := proxy.TypeRef{Kind: proxy.TypeFunc, Variadic: tt.Variadic()}
		for i := 0; i < tt.Params().Len(); i++ {
			p, err := typeRef(tt.Params().At(i).Type())
			if err != nil {
				return proxy.TypeRef{}, err
			}
			fn.Params = append(fn.Params, p)
		}
		for i := 0; i < tt.Results().Len(); i++ {
			r, err := typeRef(tt.Results().At(i).Type())
			if err != nil {
				return proxy.TypeRef{}, err
			}
			fn.Results = append(fn.Results, r)
		}
		return fn, nil
	}
	return proxy.TypeRef{}, fmt.Errorf("type %s is not supported", t)
}

// returnsField reports whether the method typeName.method is declared with
// the single statement `return recv.field`.
func returnsField(pkg *packages.Package, typeName, method, field string) bool {
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Recv == nil || fd.Name.Name != method || len(fd.Recv.List) != 1 {
				continue
			}
			recv := fd.Recv.List[0]
			rt := recv.Type
			if star, ok := rt.(*ast.StarExpr); ok {
				rt = star.X
			}
			if id, ok := rt.(*ast.Ident); !ok || id.Name != typeName {
				continue
			}
			if len(recv.Names) != 1 || fd.Body == nil || len(fd.Body.List) != 1 {
				return false
			}
			ret, ok := fd.Body.List[0].(*ast.ReturnStmt)
			if !ok || len(ret.Results) != 1 {
				return false
			}
			sel, ok := ret.Results[0].(*ast.SelectorExpr)
			if !ok || sel.Sel.Name != field {
				return false
			}
			x, ok := sel.X.(*ast.Ident)
			return ok && x.Name == recv.Names[0].Name
		}
	}
	return false
}
