package internalcheck

import (
	"fmt"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"sort"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

const (
	modulePath = "github.com/thesyncim/aom"
	nativePath = modulePath + "/internal/native"
)

var forbiddenImports = map[string]bool{
	"C":                            true,
	"unsafe":                       true,
	"github.com/ebitengine/purego": true,
}

var nativeImporters = map[string]bool{
	modulePath:                 true,
	nativePath + "/nativetest": true,
}

// loadModule loads every package with cgo disabled so the checks run
// without libaom headers. Files excluded by that build are in IgnoredFiles.
func loadModule(t *testing.T, mode packages.LoadMode, tests bool, pattern string) []*packages.Package {
	t.Helper()
	cfg := &packages.Config{
		Mode:  mode,
		Tests: tests,
		Env:   append(os.Environ(), "CGO_ENABLED=0"),
	}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		t.Fatalf("packages contain errors")
	}
	return pkgs
}

func TestOnlyNativeUsesUnsafe(t *testing.T) {
	pkgs := loadModule(t, packages.NeedName|packages.NeedFiles, true, modulePath+"/...")

	fset := token.NewFileSet()
	seen := make(map[string]bool)
	var findings []string
	for _, pkg := range pkgs {
		if pkg.PkgPath == nativePath {
			continue
		}
		for _, name := range append(pkg.GoFiles, pkg.IgnoredFiles...) {
			if seen[name] || !strings.HasSuffix(name, ".go") {
				continue
			}
			seen[name] = true
			file, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
			if err != nil {
				t.Fatalf("parse %s: %v", name, err)
			}
			for _, imp := range file.Imports {
				path, err := strconv.Unquote(imp.Path.Value)
				if err != nil || !forbiddenImports[path] {
					continue
				}
				pos := fset.Position(imp.Pos())
				findings = append(findings, fmt.Sprintf("%s: %s imports %q", pos, pkg.PkgPath, path))
			}
		}
	}

	if len(findings) > 0 {
		sort.Strings(findings)
		t.Fatalf("native boundary violation:\n%s", strings.Join(findings, "\n"))
	}
}

func TestNativeImporters(t *testing.T) {
	pkgs := loadModule(t, packages.NeedName|packages.NeedImports, true, modulePath+"/...")

	var findings []string
	for _, pkg := range pkgs {
		// go list synthesizes a .test main package for every package with tests.
		if pkg.PkgPath == nativePath || nativeImporters[pkg.PkgPath] || strings.HasSuffix(pkg.PkgPath, ".test") {
			continue
		}
		if _, ok := pkg.Imports[nativePath]; ok {
			findings = append(findings, pkg.PkgPath)
		}
	}

	if len(findings) > 0 {
		sort.Strings(findings)
		t.Fatalf("only the wrapper may import %s:\n%s", nativePath, strings.Join(findings, "\n"))
	}
}

func TestPublicAPIHidesNativeTypes(t *testing.T) {
	pkgs := loadModule(t, packages.NeedName|packages.NeedTypes, false, modulePath)

	var findings []string
	check := func(where string, typ types.Type) {
		if s := types.TypeString(typ, nil); strings.Contains(s, nativePath) {
			findings = append(findings, fmt.Sprintf("%s: %s", where, s))
		}
	}

	for _, pkg := range pkgs {
		scope := pkg.Types.Scope()
		for _, name := range scope.Names() {
			obj := scope.Lookup(name)
			if !obj.Exported() {
				continue
			}
			if _, isType := obj.(*types.TypeName); !isType {
				check(name, obj.Type())
				continue
			}

			if st, ok := obj.Type().Underlying().(*types.Struct); ok {
				for i := 0; i < st.NumFields(); i++ {
					if f := st.Field(i); f.Exported() {
						check(name+"."+f.Name(), f.Type())
					}
				}
			}
			mset := types.NewMethodSet(types.NewPointer(obj.Type()))
			for i := 0; i < mset.Len(); i++ {
				if m := mset.At(i).Obj(); m.Exported() {
					check(name+"."+m.Name(), m.Type())
				}
			}
		}
	}

	if len(findings) > 0 {
		t.Fatalf("public API exposes native types:\n%s", strings.Join(findings, "\n"))
	}
}
