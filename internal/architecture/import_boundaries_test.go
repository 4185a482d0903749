// Package architecture_test enforces the layering rules of the codebase:
// domain at the center, adapters (db, warehouse, modelstore, agent, api)
// pointing inward, and no package reaching across the API surface.
package architecture_test

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const modulePath = "pipemedic"

type layerRule struct {
	sourcePrefix string
	forbidden    []string
	hint         string
}

var rules = []layerRule{
	{
		sourcePrefix: modulePath + "/internal/domain",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/service",
			modulePath + "/internal/db",
			modulePath + "/internal/warehouse",
			modulePath + "/internal/modelstore",
			modulePath + "/internal/agent",
			modulePath + "/internal/middleware",
			modulePath + "/cmd",
		},
		hint: "domain may only import domain",
	},
	{
		sourcePrefix: modulePath + "/internal/service",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/db",
			modulePath + "/internal/warehouse",
			modulePath + "/internal/modelstore",
			modulePath + "/internal/agent",
			modulePath + "/internal/middleware",
			modulePath + "/cmd",
		},
		hint: "service should depend on domain ports, not concrete adapters",
	},
	{
		sourcePrefix: modulePath + "/internal/api",
		forbidden: []string{
			modulePath + "/internal/db",
			modulePath + "/internal/warehouse",
			modulePath + "/internal/modelstore",
			modulePath + "/internal/agent",
			modulePath + "/cmd",
		},
		hint: "api should depend on service/domain/middleware packages",
	},
	{
		sourcePrefix: modulePath + "/internal/db",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/service",
			modulePath + "/internal/warehouse",
			modulePath + "/internal/agent",
			modulePath + "/internal/middleware",
			modulePath + "/cmd",
		},
		hint: "db should depend on domain and db-local packages",
	},
	{
		sourcePrefix: modulePath + "/internal/warehouse",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/service",
			modulePath + "/internal/db",
			modulePath + "/internal/agent",
			modulePath + "/cmd",
		},
		hint: "warehouse should depend on domain only",
	},
	{
		sourcePrefix: modulePath + "/internal/modelstore",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/service",
			modulePath + "/internal/db",
			modulePath + "/internal/agent",
			modulePath + "/cmd",
		},
		hint: "modelstore should depend on domain only",
	},
	{
		sourcePrefix: modulePath + "/internal/agent",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/db",
			modulePath + "/internal/middleware",
			modulePath + "/cmd",
		},
		hint: "agent should depend on service/domain packages",
	},
	{
		sourcePrefix: modulePath + "/internal/middleware",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/service",
			modulePath + "/internal/db",
			modulePath + "/internal/agent",
			modulePath + "/internal/warehouse",
		},
		hint: "middleware must stay transport-only",
	},
}

func TestImportBoundaries(t *testing.T) {
	// This test runs from internal/architecture; the module root is two up.
	root, err := filepath.Abs("../..")
	require.NoError(t, err)

	violations := make([]string, 0)
	fset := token.NewFileSet()

	err = filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || shouldSkipFile(path) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		sourcePkg := modulePath + "/" + filepath.ToSlash(filepath.Dir(rel))
		rule, ok := findRule(sourcePkg)
		if !ok {
			return nil
		}

		parsed, parseErr := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		require.NoErrorf(t, parseErr, "parse imports for %s", rel)

		for _, imp := range parsed.Imports {
			importPath := strings.Trim(imp.Path.Value, "\"")
			if !strings.HasPrefix(importPath, modulePath+"/") {
				continue
			}
			if violatesRule(importPath, rule.forbidden) {
				violations = append(violations,
					sourcePkg+" imports "+importPath+" via "+rel+"; allowed direction: "+rule.hint,
				)
			}
		}
		return nil
	})
	require.NoError(t, err)

	if len(violations) > 0 {
		sort.Strings(violations)
		t.Fatalf("%s", strings.Join(violations, "\n"))
	}
}

// shouldSkipFile excludes tests: test harnesses may wire concrete adapters
// (real repositories, the file model store) that production layering forbids.
func shouldSkipFile(path string) bool {
	return strings.HasSuffix(filepath.Base(path), "_test.go")
}

func findRule(sourcePkg string) (layerRule, bool) {
	for _, rule := range rules {
		if hasPathPrefix(sourcePkg, rule.sourcePrefix) {
			return rule, true
		}
	}
	return layerRule{}, false
}

func violatesRule(importPath string, forbidden []string) bool {
	for _, prefix := range forbidden {
		if hasPathPrefix(importPath, prefix) {
			return true
		}
	}
	return false
}

func hasPathPrefix(value string, prefix string) bool {
	return value == prefix || strings.HasPrefix(value, prefix+"/")
}
