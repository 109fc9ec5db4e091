// Package tsimport extracts the set of module specifiers a TypeScript or
// JavaScript source file references — static imports, re-exports (each
// flagged when type-only), and string-literal dynamic imports — by
// building a compiler program from the root's tsconfig.json and walking
// that file's real TypeScript AST.
//
// The program-construction and AST-walk shapes are grounded on the
// teacher's own type-walker test harness and marker-call extractor; see
// DESIGN.md.
package tsimport

import (
	"fmt"

	"github.com/microsoft/typescript-go/shim/ast"
	"github.com/microsoft/typescript-go/shim/bundled"
	shimcompiler "github.com/microsoft/typescript-go/shim/compiler"
	"github.com/microsoft/typescript-go/shim/core"
	"github.com/microsoft/typescript-go/shim/tsoptions"
	"github.com/microsoft/typescript-go/shim/tspath"
	"github.com/microsoft/typescript-go/shim/vfs"
	"github.com/microsoft/typescript-go/shim/vfs/cachedvfs"
	"github.com/microsoft/typescript-go/shim/vfs/osvfs"
)

// Specifier is one module reference extracted from a source file.
type Specifier struct {
	Text     string // the raw specifier text, e.g. "./widget" or "react"
	Dynamic  bool   // true for a string-literal import() call
	TypeOnly bool   // true for an import/export whose entire clause is type-only
}

// DefaultFS returns the filesystem used to parse real (on-disk) source
// files: the OS filesystem wrapped with the bundled TypeScript lib files
// and a directory-entry cache, matching the host runner's own
// on-disk-project configuration.
func DefaultFS() vfs.FS {
	return cachedvfs.From(bundled.WrapFS(osvfs.FS()))
}

// Extract builds a compiler program from rootDir's tsconfig.json (read
// through fsys), looks path up in it, and returns every
// import/export/dynamic-import specifier referenced by that file. A
// missing file, a tsconfig diagnostic, or path not being part of the
// program is returned as an error; callers that want a soft skip (per §4.4 step 1, "on read error,
// skip this file") should treat any error as such.
func Extract(fsys vfs.FS, rootDir string, path string) ([]Specifier, error) {
	if !fsys.FileExists(path) {
		return nil, fmt.Errorf("tsimport: %s does not exist", path)
	}

	host := shimcompiler.NewCompilerHost(rootDir, fsys, bundled.LibPath(), nil, nil)

	configParseResult, diags := tsoptions.GetParsedCommandLineOfConfigFile(
		"tsconfig.json", &core.CompilerOptions{AllowJs: core.TSTrue}, nil, host, nil,
	)
	if len(diags) > 0 {
		return nil, fmt.Errorf("tsimport: tsconfig parse error: %s", diags[0].String())
	}

	program := shimcompiler.NewProgram(shimcompiler.ProgramOptions{
		Config:                      configParseResult,
		SingleThreaded:              core.TSTrue,
		Host:                        host,
		UseSourceOfProjectReference: true,
	})
	if program == nil {
		return nil, fmt.Errorf("tsimport: failed to create program for %s", path)
	}
	program.BindSourceFiles()

	relPath := tspath.ConvertToRelativePath(path, rootDir, true)
	sourceFile := program.GetSourceFile(path)
	if sourceFile == nil {
		sourceFile = program.GetSourceFile(relPath)
	}
	if sourceFile == nil {
		return nil, fmt.Errorf("tsimport: source file %s not found in program", path)
	}

	var specs []Specifier
	for _, stmt := range sourceFile.Statements.Nodes {
		switch stmt.Kind {
		case ast.KindImportDeclaration:
			if s, ok := fromImportDeclaration(stmt); ok {
				specs = append(specs, s)
			}
		case ast.KindExportDeclaration:
			if s, ok := fromExportDeclaration(stmt); ok {
				specs = append(specs, s)
			}
		}
	}

	walkDynamicImports(sourceFile.AsNode(), &specs)

	return specs, nil
}

func fromImportDeclaration(stmt *ast.Node) (Specifier, bool) {
	decl := stmt.AsImportDeclaration()
	if decl.ModuleSpecifier == nil || decl.ModuleSpecifier.Kind != ast.KindStringLiteral {
		return Specifier{}, false
	}
	return Specifier{
		Text:     decl.ModuleSpecifier.AsStringLiteral().Text,
		TypeOnly: isImportTypeOnly(decl),
	}, true
}

// isImportTypeOnly reports whether every binding an import declaration
// introduces is type-only: either the whole clause is marked "import
// type", or it has named bindings and every one of them is individually
// type-only.
func isImportTypeOnly(decl *ast.ImportDeclaration) bool {
	if decl.ImportClause == nil {
		return false
	}
	clause := decl.ImportClause.AsImportClause()
	if clause.IsTypeOnly {
		return true
	}
	if clause.NamedBindings == nil || clause.NamedBindings.Kind != ast.KindNamedImports {
		return false
	}
	named := clause.NamedBindings.AsNamedImports()
	if named.Elements == nil || len(named.Elements.Nodes) == 0 {
		return false
	}
	for _, elem := range named.Elements.Nodes {
		if !elem.AsImportSpecifier().IsTypeOnly {
			return false
		}
	}
	return true
}

func fromExportDeclaration(stmt *ast.Node) (Specifier, bool) {
	decl := stmt.AsExportDeclaration()
	if decl.ModuleSpecifier == nil || decl.ModuleSpecifier.Kind != ast.KindStringLiteral {
		return Specifier{}, false
	}
	return Specifier{
		Text:     decl.ModuleSpecifier.AsStringLiteral().Text,
		TypeOnly: decl.IsTypeOnly,
	}, true
}

// walkDynamicImports recursively visits node looking for import() call
// expressions whose first argument is a plain string literal (single- or
// double-quoted, or a backtick template with no substitutions). Calls
// whose argument is a computed expression are not string specifiers and
// are skipped per §4.4 step 2(b).
func walkDynamicImports(node *ast.Node, specs *[]Specifier) {
	if node == nil {
		return
	}

	if node.Kind == ast.KindCallExpression {
		call := node.AsCallExpression()
		if call.Expression != nil && call.Expression.Kind == ast.KindImportKeyword &&
			call.Arguments != nil && len(call.Arguments.Nodes) >= 1 {
			if text, ok := staticStringArgument(call.Arguments.Nodes[0]); ok {
				*specs = append(*specs, Specifier{Text: text, Dynamic: true})
			}
		}
	}

	node.ForEachChild(func(child *ast.Node) bool {
		walkDynamicImports(child, specs)
		return false
	})
}

// staticStringArgument returns the literal text of a string or
// no-substitution template literal node, or false if the node is any
// other kind of expression (a template with interpolation, a variable,
// a concatenation, etc).
func staticStringArgument(arg *ast.Node) (string, bool) {
	switch arg.Kind {
	case ast.KindStringLiteral:
		return arg.AsStringLiteral().Text, true
	case ast.KindNoSubstitutionTemplateLiteral:
		return arg.AsNoSubstitutionTemplateLiteral().Text, true
	default:
		return "", false
	}
}
