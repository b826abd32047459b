package main

import (
	"fmt"
	"os"

	"droplet/ast"
	"droplet/check"
	"droplet/codegen"
	"droplet/dconfig"
	"droplet/lexer"
	"droplet/loader"
	"droplet/modloader"
	"droplet/parser"

	"github.com/urfave/cli/v2"
	"github.com/ztrue/tracerr"
)

// loadConfig reads the --config flag (default "droplet.yaml") into a
// dconfig.Config. A missing file is not an error (§ dconfig): every
// field's zero value is already the right fallback.
func loadConfig(c *cli.Context) dconfig.Config {
	path := c.String("config")
	if path == "" {
		path = "droplet.yaml"
	}
	cfg, err := dconfig.Load(path)
	if err != nil {
		fail(err)
	}
	return cfg
}

// parseFile reads and parses one .drop source file.
func parseFile(path string) (*ast.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading '%s': %w", path, err)
	}
	p := parser.NewParser(string(src))
	return p.ParseProgram()
}

// compileSource parses, type-checks, and generates bytecode for one .drop
// file, wiring ldr so imports resolve the same way for the checker and
// the code generator.
func compileSource(path string, ldr *modloader.Loader) (*ast.Program, *check.Result, *codegen.Generator, error) {
	prog, err := parseFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	result, err := check.NewChecker(ldr).Check(prog)
	if err != nil {
		return nil, nil, nil, err
	}
	g, err := codegen.Generate(ldr, prog, result, path)
	if err != nil {
		return nil, nil, nil, err
	}
	return prog, result, g, nil
}

// fail prints err and exits. Source-level errors (lex/parse/type/format)
// already carry a precise, user-facing message (§7): they're printed as
// plain text. Anything else is assumed to be a CLI-plumbing failure and
// gets a full source-annotated stack trace via tracerr, the same split
// the ambient stack decision (SPEC_FULL §1) describes.
func fail(err error) {
	switch err.(type) {
	case *lexer.LexError, *parser.ParseError, *check.TypeError, *loader.FormatError:
		fmt.Fprintln(os.Stderr, err.Error())
	default:
		tracerr.PrintSourceColor(tracerr.Wrap(err))
	}
	os.Exit(1)
}
