// Package modloader resolves dotted import paths to .drop source files,
// parses them, and memoizes the result so recursive import graphs
// terminate (§4.3).
package modloader

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"droplet/ast"
	"droplet/parser"
)

// ModuleInfo is the loader's record for one resolved module.
type ModuleInfo struct {
	ModulePath string
	FilePath   string
	AST        *ast.Program
	DBCPath    string // set by the caller once the module has been compiled, empty until then

	ExportedFunctions map[string]*ast.FunctionDecl
	ExportedClasses   map[string]*ast.ClassDecl

	// Fingerprint is a blake2b-256 digest of the source file's contents.
	// It is recorded here only; no cache or staleness check reads it.
	Fingerprint string

	// TypeCheckerCache holds an opaque value the type checker stashes here
	// after first checking this module (§4.4 phase 2's "recursively
	// type-check it if not cached"). The type checker package owns the
	// concrete type; modloader only stores and returns it.
	TypeCheckerCache interface{}
}

// Loader resolves and memoizes modules.
type Loader struct {
	searchRoots []string

	mu      sync.Mutex
	modules map[string]*ModuleInfo
}

// defaultSearchRoots matches §4.3: the current directory and a
// project-local .dp_modules folder.
func defaultSearchRoots() []string {
	return []string{".", ".dp_modules"}
}

// NewLoader creates a Loader over the given search roots. A nil or empty
// roots slice falls back to the defaults.
func NewLoader(roots []string) *Loader {
	if len(roots) == 0 {
		roots = defaultSearchRoots()
	}
	return &Loader{searchRoots: roots, modules: make(map[string]*ModuleInfo)}
}

// modulePathToRelPath maps a.b.c to a/b/c.drop.
func modulePathToRelPath(modulePath string) string {
	parts := strings.Split(modulePath, ".")
	return filepath.Join(parts...) + ".drop"
}

// resolve scans the search roots in order and returns the first matching
// regular file.
func (l *Loader) resolve(modulePath string) (string, error) {
	rel := modulePathToRelPath(modulePath)
	for _, root := range l.searchRoots {
		candidate := filepath.Join(root, rel)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("module '%s' not found under any search root (looked for %s)", modulePath, rel)
}

// Load resolves, parses, and memoizes modulePath. A module already loaded
// is returned from the cache without touching the filesystem again.
func (l *Loader) Load(modulePath string) (*ModuleInfo, error) {
	l.mu.Lock()
	if mi, ok := l.modules[modulePath]; ok {
		l.mu.Unlock()
		return mi, nil
	}
	l.mu.Unlock()

	filePath, err := l.resolve(modulePath)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading module '%s': %w", modulePath, err)
	}

	p := parser.NewParser(string(src))
	prog, err := p.ParseProgram()
	if err != nil {
		// Partial state is never cached (§4.3): return directly without
		// storing anything in l.modules.
		return nil, fmt.Errorf("parsing module '%s' (%s): %w", modulePath, filePath, err)
	}

	mi := &ModuleInfo{
		ModulePath:         modulePath,
		FilePath:           filePath,
		AST:                prog,
		ExportedFunctions:  make(map[string]*ast.FunctionDecl),
		ExportedClasses:    make(map[string]*ast.ClassDecl),
		Fingerprint:        fingerprint(src),
	}
	extractExports(prog, mi)

	l.mu.Lock()
	l.modules[modulePath] = mi
	l.mu.Unlock()
	return mi, nil
}

// extractExports populates a ModuleInfo's exported-symbol maps. Droplet has
// no explicit export keyword: every top-level function and class declared
// in a module is exportable; named imports filter the set at the import
// site (§4.4 phase 2).
func extractExports(prog *ast.Program, mi *ModuleInfo) {
	for _, fn := range prog.Funcs {
		mi.ExportedFunctions[fn.Name] = fn
	}
	for _, cls := range prog.Classes {
		mi.ExportedClasses[cls.Name] = cls
	}
}

// fingerprint returns the hex-encoded blake2b-256 digest of src, stored on
// ModuleInfo.Fingerprint (SPEC_FULL.md's domain-stack wiring of a content
// hash).
func fingerprint(src []byte) string {
	sum := blake2b.Sum256(src)
	return hex.EncodeToString(sum[:])
}

// Cached returns the already-loaded ModuleInfo for modulePath, if any,
// without touching the filesystem.
func (l *Loader) Cached(modulePath string) (*ModuleInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mi, ok := l.modules[modulePath]
	return mi, ok
}
