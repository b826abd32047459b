// Command droplet compiles and runs Droplet programs: build emits a
// .dlbc artifact (plus a .ddbg sidecar), run compiles-or-loads and
// executes, check only type-checks, and dump-ast/dump-bytecode print
// compiler-internal structures for debugging. Subcommand dispatch uses
// github.com/urfave/cli/v2, the same library pontaoski-tawago's compiler
// CLI drives its build/init/typeinfo verbs with.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"droplet/check"
	"droplet/debuginfo"
	"droplet/ffi"
	"droplet/loader"
	"droplet/modloader"
	"droplet/natives"
	"droplet/trace"
	"droplet/vm"

	"github.com/alecthomas/repr"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "droplet",
		Usage: "the Droplet compiler and virtual machine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to droplet.yaml", Value: "droplet.yaml"},
		},
		Commands: []*cli.Command{
			checkCommand(),
			buildCommand(),
			runCommand(),
			dumpASTCommand(),
			dumpBytecodeCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fail(err)
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "type-check a .drop file without generating bytecode",
		ArgsUsage: "<file.drop>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("check: a source file is required", 1)
			}
			cfg := loadConfig(c)
			ldr := modloader.NewLoader(cfg.ModuleSearchRoots)
			prog, err := parseFile(path)
			if err != nil {
				fail(err)
			}
			if _, err := check.NewChecker(ldr).Check(prog); err != nil {
				fail(err)
			}
			fmt.Println("OK")
			return nil
		},
	}
}

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "compile a .drop file to a .dlbc artifact",
		ArgsUsage: "<file.drop>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output .dlbc path"},
			&cli.BoolFlag{Name: "no-debug", Usage: "omit the .ddbg sidecar"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("build: a source file is required", 1)
			}
			cfg := loadConfig(c)
			ldr := modloader.NewLoader(cfg.ModuleSearchRoots)

			_, _, g, err := compileSource(path, ldr)
			if err != nil {
				fail(err)
			}

			data, err := g.Builder().Write()
			if err != nil {
				fail(err)
			}

			out := c.String("output")
			if out == "" {
				out = withExt(path, ".dlbc")
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				fail(err)
			}
			fmt.Printf("wrote %s (%d bytes)\n", out, len(data))

			if !c.Bool("no-debug") {
				ddbgPath := withExt(out, ".ddbg")
				if err := debuginfo.Write(ddbgPath, g.DebugInfo()); err != nil {
					fail(err)
				}
				fmt.Printf("wrote %s\n", ddbgPath)
			}
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "compile (if needed) and execute a Droplet program",
		ArgsUsage: "<file.drop|file.dlbc> [args...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "entry", Usage: "function to invoke after static init", Value: "main"},
			&cli.BoolFlag{Name: "trace", Usage: "log every function call/return/native dispatch to stderr"},
			&cli.StringSliceFlag{Name: "trace-filter", Usage: "glob pattern(s) limiting --trace output to matching function names"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("run: a file is required", 1)
			}
			cfg := loadConfig(c)

			if c.Bool("trace") {
				trace.Init(true, c.StringSlice("trace-filter"), os.Stderr)
			}

			var (
				v           *vm.VM
				staticInits []string
			)

			registerNatives := func(vv *vm.VM) { natives.Register(vv, os.Stdout, os.Stdin) }
			dispatcher := ffi.NewDispatcher(cfg.FFISearchRoots)
			defer dispatcher.Close()

			if strings.HasSuffix(path, ".dlbc") {
				var err error
				v, err = loader.Load(path, registerNatives, dispatcher)
				if err != nil {
					fail(err)
				}
				if ddbg := withExt(path, ".ddbg"); fileExists(ddbg) {
					info, err := debuginfo.Read(ddbg)
					if err != nil {
						fail(err)
					}
					loader.AttachDebugInfo(v, info)
				}
			} else {
				ldr := modloader.NewLoader(cfg.ModuleSearchRoots)
				_, _, g, err := compileSource(path, ldr)
				if err != nil {
					fail(err)
				}
				staticInits = g.StaticInitOrder()
				data, err := g.Builder().Write()
				if err != nil {
					fail(err)
				}
				v, err = loader.LoadBytesWithThreshold(data, registerNatives, dispatcher, cfg.GCInitialThreshold)
				if err != nil {
					fail(err)
				}
				loader.AttachDebugInfo(v, g.DebugInfo())
			}

			v.MaxSteps = cfg.MaxSteps
			v.MaxStackDepth = cfg.MaxStackDepth
			trace.Attach(v)

			if err := loader.RunStaticInits(v, staticInits); err != nil {
				fail(err)
			}

			entry := c.String("entry")
			args := parseRunArgs(c.Args().Tail())
			result, err := v.CallByName(entry, args)
			if err != nil {
				fail(err)
			}
			fmt.Println(result.String())
			return nil
		},
	}
}

func dumpASTCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump-ast",
		Usage:     "parse a .drop file and print its AST",
		ArgsUsage: "<file.drop>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("dump-ast: a source file is required", 1)
			}
			prog, err := parseFile(path)
			if err != nil {
				fail(err)
			}
			repr.Println(prog)
			return nil
		},
	}
}

func dumpBytecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump-bytecode",
		Usage:     "compile a .drop file and print its constant pool and function table",
		ArgsUsage: "<file.drop>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("dump-bytecode: a source file is required", 1)
			}
			cfg := loadConfig(c)
			ldr := modloader.NewLoader(cfg.ModuleSearchRoots)
			_, _, g, err := compileSource(path, ldr)
			if err != nil {
				fail(err)
			}
			repr.Println(g.Builder().Consts())
			repr.Println(g.Builder().Funcs())
			return nil
		},
	}
}

func withExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// parseRunArgs turns each trailing CLI argument into a vm.Value: integers
// and floats parse as such, "true"/"false" as bool, everything else as a
// plain string constant (not GC-tracked, same rationale as ffi's string
// returns: these values live only as long as the one CallByName call).
func parseRunArgs(raw []string) []vm.Value {
	var out []vm.Value
	for _, s := range raw {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			out = append(out, vm.IntVal(i))
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			out = append(out, vm.DoubleVal(f))
			continue
		}
		if b, err := strconv.ParseBool(s); err == nil {
			out = append(out, vm.BoolVal(b))
			continue
		}
		out = append(out, vm.ObjectVal(vm.NewStringObject(s)))
	}
	return out
}
