// Package natives implements the intrinsic functions every VM instance
// must provide out of the box (§6.3): print, println, input, str, int,
// float, len, exit.
package natives

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"droplet/vm"
)

// Register installs every intrinsic into v.Natives, keyed by its source
// name (the same name the type checker seeds in §4.4 phase 1). stdout and
// stdin default to os.Stdout/os.Stdin when nil.
func Register(v *vm.VM, stdout io.Writer, stdin io.Reader) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	reader := bufio.NewReader(stdin)

	v.Natives["print"] = func(v *vm.VM, argc int) error {
		fmt.Fprint(stdout, joinArgs(popArgs(v, argc)))
		v.Push(vm.Nil())
		return nil
	}
	v.Natives["println"] = func(v *vm.VM, argc int) error {
		fmt.Fprintln(stdout, joinArgs(popArgs(v, argc)))
		v.Push(vm.Nil())
		return nil
	}
	v.Natives["input"] = func(v *vm.VM, argc int) error {
		args := popArgs(v, argc)
		if len(args) > 0 {
			fmt.Fprint(stdout, args[0].String())
		}
		line, _ := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		v.Push(vm.ObjectVal(v.NewString(line)))
		return nil
	}
	v.Natives["str"] = func(v *vm.VM, argc int) error {
		args := popArgs(v, argc)
		s := ""
		if len(args) > 0 {
			s = args[0].String()
		}
		v.Push(vm.ObjectVal(v.NewString(s)))
		return nil
	}
	v.Natives["int"] = func(v *vm.VM, argc int) error {
		args := popArgs(v, argc)
		var n int64
		if len(args) > 0 {
			n = toInt(args[0])
		}
		v.Push(vm.IntVal(n))
		return nil
	}
	v.Natives["float"] = func(v *vm.VM, argc int) error {
		args := popArgs(v, argc)
		var f float64
		if len(args) > 0 {
			f = toFloat(args[0])
		}
		v.Push(vm.DoubleVal(f))
		return nil
	}
	v.Natives["len"] = func(v *vm.VM, argc int) error {
		args := popArgs(v, argc)
		n := 0
		if len(args) > 0 {
			n = length(args[0])
		}
		v.Push(vm.IntVal(int64(n)))
		return nil
	}
	v.Natives["exit"] = func(v *vm.VM, argc int) error {
		args := popArgs(v, argc)
		code := 0
		if len(args) > 0 {
			code = int(toInt(args[0]))
		}
		os.Exit(code)
		return nil // unreachable
	}
}

func popArgs(v *vm.VM, argc int) []vm.Value {
	args := make([]vm.Value, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = v.Pop()
	}
	return args
}

func joinArgs(args []vm.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, "")
}

// toInt implements the lenient-parse contract: non-numeric input or a
// parse failure yields 0, never an error.
func toInt(v vm.Value) int64 {
	switch v.Tag {
	case vm.TagInt64:
		return v.I
	case vm.TagDouble:
		return int64(v.F)
	case vm.TagBool:
		if v.B {
			return 1
		}
		return 0
	case vm.TagObject:
		if n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64); err == nil {
			return n
		}
		return 0
	default:
		return 0
	}
}

func toFloat(v vm.Value) float64 {
	switch v.Tag {
	case vm.TagInt64:
		return float64(v.I)
	case vm.TagDouble:
		return v.F
	case vm.TagObject:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err == nil {
			return f
		}
		return 0
	default:
		return 0
	}
}

func length(v vm.Value) int {
	if v.Tag != vm.TagObject {
		return 0
	}
	switch v.Obj.Kind {
	case vm.ObjString:
		return len(v.Obj.Str)
	case vm.ObjArray:
		return len(v.Obj.Elements)
	case vm.ObjMap:
		return len(v.Obj.MapKeys)
	default:
		return 0
	}
}
