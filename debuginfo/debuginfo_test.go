package debuginfo

import (
	"testing"

	"droplet/vm"
)

func sample() map[string]*vm.DebugInfo {
	return map[string]*vm.DebugInfo{
		"add": {
			Locations: map[int]vm.SourceLocation{
				0: {File: "add.drop", Line: 2, Column: 3},
				4: {File: "add.drop", Line: 3, Column: 5},
			},
			Locals: map[string]int{"a": 0, "b": 1},
		},
	}
}

func TestEncodeDecodeRoundTrips(t *testing.T) {
	data, err := Encode(sample())
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	fn, ok := got["add"]
	if !ok {
		t.Fatalf("expected an 'add' entry, got %v", got)
	}
	if fn.Locals["b"] != 1 {
		t.Fatalf("expected local 'b' at slot 1, got %d", fn.Locals["b"])
	}
	loc, ok := fn.Locations[4]
	if !ok || loc.Line != 3 || loc.Column != 5 {
		t.Fatalf("expected location at ip 4 to be line 3 col 5, got %+v (ok=%v)", loc, ok)
	}
}

func TestWriteReadRoundTripsThroughDisk(t *testing.T) {
	path := t.TempDir() + "/program.ddbg"
	if err := Write(path, sample()); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 function entry, got %d", len(got))
	}
}
