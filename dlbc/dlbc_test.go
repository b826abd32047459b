package dlbc

import "testing"

func TestStringDedup(t *testing.T) {
	b := NewBuilder()
	i1 := b.AddString("hello")
	i2 := b.AddString("hello")
	if i1 != i2 {
		t.Fatalf("expected same index for repeated string, got %d and %d", i1, i2)
	}
	i3 := b.AddString("world")
	if i3 == i1 {
		t.Fatalf("expected distinct index for distinct string")
	}
}

func TestBuildAndReadRoundTrip(t *testing.T) {
	b := NewBuilder()
	nameIdx := b.AddString("main")
	fnIdx := b.BeginFunction(nameIdx, 0, 1)
	b.EmitByte(0x00) // PUSH_CONST
	constIdx := b.AddInt(7)
	b.EmitU32(constIdx)
	b.EmitByte(0x1A) // RETURN
	b.EmitByte(1)
	b.FinishFunction(fnIdx)

	data, err := b.Write()
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	file, err := Read(data)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(file.Funcs) != 1 {
		t.Fatalf("expected 1 function, got %d", len(file.Funcs))
	}
	got := file.Funcs[0]
	want := b.Funcs()[0]
	if got != want {
		t.Fatalf("function header mismatch: got %+v, want %+v", got, want)
	}
	if string(file.Code) != string(b.code.Bytes()) {
		t.Fatalf("code blob mismatch after round-trip")
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	_, err := Read([]byte("XXXX\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"))
	if err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestReadRejectsUnsupportedVersion(t *testing.T) {
	b := NewBuilder()
	data, err := b.Write()
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data[4] = 99
	_, err = Read(data)
	if err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestReadRejectsOutOfRangeCodeRegion(t *testing.T) {
	b := NewBuilder()
	nameIdx := b.AddString("f")
	b.BeginFunction(nameIdx, 0, 0)
	b.FinishFunction(0)
	// Manually corrupt by building a header claiming a codeSize larger
	// than the actual blob.
	b.funcs[0].CodeSize = 999
	data, err := b.Write()
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	_, err = Read(data)
	if err == nil {
		t.Fatal("expected error for out-of-range code region")
	}
}
