package modelpkg

import "testing"

func TestInputKind_Valid(t *testing.T) {
	for _, k := range []InputKind{InputText, InputStructured, InputRaw} {
		if !k.Valid() {
			t.Errorf("expected %q to be valid", k)
		}
	}
	if InputKind("bogus").Valid() {
		t.Fatal("expected bogus kind to be invalid")
	}
}

func baseDescriptor() *ModelDescriptor {
	return &ModelDescriptor{
		ID:          "m",
		InputKind:   InputRaw,
		InputDim:    4,
		Labels:      []string{"a", "b"},
		TraceLength: 16,
	}
}

func TestValidate_OK(t *testing.T) {
	d := baseDescriptor()
	if err := d.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsZeroDim(t *testing.T) {
	d := baseDescriptor()
	d.InputDim = 0
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for zero input_dim")
	}
}

func TestValidate_RejectsEmptyLabels(t *testing.T) {
	d := baseDescriptor()
	d.Labels = nil
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for empty labels")
	}
}

func TestValidate_RejectsNonPowerOfTwoTraceLength(t *testing.T) {
	d := baseDescriptor()
	d.TraceLength = 100
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for non-power-of-two trace_length")
	}
}

func TestValidate_RejectsBadFieldRange(t *testing.T) {
	d := baseDescriptor()
	d.InputKind = InputStructured
	d.FieldSchemas = []FieldSchema{{Name: "age", Min: 10, Max: 5}}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for field max < min")
	}
}

func TestLabel_FallsBackToClassIndex(t *testing.T) {
	d := baseDescriptor()
	if got := d.Label(0); got != "a" {
		t.Fatalf("Label(0) = %q, want %q", got, "a")
	}
	if got := d.Label(5); got != "class_5" {
		t.Fatalf("Label(5) = %q, want class_5", got)
	}
}
