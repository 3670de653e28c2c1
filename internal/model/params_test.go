package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLayout(t *testing.T) {
	specs := Layout()

	want := map[string][]int{
		"conv.0.weight":       {64, 12, 3, 3},
		"conv.0.bias":         {64},
		"conv.1.weight":       {64},
		"conv.1.running_var":  {64},
		"conv.3.weight":       {128, 64, 3, 3},
		"conv.4.running_mean": {128},
		"conv.6.weight":       {256, 128, 3, 3},
		"conv.7.bias":         {256},
		"fc_common.0.weight":  {256, 256},
		"head_from.weight":    {256, 64},
		"head_from.bias":      {64},
		"head_to.weight":      {256, 64},
		"head_to.bias":        {64},
	}

	got := make(map[string][]int, len(specs))
	for _, spec := range specs {
		if _, dup := got[spec.Name]; dup {
			t.Errorf("duplicate parameter %q", spec.Name)
		}
		got[spec.Name] = spec.Shape
	}

	for name, shape := range want {
		s, ok := got[name]
		if !ok {
			t.Errorf("missing parameter %q", name)
			continue
		}
		if len(s) != len(shape) {
			t.Errorf("%s shape = %v, want %v", name, s, shape)
			continue
		}
		for i := range s {
			if s[i] != shape[i] {
				t.Errorf("%s shape = %v, want %v", name, s, shape)
				break
			}
		}
	}

	// 3 stages x 6 tensors + 3 linear layers x 2 tensors
	if len(specs) != 24 {
		t.Errorf("Expected 24 tensors, got %d", len(specs))
	}
}

func TestNewParamSetInit(t *testing.T) {
	ps := NewParamSet(1)

	for _, v := range ps.Data("conv.1.weight") {
		if v != 1 {
			t.Fatalf("batch-norm scale initialized to %f, want 1", v)
		}
	}
	for _, v := range ps.Data("conv.1.bias") {
		if v != 0 {
			t.Fatalf("batch-norm shift initialized to %f, want 0", v)
		}
	}
	for _, v := range ps.Data("conv.4.running_var") {
		if v != 1 {
			t.Fatalf("running variance initialized to %f, want 1", v)
		}
	}

	bound := 1 / 16.0 // 1/sqrt(256)
	nonZero := false
	for _, v := range ps.Data("head_from.weight") {
		if v < -bound || v > bound {
			t.Fatalf("head weight %f outside [-%f, %f]", v, bound, bound)
		}
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Error("head weights are all zero")
	}

	other := NewParamSet(1)
	a, b := ps.Data("conv.0.weight"), other.Data("conv.0.weight")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same seed produced different parameters")
		}
	}
}

func TestLearnableExcludesRunningStats(t *testing.T) {
	ps := NewParamSet(1)
	for _, name := range ps.Learnable() {
		for _, spec := range ps.specs {
			if spec.Name == name && spec.Kind == KindRunningStat {
				t.Errorf("%s is a running statistic but listed as learnable", name)
			}
		}
	}
	if n := len(ps.Learnable()); n != 18 {
		t.Errorf("Expected 18 learnable tensors, got %d", n)
	}
}

func TestSaveLoadParamSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models", "chess_cnn.gob")

	ps := NewParamSet(7)
	ps.Data("conv.1.running_mean")[3] = 0.25

	if err := ps.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadParamSet(path)
	if err != nil {
		t.Fatalf("LoadParamSet failed: %v", err)
	}

	for _, spec := range ps.specs {
		a, b := ps.Data(spec.Name), loaded.Data(spec.Name)
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("%s[%d] = %f after load, want %f", spec.Name, i, b[i], a[i])
			}
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the artifact in the directory, found %d entries", len(entries))
	}
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")

	if err := NewParamSet(1).Save(path); err != nil {
		t.Fatal(err)
	}
	second := NewParamSet(2)
	if err := second.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadParamSet(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Data("fc_common.0.bias")[0] != second.Data("fc_common.0.bias")[0] {
		t.Error("artifact was not replaced by the second save")
	}
}

func TestLoadParamSetMissing(t *testing.T) {
	_, err := LoadParamSet(filepath.Join(t.TempDir(), "absent.gob"))
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("error = %v, want ErrModelNotFound", err)
	}
}

func TestLoadParamSetCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gob")
	if err := os.WriteFile(path, []byte("not a model"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadParamSet(path); err == nil {
		t.Error("expected error for corrupt artifact")
	}
}

// cloneParams returns a deep copy for before/after comparisons.
func cloneParams(ps *ParamSet) *ParamSet {
	out := newEmptyParamSet()
	for name := range ps.tensors {
		copy(out.Data(name), ps.Data(name))
	}
	return out
}
