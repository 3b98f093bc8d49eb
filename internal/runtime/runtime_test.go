package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejectsMissingModel(t *testing.T) {
	_, err := New(Config{ModelPath: filepath.Join(t.TempDir(), "missing.gguf")}, nil)
	if err == nil {
		t.Fatal("expected error for missing model file")
	}
	if !strings.Contains(err.Error(), "download script") {
		t.Errorf("error should point at the download script: %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	model := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(model, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	rt, err := New(Config{ModelPath: model}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rt.cfg.Binary != "llama-server" {
		t.Errorf("binary = %q", rt.cfg.Binary)
	}
	if rt.cfg.CtxSize != 4096 || rt.cfg.BatchSize != 512 || rt.cfg.GPULayers != -1 {
		t.Errorf("load params = %d/%d/%d", rt.cfg.CtxSize, rt.cfg.BatchSize, rt.cfg.GPULayers)
	}
	if rt.BaseURL() != "http://127.0.0.1:8808" {
		t.Errorf("base url = %q", rt.BaseURL())
	}
}

func TestStopWithoutStart(t *testing.T) {
	model := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(model, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	rt, err := New(Config{ModelPath: model}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rt.Stop(); err != nil {
		t.Errorf("Stop before Start should be a no-op: %v", err)
	}
}
