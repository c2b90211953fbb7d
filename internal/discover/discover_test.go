package discover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroware/basconv/internal/ir"
)

func TestDiscoverBasic(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "Module1.bas"), []byte("Attribute VB_Name = \"Module1\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Form1.frm"), []byte("VERSION 5.00\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Non-source neighbors must be skipped.
	if err := os.WriteFile(filepath.Join(dir, "Form1.frx"), []byte{0x00, 0x01}, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Project1.vbp"), []byte("Type=Exe\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	files, err := Discover(ctx, dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}

	// Sorted order: Form1.frm before Module1.bas.
	if files[0].Kind != ir.ModuleForm {
		t.Errorf("expected form kind first, got %q", files[0].Kind)
	}
	if files[1].Kind != ir.ModuleStandard {
		t.Errorf("expected standard kind second, got %q", files[1].Kind)
	}
	for _, f := range files {
		if f.Path == "" {
			t.Error("expected non-empty Path")
		}
		if f.RelPath == "" {
			t.Error("expected non-empty RelPath")
		}
	}
}

func TestDiscoverSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Class1.cls")
	if err := os.WriteFile(path, []byte("VERSION 1.0 CLASS\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	files, err := Discover(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].Kind != ir.ModuleClass {
		t.Errorf("expected class kind, got %q", files[0].Kind)
	}
}

func TestDiscoverIgnoreDirs(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "bin")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "Module1.bas"), []byte("x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected bin/ to be skipped, got %d files", len(files))
	}
}

func TestDiscoverCancellation(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "Module1.bas"), []byte("x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // pre-cancel

	_, err := Discover(ctx, dir, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
