package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.yaml")
	content := []byte("id: TASK-001\n")

	if err := AtomicWriteFile(path, content, 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", data, content)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("permissions mismatch: got %o, want %o", info.Mode().Perm(), 0644)
	}
}

func TestAtomicWriteFile_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projects", "PROJ-001", "project.yaml")

	if err := AtomicWriteFile(path, []byte("name: demo\n"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "name: demo\n" {
		t.Errorf("content mismatch: got %q", data)
	}
}

func TestAtomicWriteFile_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.yaml")

	if err := AtomicWriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "updated" {
		t.Errorf("content mismatch: got %q, want %q", data, "updated")
	}
}

func TestAtomicWriteFile_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.yaml")

	if err := AtomicWriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "doc.yaml" {
			t.Errorf("unexpected leftover file: %s", e.Name())
		}
	}
}
