package database

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestPendingFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_indexes.sql", "001_init.sql", "999_reset_all.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "old.sql"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := PendingFiles(dir, map[string]bool{})
	if err != nil {
		t.Fatalf("PendingFiles failed: %v", err)
	}
	if want := []string{"001_init.sql", "002_indexes.sql"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	got, _ = PendingFiles(dir, map[string]bool{"001_init.sql": true})
	if want := []string{"002_indexes.sql"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRepositoryMigrationsParse(t *testing.T) {
	files, err := PendingFiles(filepath.Join("..", "..", "migrations"), nil)
	if err != nil {
		t.Fatalf("PendingFiles failed: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("Expected at least one migration in the repository")
	}
}
