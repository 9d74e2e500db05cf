package shellprofile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureBlock_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".bashrc")
	if err := os.WriteFile(path, []byte("alias ll='ls -l'"), 0o600); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	changed, err := EnsureBlock(path, "devbox local-bin", `export PATH="$HOME/.local/bin:$PATH"`)
	if err != nil {
		t.Fatalf("EnsureBlock failed: %v", err)
	}
	if !changed {
		t.Error("Expected first call to change the file")
	}

	changed, err = EnsureBlock(path, "devbox local-bin", `export PATH="$HOME/.local/bin:$PATH"`)
	if err != nil {
		t.Fatalf("EnsureBlock failed: %v", err)
	}
	if changed {
		t.Error("Expected second call to be a no-op")
	}

	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "# >>> devbox local-bin >>>"); n != 1 {
		t.Errorf("Expected exactly one block, found %d:\n%s", n, data)
	}
	if !strings.HasPrefix(string(data), "alias ll='ls -l'\n") {
		t.Errorf("Expected existing content preserved, got:\n%s", data)
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected file mode preserved, got %v", info.Mode().Perm())
	}
}

func TestEnsureBlock_ReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".profile")

	if _, err := EnsureBlock(path, "m", "old"); err != nil {
		t.Fatalf("EnsureBlock failed: %v", err)
	}
	if err := appendLine(path, "after"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := EnsureBlock(path, "m", "new"); err != nil {
		t.Fatalf("EnsureBlock failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	want := "# >>> m >>>\nnew\n# <<< m <<<\nafter\n"
	if string(data) != want {
		t.Errorf("got:\n%q\nwant:\n%q", data, want)
	}
}

func TestRemoveBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".zshrc")
	if _, err := EnsureBlock(path, "m", "x"); err != nil {
		t.Fatalf("EnsureBlock failed: %v", err)
	}

	has, err := HasBlock(path, "m")
	if err != nil || !has {
		t.Fatalf("Expected block present, has=%v err=%v", has, err)
	}

	removed, err := RemoveBlock(path, "m")
	if err != nil || !removed {
		t.Fatalf("Expected block removed, removed=%v err=%v", removed, err)
	}
	if has, _ := HasBlock(path, "m"); has {
		t.Error("Expected block gone after removal")
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}
