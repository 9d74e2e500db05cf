// Package shellprofile edits shell startup files through marker-delimited blocks,
// so repeated runs replace their own block instead of appending duplicates.
package shellprofile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// beginMarker and endMarker delimit a managed block.
func beginMarker(marker string) string { return "# >>> " + marker + " >>>" }
func endMarker(marker string) string   { return "# <<< " + marker + " <<<" }

// EnsureBlock makes path contain exactly one block named marker holding
// content. It reports whether the file changed. A missing file is created.
func EnsureBlock(path, marker, content string) (bool, error) {
	if marker == "" {
		return false, fmt.Errorf("marker is required")
	}

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	block := beginMarker(marker) + "\n" + strings.TrimRight(content, "\n") + "\n" + endMarker(marker) + "\n"
	updated := replaceBlock(string(existing), marker, block)
	if updated == string(existing) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(updated), mode); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

// HasBlock reports whether path contains a block named marker.
func HasBlock(path, marker string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return bytes.Contains(data, []byte(beginMarker(marker))), nil
}

// RemoveBlock deletes the block named marker, if present.
func RemoveBlock(path, marker string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	updated := replaceBlock(string(data), marker, "")
	if updated == string(data) {
		return false, nil
	}
	return true, os.WriteFile(path, []byte(updated), 0o644)
}

func replaceBlock(text, marker, block string) string {
	begin, end := beginMarker(marker), endMarker(marker)

	start := strings.Index(text, begin)
	if start < 0 {
		if block == "" {
			return text
		}
		if text != "" && !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		return text + block
	}

	stop := strings.Index(text[start:], end)
	if stop < 0 {
		// unterminated block: replace through end of file
		return text[:start] + block
	}
	stop += start + len(end)
	if stop < len(text) && text[stop] == '\n' {
		stop++
	}
	return text[:start] + block + text[stop:]
}
