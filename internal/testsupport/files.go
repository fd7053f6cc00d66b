package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes contents to path, creating parent directories.
func WriteFile(t testing.TB, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// SampleCatalog is a small catalog used by matcher and worker tests.
const SampleCatalog = `
[[ingredient]]
id = "tomato-roma"
name = "roma tomato"
aliases = ["plum tomato", "roma tomatoes"]

[[ingredient]]
id = "onion-yellow"
name = "yellow onion"
aliases = ["brown onion"]

[[ingredient]]
id = "milk-whole"
name = "whole milk"
`
