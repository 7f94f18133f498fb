package hook

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// writeHook creates dir/<name>/hook.json and an executable shell script.
func writeHook(t *testing.T, dir string, m Manifest, script string) string {
	t.Helper()

	hookDir := filepath.Join(dir, m.Name)
	if err := os.MkdirAll(hookDir, 0o755); err != nil {
		t.Fatalf("failed to create hook dir: %v", err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hookDir, ManifestFile), data, 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	if script != "" {
		if err := os.WriteFile(filepath.Join(hookDir, m.Executable), []byte(script), 0o755); err != nil {
			t.Fatalf("failed to write script: %v", err)
		}
	}
	return hookDir
}
