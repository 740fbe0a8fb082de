package runtime

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweepScratchDirRemovesOnlyStaleFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "stale.fifo")
	fresh := filepath.Join(dir, "fresh.fifo")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(fresh, []byte("y"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	sweepScratchDir(dir, 30*time.Minute)

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale scratch file should have been removed, stat err = %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh scratch file should survive the sweep: %v", err)
	}
}
