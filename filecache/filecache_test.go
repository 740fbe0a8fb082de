package filecache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dashrun/dash/filecache"
	"github.com/dashrun/dash/stream"
)

func TestCanonicalize(t *testing.T) {
	c := filecache.New(nil)
	if got := c.Canonicalize("rel.txt", "/home/user"); got != "/home/user/rel.txt" {
		t.Errorf("Canonicalize(relative) = %q, want /home/user/rel.txt", got)
	}
	if got := c.Canonicalize("/abs.txt", "/home/user"); got != "/abs.txt" {
		t.Errorf("Canonicalize(absolute) = %q, want /abs.txt", got)
	}
}

func TestSizeFileAndDir(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(f1, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	f2 := filepath.Join(sub, "b.txt")
	if err := os.WriteFile(f2, []byte("worldly"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := filecache.New(nil)
	sz, err := c.Size(f1)
	if err != nil {
		t.Fatalf("Size(file): %v", err)
	}
	if sz != 5 {
		t.Errorf("Size(a.txt) = %d, want 5", sz)
	}

	total, err := c.Size(dir)
	if err != nil {
		t.Fatalf("Size(dir): %v", err)
	}
	if total != 5+7 {
		t.Errorf("Size(dir) = %d, want %d", total, 5+7)
	}
}

func TestSizeMissingFile(t *testing.T) {
	c := filecache.New(nil)
	if _, err := c.Size("/does/not/exist"); err == nil {
		t.Error("Size should error on a missing path")
	}
}

func TestRemoteSize(t *testing.T) {
	var queried []string
	remote := func(loc stream.Location, paths []string) (map[string]int64, error) {
		queried = paths
		out := make(map[string]int64, len(paths))
		for _, p := range paths {
			out[p] = 42
		}
		return out, nil
	}
	c := filecache.New(remote)
	sz, err := c.RemoteSize(stream.Server("10.0.0.1:9000"), "/data/f.txt")
	if err != nil {
		t.Fatalf("RemoteSize: %v", err)
	}
	if sz != 42 {
		t.Errorf("RemoteSize = %d, want 42", sz)
	}
	if len(queried) != 1 || queried[0] != "/data/f.txt" {
		t.Errorf("remote sizer was queried with %v", queried)
	}

	// A second call for the same path should be served from cache, not
	// round-trip through remote again.
	queried = nil
	if _, err := c.RemoteSize(stream.Server("10.0.0.1:9000"), "/data/f.txt"); err != nil {
		t.Fatalf("RemoteSize (cached): %v", err)
	}
	if queried != nil {
		t.Error("second RemoteSize call for the same path should be served from cache")
	}
}

func TestRemoteSizeNoSizerConfigured(t *testing.T) {
	c := filecache.New(nil)
	if _, err := c.RemoteSize(stream.Server("x"), "/data/f.txt"); err == nil {
		t.Error("RemoteSize should error when no RemoteSizer is configured")
	}
}
