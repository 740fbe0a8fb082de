// Package filecache canonicalizes relative paths against a working
// directory and caches file/directory sizes, optionally offloading remote
// stats through the client-server protocol.
package filecache

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/dashrun/dash/stream"
)

// RemoteSizer queries a remote server for the sizes of paths local to it
// (the wire SizeRequest round trip, spec.md §6); dash's client wires this
// to its runtime/server.go dispatcher without filecache importing wire,
// keeping the dependency direction one-way.
type RemoteSizer func(loc stream.Location, paths []string) (map[string]int64, error)

// Cache answers canonical-path and size queries, memoizing both.
type Cache struct {
	mu       sync.Mutex
	canon    map[string]string
	sizes    map[string]int64
	remote   RemoteSizer
}

func New(remote RemoteSizer) *Cache {
	return &Cache{
		canon:  make(map[string]string),
		sizes:  make(map[string]int64),
		remote: remote,
	}
}

// Canonicalize resolves path against wd (if relative) and memoizes the
// result; it tolerates the target not existing on disk (e.g. a Create-mode
// output file).
func (c *Cache) Canonicalize(path, wd string) string {
	key := wd + "\x00" + path
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.canon[key]; ok {
		return v
	}
	v := path
	if !filepath.IsAbs(path) {
		v = filepath.Join(wd, path)
	}
	c.canon[key] = v
	return v
}

// Size returns the size in bytes of a local file, or the total byte size of
// a directory's file tree, caching the result by canonical path.
func (c *Cache) Size(path string) (int64, error) {
	c.mu.Lock()
	if v, ok := c.sizes[path]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", path)
	}
	var total int64
	if info.IsDir() {
		err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				total += fi.Size()
			}
			return nil
		})
		if err != nil {
			return 0, errors.Wrapf(err, "walking %s", path)
		}
	} else {
		total = info.Size()
	}

	c.mu.Lock()
	c.sizes[path] = total
	c.mu.Unlock()
	return total, nil
}

// RemoteSize queries loc for the size of path via the SizeRequest RPC
// (spec.md §4.6), caching the result the same as a local Size.
func (c *Cache) RemoteSize(loc stream.Location, path string) (int64, error) {
	c.mu.Lock()
	if v, ok := c.sizes[path]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()
	if c.remote == nil {
		return 0, errors.Errorf("no remote sizer configured to query %s at %s", path, loc)
	}
	sizes, err := c.remote(loc, []string{path})
	if err != nil {
		return 0, errors.Wrapf(err, "remote size request to %s", loc)
	}
	size, ok := sizes[path]
	if !ok {
		return 0, errors.Errorf("remote size reply from %s missing %s", loc, path)
	}
	c.mu.Lock()
	c.sizes[path] = size
	c.mu.Unlock()
	return size, nil
}
