// Package netcfg answers the questions a scheduler and runtime need about
// the cluster: which server owns a path, the bandwidth between any two
// locations, and where a server's scratch directory lives.
package netcfg

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/dashrun/dash/stream"
)

type mount struct {
	prefix string
	loc    stream.Location
}

// Config is the NetworkConfig: a mount table (longest-prefix match), a
// bandwidth matrix over ordered (Location, Location) pairs, and a per-
// location scratch directory.
type Config struct {
	mounts     []mount
	bandwidth  map[pair]float64 // bytes/sec; absent = no link
	scratchDir map[string]string
	locations  []stream.Location
}

type pair struct{ from, to string }

func key(l stream.Location) string {
	if l.IsClient() {
		return "client"
	}
	return "server:" + l.Addr()
}

func New() *Config {
	return &Config{bandwidth: make(map[pair]float64), scratchDir: make(map[string]string)}
}

// AddMount records that prefix lives on loc. Longest-prefix match resolves
// file -> server; mounts are interpreted as a flat table (spec.md §6).
func (c *Config) AddMount(prefix string, loc stream.Location) {
	c.mounts = append(c.mounts, mount{prefix: prefix, loc: loc})
	sort.Slice(c.mounts, func(i, j int) bool { return len(c.mounts[i].prefix) > len(c.mounts[j].prefix) })
	c.addLocation(loc)
}

func (c *Config) addLocation(loc stream.Location) {
	for _, l := range c.locations {
		if l.Equal(loc) {
			return
		}
	}
	c.locations = append(c.locations, loc)
}

// LocationOf returns the owning location of path via longest-prefix match
// over the mount table; defaults to Client if nothing matches (a path the
// client itself can see, e.g. scratch or relative paths resolved against
// the client's working directory).
func (c *Config) LocationOf(path string) stream.Location {
	for _, m := range c.mounts {
		if strings.HasPrefix(path, m.prefix) {
			return m.loc
		}
	}
	return stream.Client
}

// SetBandwidth records the bandwidth (bytes/sec) from -> to. Missing pairs
// have no link (Bandwidth reports (0, false) for them).
func (c *Config) SetBandwidth(from, to stream.Location, bytesPerSec float64) {
	c.bandwidth[pair{key(from), key(to)}] = bytesPerSec
	c.addLocation(from)
	c.addLocation(to)
}

// Bandwidth returns the bandwidth from -> to, or (0, false) if no link exists.
func (c *Config) Bandwidth(from, to stream.Location) (float64, bool) {
	if from.Equal(to) {
		return 0, false
	}
	bw, ok := c.bandwidth[pair{key(from), key(to)}]
	return bw, ok
}

// SetScratchDir records loc's scratch directory for FIFO and buffered-pipe files.
func (c *Config) SetScratchDir(loc stream.Location, dir string) {
	c.scratchDir[key(loc)] = dir
	c.addLocation(loc)
}

// ScratchDir implements graph.ScratchPather.
func (c *Config) ScratchDir(loc stream.Location) string {
	if d, ok := c.scratchDir[key(loc)]; ok {
		return d
	}
	return "/tmp"
}

// Locations returns every location known to this config (mounts, bandwidth
// entries, or scratch dirs), in a stable order with Client first.
func (c *Config) Locations() []stream.Location {
	out := make([]stream.Location, 0, len(c.locations))
	hasClient := false
	for _, l := range c.locations {
		if l.IsClient() {
			hasClient = true
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr() < out[j].Addr() })
	if hasClient || len(out) == 0 {
		out = append([]stream.Location{stream.Client}, out...)
	}
	return out
}

// ParseMountFile parses lines of the form "mount_path:server_ip" (spec.md §6).
func ParseMountFile(r io.Reader) (*Config, error) {
	c := New()
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, ":")
		if i < 0 {
			return nil, errors.Errorf("mount file line %d: expected 'path:server_ip', got %q", lineNo, line)
		}
		c.AddMount(line[:i], stream.Server(line[i+1:]))
	}
	return c, sc.Err()
}

// ParseBandwidthFile parses lines of the form "from,to,bytes_per_sec" where
// from/to are either "client" or a server address.
func ParseBandwidthFile(r io.Reader, c *Config) error {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			return errors.Errorf("bandwidth file line %d: expected 'from,to,bytes_per_sec'", lineNo)
		}
		bw, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return errors.Wrapf(err, "bandwidth file line %d", lineNo)
		}
		c.SetBandwidth(parseLocation(parts[0]), parseLocation(parts[1]), bw)
	}
	return sc.Err()
}

func parseLocation(s string) stream.Location {
	s = strings.TrimSpace(s)
	if s == "client" {
		return stream.Client
	}
	return stream.Server(s)
}

// RewritePath rewrites an absolute path owned by this mount table so that it
// is valid relative to target's view of the same mount (a no-op in dash's
// single-mount-table model: paths are global strings the servers use
// exactly as shipped).
func (c *Config) RewritePath(path string, _ stream.Location) string { return path }
