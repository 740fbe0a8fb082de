package netcfg_test

import (
	"strings"
	"testing"

	"github.com/dashrun/dash/netcfg"
	"github.com/dashrun/dash/stream"
)

func TestParseMountFileLongestPrefix(t *testing.T) {
	cfg, err := netcfg.ParseMountFile(strings.NewReader(`
/data:10.0.0.1:9000
/data/archive:10.0.0.2:9000
`))
	if err != nil {
		t.Fatalf("ParseMountFile: %v", err)
	}
	got := cfg.LocationOf("/data/archive/2020.tar")
	want := stream.Server("10.0.0.2:9000")
	if !got.Equal(want) {
		t.Errorf("LocationOf(archive path) = %v, want %v", got, want)
	}
	got2 := cfg.LocationOf("/data/other.txt")
	want2 := stream.Server("10.0.0.1:9000")
	if !got2.Equal(want2) {
		t.Errorf("LocationOf(other path) = %v, want %v", got2, want2)
	}
}

func TestLocationOfDefaultsToClient(t *testing.T) {
	cfg := netcfg.New()
	if got := cfg.LocationOf("/nowhere"); !got.Equal(stream.Client) {
		t.Errorf("LocationOf(unmounted path) = %v, want Client", got)
	}
}

func TestParseBandwidthFile(t *testing.T) {
	cfg := netcfg.New()
	cfg.AddMount("/data", stream.Server("10.0.0.1:9000"))
	err := netcfg.ParseBandwidthFile(strings.NewReader(`
client,10.0.0.1:9000,125000000
10.0.0.1:9000,client,125000000
`), cfg)
	if err != nil {
		t.Fatalf("ParseBandwidthFile: %v", err)
	}
	bw, ok := cfg.Bandwidth(stream.Client, stream.Server("10.0.0.1:9000"))
	if !ok || bw != 125000000 {
		t.Errorf("Bandwidth(client, server) = %v, %v; want 125000000, true", bw, ok)
	}
}

func TestBandwidthMissingLinkOrSameLocation(t *testing.T) {
	cfg := netcfg.New()
	if _, ok := cfg.Bandwidth(stream.Client, stream.Server("x")); ok {
		t.Error("Bandwidth should report false for an unconfigured link")
	}
	if _, ok := cfg.Bandwidth(stream.Client, stream.Client); ok {
		t.Error("Bandwidth between identical locations should report false (no link, no cost)")
	}
}

func TestScratchDirDefaultsToTmp(t *testing.T) {
	cfg := netcfg.New()
	if got := cfg.ScratchDir(stream.Client); got != "/tmp" {
		t.Errorf("ScratchDir default = %q, want /tmp", got)
	}
	cfg.SetScratchDir(stream.Client, "/var/tmp/dashc")
	if got := cfg.ScratchDir(stream.Client); got != "/var/tmp/dashc" {
		t.Errorf("ScratchDir after SetScratchDir = %q, want /var/tmp/dashc", got)
	}
}

func TestLocationsClientFirst(t *testing.T) {
	cfg := netcfg.New()
	cfg.AddMount("/data", stream.Server("10.0.0.2:9000"))
	cfg.SetBandwidth(stream.Client, stream.Server("10.0.0.1:9000"), 1000)
	locs := cfg.Locations()
	if len(locs) == 0 || !locs[0].Equal(stream.Client) {
		t.Fatalf("Locations()[0] = %v, want Client first", locs[0])
	}
	if len(locs) != 3 {
		t.Errorf("Locations() = %v, want 3 entries (client + 2 servers)", locs)
	}
}
