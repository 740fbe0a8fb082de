package runtime

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dashrun/dash/cmn/nlog"
	"github.com/dashrun/dash/hk"
)

const (
	scratchSweepInterval = 5 * time.Minute
	scratchMaxAge        = 30 * time.Minute
)

// RegisterScratchJanitor schedules a recurring sweep of scratchDir that
// removes buffered-pipe and remote-fifo scratch files older than
// scratchMaxAge: state left behind by a program run that crashed before
// every node could claim and remove its own handles.
func RegisterScratchJanitor(hub *hk.Housekeeper, scratchDir string) {
	hub.Reg("scratch-sweep:"+scratchDir, func() time.Duration {
		sweepScratchDir(scratchDir, scratchMaxAge)
		return scratchSweepInterval
	}, scratchSweepInterval)
}

func sweepScratchDir(dir string, maxAge time.Duration) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		if err := os.Remove(path); err != nil {
			nlog.Warningf("runtime: janitor: removing stale scratch file %s: %v", path, err)
		}
	}
}
