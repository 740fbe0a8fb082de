// Command dashd is the dash per-machine server: it accepts sub-programs
// from a dash client over the control protocol and executes them locally
// (spec.md §4.5.2).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dashrun/dash/cmn/nlog"
	"github.com/dashrun/dash/filecache"
	"github.com/dashrun/dash/hk"
	"github.com/dashrun/dash/runtime"
	"github.com/dashrun/dash/stream"
)

var (
	listenAddr string
	scratchDir string
	rootDir    string
)

func main() {
	cmd := &cobra.Command{
		Use:   "dashd",
		Short: "dash per-machine execution server",
		RunE:  run,
	}
	flags := cmd.Flags()
	flags.StringVar(&listenAddr, "listen", ":9000", "address to accept client connections on")
	flags.StringVar(&scratchDir, "scratch-dir", "/var/tmp/dashd", "directory for buffered-pipe and remote-fifo scratch files")
	flags.StringVar(&rootDir, "root", "/", "directory relative size-request paths are resolved against (sub-program file paths are used as shipped)")

	if err := cmd.Execute(); err != nil {
		nlog.Errorf("dashd: %v", err)
		os.Exit(1)
	}
}

func run(*cobra.Command, []string) error {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}

	cache := filecache.New(nil) // a server only ever stats paths local to itself
	srv := runtime.NewServer(stream.Server(listenAddr), scratchDir, rootDir, cache)

	go hk.DefaultHK.Run()
	hk.DefaultHK.WaitStarted()
	runtime.RegisterScratchJanitor(hk.DefaultHK, scratchDir)

	return srv.ListenAndServe(listenAddr)
}
