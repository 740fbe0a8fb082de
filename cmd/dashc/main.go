// Command dashc is the dash client: it loads a program skeleton (spec.md
// §1's "tokenizer and annotation grammar parser are out of scope; we
// consume their output"), an annotation database, and the cluster's
// network configuration, then schedules and runs the program across the
// configured servers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dashrun/dash/annot"
	"github.com/dashrun/dash/cmn/cos"
	"github.com/dashrun/dash/cmn/nlog"
	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/hk"
	"github.com/dashrun/dash/netcfg"
	"github.com/dashrun/dash/runtime"
	"github.com/dashrun/dash/sched"
	"github.com/dashrun/dash/stream"
	"github.com/dashrun/dash/wire"
)

var (
	programPath   string
	annotPath     string
	mountPath     string
	bandwidthPath string
	scratchDir    string
	selfAddr      string
	useHeuristic  bool
	pwdFlag       string
)

func main() {
	cmd := &cobra.Command{
		Use:   "dashc",
		Short: "schedule and run a dash program skeleton across the cluster",
		RunE:  run,
	}
	flags := cmd.Flags()
	flags.StringVar(&programPath, "program", "", "path to the program skeleton (JSON, ProgramDTO shape)")
	flags.StringVar(&annotPath, "annotations", "", "path to the annotation grammar file (spec.md §6)")
	flags.StringVar(&mountPath, "mounts", "", "path to the mount file (path:server_ip per line)")
	flags.StringVar(&bandwidthPath, "bandwidth", "", "path to the bandwidth file (from,to,bytes_per_sec per line)")
	flags.StringVar(&scratchDir, "scratch-dir", "/var/tmp/dashc", "local scratch directory for client-side buffered pipes")
	flags.StringVar(&selfAddr, "self-addr", "", "host other machines should dial to reach this client (used only when the client is a stream's receiving side, which stream setup never makes it)")
	flags.BoolVar(&useHeuristic, "heuristic", false, "use the path-weight heuristic scheduler instead of the DP scheduler")
	flags.StringVar(&pwdFlag, "pwd", "", "working directory scheduling treats as the client's current directory (defaults to the process cwd)")
	for _, name := range []string{"program", "annotations", "mounts"} {
		_ = cmd.MarkFlagRequired(name)
	}

	if err := cmd.Execute(); err != nil {
		nlog.Errorf("dashc: %v", err)
		os.Exit(1)
	}
}

func run(*cobra.Command, []string) error {
	pwd := pwdFlag
	if pwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		pwd = wd
	}
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}

	db, err := loadAnnotations(annotPath)
	if err != nil {
		return err
	}
	cfg, err := loadNetConfig(mountPath, bandwidthPath)
	if err != nil {
		return err
	}
	prog, matches, err := loadProgram(programPath, db)
	if err != nil {
		return err
	}

	var scheduler sched.Scheduler = sched.DPScheduler{}
	if useHeuristic {
		scheduler = sched.HeuristicScheduler{}
	}

	cl := runtime.NewClient(cfg, scheduler, scratchDir, selfAddr)

	go hk.DefaultHK.Run()
	hk.DefaultHK.WaitStarted()
	runtime.RegisterScratchJanitor(hk.DefaultHK, scratchDir)

	if err := cl.Run(prog, matches, pwd); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

func loadAnnotations(path string) (*annot.DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening annotation file: %w", err)
	}
	defer f.Close()
	db, err := annot.ParseDB(f)
	if err != nil {
		return nil, fmt.Errorf("parsing annotation file: %w", err)
	}
	return db, nil
}

func loadNetConfig(mountPath, bandwidthPath string) (*netcfg.Config, error) {
	mf, err := os.Open(mountPath)
	if err != nil {
		return nil, fmt.Errorf("opening mount file: %w", err)
	}
	defer mf.Close()
	cfg, err := netcfg.ParseMountFile(mf)
	if err != nil {
		return nil, fmt.Errorf("parsing mount file: %w", err)
	}
	if bandwidthPath == "" {
		return cfg, nil
	}
	bf, err := os.Open(bandwidthPath)
	if err != nil {
		return nil, fmt.Errorf("opening bandwidth file: %w", err)
	}
	defer bf.Close()
	if err := netcfg.ParseBandwidthFile(bf, cfg); err != nil {
		return nil, fmt.Errorf("parsing bandwidth file: %w", err)
	}
	return cfg, nil
}

func loadProgram(path string, db *annot.DB) (*graph.Program, map[stream.NodeId]annot.ArgMatch, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading program skeleton: %w", err)
	}
	var dto wire.ProgramDTO
	if err := wire.Unmarshal(b, &dto); err != nil {
		return nil, nil, fmt.Errorf("decoding program skeleton: %w", err)
	}
	dto.ID = cos.GenProgramID()
	prog, err := wire.DecodeProgram(dto)
	if err != nil {
		return nil, nil, fmt.Errorf("reconstructing program: %w", err)
	}

	matches := make(map[stream.NodeId]annot.ArgMatch, len(prog.Nodes()))
	for id, n := range prog.Nodes() {
		c, ok := n.(*graph.Cmd)
		if !ok {
			continue
		}
		matches[id] = annot.Match(db, c)
	}
	return prog, matches, nil
}
