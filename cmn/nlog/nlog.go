// Package nlog is the dash logger: leveled, depth-aware, flushable.
/*
 * Adapted from github.com/NVIDIA/aistore cmn/nlog. The teacher's logger
 * buffers into page-sized chunks and rotates per-severity log files; dash
 * runs as short-lived client/server processes, so this keeps the same
 * leveled API (Infof/Warningf/Errorf/Flush) over a single mutex-guarded
 * writer instead of reproducing the rotation machinery.
 */
package nlog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevTag = [...]string{"I", "W", "E"}

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	title  string
	toDrop bool // once Flush(true) has run, further writes are no-ops
)

// SetOutput redirects all subsequent log lines to w (e.g. a per-server log file).
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// SetTitle tags every line with a short process identifier, e.g. "server[10.0.0.2:7000]".
func SetTitle(s string) {
	mu.Lock()
	title = s
	mu.Unlock()
}

func log(sev severity, depth int, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if toDrop {
		return
	}
	var msg string
	if format == "" {
		msg = fmt.Sprintln(args...)
	} else {
		msg = fmt.Sprintf(format, args...)
		if len(msg) == 0 || msg[len(msg)-1] != '\n' {
			msg += "\n"
		}
	}
	_, file, line, ok := runtime.Caller(depth + 2)
	if !ok {
		file, line = "???", 0
	} else {
		for i := len(file) - 1; i >= 0; i-- {
			if file[i] == '/' {
				file = file[i+1:]
				break
			}
		}
	}
	ts := time.Now().Format("0102 15:04:05.000000")
	prefix := fmt.Sprintf("%s%s %s:%d] ", sevTag[sev], ts, file, line)
	if title != "" {
		prefix = fmt.Sprintf("%s%s ", prefix, title)
	}
	fmt.Fprint(out, prefix, msg)
}

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// Flush syncs the current writer if it supports it; exit, when true, marks
// the logger closed so late goroutines racing process teardown don't panic
// on a closed file.
func Flush(exit ...bool) {
	mu.Lock()
	defer mu.Unlock()
	if f, ok := out.(*os.File); ok {
		_ = f.Sync()
	}
	if len(exit) > 0 && exit[0] {
		toDrop = true
	}
}
