//go:build !debug

// Package debug provides build-tag gated assertions used throughout dash.
/*
 * Adapted from github.com/NVIDIA/aistore cmn/debug.
 */
package debug

// ON reports whether the debug build tag is active.
func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
func Func(_ func())                      {}
