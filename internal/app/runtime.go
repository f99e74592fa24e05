package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// TestModeEnv makes the binaries return before touching storage, Redis or
// the network when set to "1".
const TestModeEnv = "CMS_TEST_MODE"

// Mode is how the process was launched.
type Mode int32

const (
	// ModeServe runs the binaries normally.
	ModeServe Mode = iota
	// ModeTest skips runtime startup.
	ModeTest
)

var (
	mode     atomic.Int32
	modeOnce sync.Once
)

func detectMode() {
	m := ModeServe
	if os.Getenv(TestModeEnv) == "1" {
		m = ModeTest
	}
	mode.Store(int32(m))
}

// CurrentMode returns the cached launch mode.
func CurrentMode() Mode {
	modeOnce.Do(detectMode)
	return Mode(mode.Load())
}

// InTestMode reports whether the binaries should skip runtime side effects.
func InTestMode() bool {
	return CurrentMode() == ModeTest
}

// RefreshTestMode re-reads the environment after it changed.
func RefreshTestMode() {
	modeOnce.Do(func() {})
	detectMode()
}
