// Package testing prepares the environment for package tests. Import it for
// its side effects.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	"github.com/odyssey-cms/odyssey-cms/internal/app"
)

var once sync.Once

// defaults are applied only when the variable is unset.
var defaults = map[string]string{
	"STORAGE_DRIVER": app.StorageMemory,
	"LOG_FORMAT":     "json",
}

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv(app.TestModeEnv, "1")
		for key, value := range defaults {
			if _, set := os.LookupEnv(key); !set {
				_ = os.Setenv(key, value)
			}
		}
		app.RefreshTestMode()
	})
}

func init() {
	ensureTestMode()
}

// TestMain can be delegated to from packages that need the environment
// prepared before any test runs.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
