package log

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"

	"uelocate/internal/logging"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
	root        *logging.LoggerCloser
)

// Setup installs the environment-configured charm logger as the slog
// default. debug forces debug level and caller reporting.
func Setup(debug bool) *charmlog.Logger {
	initOnce.Do(func() {
		root = logging.NewLogger()
		if debug {
			root.SetLevel(charmlog.DebugLevel)
			root.SetReportCaller(true)
		}
		slog.SetDefault(slog.New(root.Logger))
		initialized.Store(true)
	})
	return root.Logger
}

// Logger returns the logger installed by Setup, or a discarding one.
func Logger() *charmlog.Logger {
	if !Initialized() {
		return logging.Discard()
	}
	return root.Logger
}

// Close releases the log file when logging to one.
func Close() error {
	if !Initialized() {
		return nil
	}
	return root.Close()
}

func Initialized() bool {
	return initialized.Load()
}

func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		} else {
			fmt.Fprintf(os.Stderr, "panic in %s: %v\n%s", name, r, debug.Stack())
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
