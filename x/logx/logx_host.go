//go:build !(rp2040 || rp2350)

package logx

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

var root = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
})

// SetLevel parses and applies a level ("debug", "info", ...). Call it before
// New so that derived loggers inherit the level.
func SetLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	root.SetLevel(lvl)
	return nil
}

// SetOutput redirects the root logger (tests, file sinks).
func SetOutput(w io.Writer) { root.SetOutput(w) }

// New returns a logger tagged with prefix.
func New(prefix string) Logger { return root.WithPrefix(prefix) }

func withPrefix(l Logger, prefix string) (Logger, bool) {
	if cl, ok := l.(*log.Logger); ok {
		return cl.WithPrefix(prefix), true
	}
	return nil, false
}
