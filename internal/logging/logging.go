// Package logging builds pion/logging factories for the probe core and
// the command line tools.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pion/logging"
)

// Config selects the default level and optional per-scope overrides.
type Config struct {
	Level  string            `yaml:"level" json:"level"`
	Scopes map[string]string `yaml:"scopes" json:"scopes"`
}

var discard = &logging.DefaultLoggerFactory{
	Writer:          io.Discard,
	DefaultLogLevel: logging.LogLevelDisabled,
	ScopeLevels:     map[string]logging.LogLevel{},
}

// Scope returns f's logger for scope, or a logger that drops everything
// when f is nil.
func Scope(f logging.LoggerFactory, scope string) logging.LeveledLogger {
	if f == nil {
		return discard.NewLogger(scope)
	}
	return f.NewLogger(scope)
}

// ParseLevel maps a level name to a pion level. The empty string is info.
func ParseLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return logging.LogLevelInfo, nil
	case "disabled", "off", "none":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", s)
}

// NewFactory returns a factory writing to w (stderr when nil).
func NewFactory(cfg Config, w io.Writer) (*logging.DefaultLoggerFactory, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	f := &logging.DefaultLoggerFactory{
		Writer:          w,
		DefaultLogLevel: lvl,
		ScopeLevels:     make(map[string]logging.LogLevel, len(cfg.Scopes)),
	}
	for scope, name := range cfg.Scopes {
		l, err := ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("scope %s: %w", scope, err)
		}
		f.ScopeLevels[scope] = l
	}
	return f, nil
}
