package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Settings controls the global zerolog logger.
type Settings struct {
	Level      string `mapstructure:"log-level" yaml:"log-level"`
	Format     string `mapstructure:"log-format" yaml:"log-format"`
	File       string `mapstructure:"log-file" yaml:"log-file,omitempty"`
	WithCaller bool   `mapstructure:"with-caller" yaml:"with-caller"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init configures log.Logger from s. Output goes to File when set and to
// stderr otherwise. The returned closer releases the log file.
func Init(s Settings) (io.Closer, error) {
	level := zerolog.InfoLevel
	if s.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s.Level))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", s.Level)
		}
		level = l
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if s.File != "" {
		if err := os.MkdirAll(filepath.Dir(s.File), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create log directory")
		}
		f, err := os.OpenFile(s.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open log file %s", s.File)
		}
		out = f
		closer = f
	}

	switch s.Format {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    s.File != "",
			TimeFormat: time.RFC3339,
		}
	case FormatJSON:
	default:
		_ = closer.Close()
		return nil, errors.Errorf("unknown log format %q", s.Format)
	}

	zerolog.SetGlobalLevel(level)
	ctx := zerolog.New(out).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()

	return closer, nil
}
