package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Builder assembles a zerolog logger, in the spirit of a small options chain.
type Builder struct {
	writer io.Writer
	level  string
	format string
}

func New() *Builder {
	return &Builder{writer: os.Stderr, level: "info", format: "console"}
}

func (b *Builder) Writer(w io.Writer) *Builder {
	b.writer = w
	return b
}

func (b *Builder) Level(level string) *Builder {
	b.level = level
	return b
}

// Format is "json" or "console".
func (b *Builder) Format(format string) *Builder {
	b.format = format
	return b
}

func (b *Builder) Make() zerolog.Logger {
	w := b.writer
	if strings.EqualFold(b.format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(b.level))
	if err != nil || b.level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with component=name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
