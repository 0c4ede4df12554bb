// Package logging configures the CDLS logger: console output plus a
// monthly logfile, and the banner formatter used for prominent warnings.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const bannerWidth = 80

// New builds the root logger. noisy switches on debug-level output. When
// dir is non-empty, entries are also appended to <dir>/YYYY-MM.log.
func New(noisy bool, dir string) zerolog.Logger {
	level := zerolog.InfoLevel
	if noisy {
		level = zerolog.DebugLevel
	}

	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime},
	}
	if dir != "" {
		if f, err := openMonthlyLogfile(dir); err == nil {
			writers = append(writers, f)
		} else {
			fmt.Fprintf(os.Stderr, "could not open logfile: %s\n", err)
		}
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func openMonthlyLogfile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := filepath.Join(dir, time.Now().Format("2006-01")+".log")
	return os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// Banner emits a message as a starred box, one log entry per line.
func Banner(log zerolog.Logger, level zerolog.Level, message string) {
	for _, line := range bannerLines(message, bannerWidth) {
		log.WithLevel(level).Msg(line)
	}
}

// bannerLines word-wraps a message into a box of the given width.
func bannerLines(message string, width int) []string {
	hr := strings.Repeat("*", width)
	emptyline := "*" + strings.Repeat(" ", width-2) + "*"
	lines := []string{hr, emptyline}

	var buf string
	for _, word := range strings.Fields(message) {
		switch {
		case buf == "":
			buf = word
		case len(buf)+len(word)+1 <= width-4:
			buf += " " + word
		default:
			lines = append(lines, boxedLine(buf, width))
			buf = word
		}
	}
	if buf != "" {
		lines = append(lines, boxedLine(buf, width))
	}

	return append(lines, emptyline, hr)
}

func boxedLine(text string, width int) string {
	inner := width - 4
	if len(text) > inner {
		text = text[:inner]
	}
	pad := inner - len(text)
	left := pad / 2
	return "* " + strings.Repeat(" ", left) + text + strings.Repeat(" ", pad-left) + " *"
}
