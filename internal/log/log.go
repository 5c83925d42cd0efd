// Package log provides the loggers used across mailtext.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-cz/devslog"
	"github.com/phsym/console-slog"
	slogformatter "github.com/samber/slog-formatter"

	"github.com/felo/mailtext/internal/address"
	"github.com/felo/mailtext/internal/charset"
)

var newHandler = slogformatter.NewFormatterHandler(
	slogformatter.ErrorFormatter("error"),
	slogformatter.FormatByType(func(n charset.Name) slog.Value {
		if n == "" {
			return slog.StringValue("none")
		}
		return slog.StringValue(string(n))
	}),
	slogformatter.FormatByType(func(a address.Address) slog.Value {
		return slog.GroupValue(
			slog.String("email", a.Email),
			slog.String("name", a.Name),
		)
	}),
)

// Def is the default console logger.
var Def = slog.New(newHandler(
	console.NewHandler(os.Stdout, &console.HandlerOptions{
		AddSource:  true,
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
	}),
))

// Dev is a verbose developer logger.
var Dev = slog.New(newHandler(
	devslog.NewHandler(os.Stdout, &devslog.Options{
		HandlerOptions: &slog.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelDebug,
		},
		SortKeys:   true,
		TimeFormat: time.RFC3339Nano,
	}),
))

type noopHandler struct{}

func (noopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (noopHandler) Handle(context.Context, slog.Record) error { return nil }

func (h noopHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h noopHandler) WithGroup(string) slog.Handler { return h }

// Noop discards everything.
var Noop = slog.New(noopHandler{})

// New returns Dev when dev is set and Def otherwise.
func New(dev bool) *slog.Logger {
	if dev {
		return Dev
	}
	return Def
}

// Or returns l, or Noop when l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Noop
	}
	return l
}

type fmtValue struct {
	v any
}

func (v fmtValue) LogValue() slog.Value {
	return slog.StringValue(fmt.Sprintf("%+v", v.v))
}

// FmtValue returns a value logger that formats v with '%+v'.
func FmtValue(v any) slog.LogValuer { return fmtValue{v} }
