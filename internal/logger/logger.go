package logger

import (
	"context"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	SampleN   int
	Component string
}

type fieldsKey struct{}

// fields are copied onto every line logged with the carrying context.
type fields struct {
	requestID  string
	component  string
	collection string
}

func fieldsFrom(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey{}).(fields)
	return f
}

func withFields(ctx context.Context, set func(*fields)) context.Context {
	f := fieldsFrom(ctx)
	set(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithRequestID stores id on ctx, generating one when id is empty.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewID()
	}
	return withFields(ctx, func(f *fields) { f.requestID = id })
}

// RequestID returns the id stored by WithRequestID, if any.
func RequestID(ctx context.Context) string { return fieldsFrom(ctx).requestID }

// WithCollection tags log lines emitted while a single collection is queried.
func WithCollection(ctx context.Context, collection string) context.Context {
	if collection == "" {
		return ctx
	}
	return withFields(ctx, func(f *fields) { f.collection = collection })
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return withFields(ctx, func(f *fields) { f.component = component })
}

func NewID() string { return uuid.NewString() }

// Build configures the process wide zerolog settings and returns the root
// logger. Unknown levels fall back to info.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	base := zerolog.New(out)
	if cfg.SampleN > 1 {
		base = base.Sample(&zerolog.BasicSampler{N: uint32(min(cfg.SampleN, math.MaxInt32))})
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	zc := base.With().Timestamp()
	if cfg.Component != "" {
		zc = zc.Str("component", cfg.Component)
	}
	return zc.Logger()
}

func contextLogger(ctx context.Context, parent *zerolog.Logger) zerolog.Logger {
	f := fieldsFrom(ctx)
	zc := parent.With()
	for _, kv := range [...][2]string{
		{"request_id", f.requestID},
		{"component", f.component},
		{"collection", f.collection},
	} {
		if kv[1] != "" {
			zc = zc.Str(kv[0], kv[1])
		}
	}
	return zc.Logger()
}
