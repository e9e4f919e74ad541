package logging

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
)

// Options configures New.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	// PreciseLocation keeps full coordinate precision. By default
	// coordinates are rounded to LocationDecimals places.
	PreciseLocation bool
}

// LocationDecimals is the precision of logged coordinates, roughly 1 km.
const LocationDecimals = 2

// locationKeys are attribute keys that carry the sensor's coordinates.
var locationKeys = map[string]bool{
	"latitude":  true,
	"longitude": true,
	"lat":       true,
	"lon":       true,
	"lng":       true,
}

// CoarsenCoordinate rounds a coordinate to places decimal places.
func CoarsenCoordinate(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// New builds a logger writing to w. Attributes with sensitive keys are
// redacted, error strings are scrubbed of embedded credentials and
// coordinates are coarsened unless opts.PreciseLocation is set.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactor(opts.PreciseLocation),
	}

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "json":
		h = slog.NewJSONHandler(w, handlerOpts)
	case "text":
		h = slog.NewTextHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return slog.New(h), nil
}

func redactor(preciseLocation bool) func([]string, slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		if !preciseLocation && a.Value.Kind() == slog.KindFloat64 && locationKeys[strings.ToLower(a.Key)] {
			return slog.Float64(a.Key, CoarsenCoordinate(a.Value.Float64(), LocationDecimals))
		}
		return redactAttr(a)
	}
}

func redactAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		if IsSensitiveField(a.Key) {
			return slog.String(a.Key, MaskSensitiveValue(a.Key, a.Value.String()))
		}
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case error:
			return slog.String(a.Key, MaskSensitivePatterns(v.Error()))
		case []string:
			return slog.Any(a.Key, SafeLogValue(a.Key, v))
		}
	}
	return a
}
