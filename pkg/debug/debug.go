// Package debug provides opt-in category logging for the gateway.
//
// Wire-level visibility is the point: when an upstream misbehaves, the
// fastest diagnosis is the exact payload that crossed the wire. Output is
// keyed by category so one subsystem can be watched without drowning the
// log in the others.
//
// Categories come from UNILLM_DEBUG (comma separated) or the config debug
// section, verbosity from UNILLM_LOG_LEVEL. Known categories: providers,
// streaming, transport, registry, auth, storage, config, all.
package debug

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog.LevelDebug. At TRACE, Payload writes wire
// bodies verbatim instead of truncated.
const LevelTrace = slog.LevelDebug - 4

// payloadPreview bounds the payload excerpt logged below TRACE.
const payloadPreview = 512

// enabled is the active category set. Written by Init at startup, read-only
// afterwards.
var enabled map[string]bool

func init() {
	enabled = splitList(os.Getenv("UNILLM_DEBUG"))
}

// Init applies the configured categories and level and installs the default
// slog handler. Environment variables win over config values when both are
// set, so a deployed config can be overridden per invocation.
func Init(categories, level string) {
	if env := os.Getenv("UNILLM_DEBUG"); env != "" {
		categories = env
	}
	enabled = splitList(categories)

	if env := os.Getenv("UNILLM_LOG_LEVEL"); env != "" {
		level = env
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})))
}

// Enabled reports whether a category is switched on. Guard expensive
// argument construction with it; Log and Payload check it themselves.
func Enabled(category string) bool {
	return enabled["all"] || enabled[category]
}

// Log emits one debug entry for the category, a no-op otherwise.
func Log(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Payload logs a raw wire payload for the category. At TRACE the payload
// goes to stderr verbatim, ready for copy-paste replay against the upstream;
// otherwise a truncated excerpt is logged through slog.
func Payload(category string, payload []byte) {
	if !Enabled(category) {
		return
	}
	if slog.Default().Enabled(context.Background(), LevelTrace) {
		fmt.Fprintln(os.Stderr, string(payload))
		return
	}
	slog.Debug("payload", "debug", category, "body", truncate(string(payload), payloadPreview))
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) map[string]bool {
	set := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(strings.ToLower(item)); item != "" {
			set[item] = true
		}
	}
	return set
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
