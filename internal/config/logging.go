package config

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug] and gates wire-level output:
// the full JSON payloads Herald sends to the model and search
// providers. The value -8 continues slog's spacing of four between
// adjacent levels.
const LevelTrace = slog.Level(-8)

// logLevels maps accepted log_level config values to slog levels.
var logLevels = map[string]slog.Level{
	"trace":   LevelTrace,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLogLevel converts the log_level config value to an
// [slog.Level]. Matching is case-insensitive with surrounding
// whitespace ignored; an empty value selects info. Unrecognized values
// return an error listing the accepted ones.
func ParseLogLevel(s string) (slog.Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return slog.LevelInfo, nil
	}
	if lvl, ok := logLevels[name]; ok {
		return lvl, nil
	}

	accepted := make([]string, 0, len(logLevels))
	for k := range logLevels {
		accepted = append(accepted, k)
	}
	sort.Strings(accepted)
	return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: %s)", s, strings.Join(accepted, ", "))
}

// ReplaceLogLevelNames is an [slog.HandlerOptions.ReplaceAttr] function
// that labels [LevelTrace] records "TRACE". slog only knows its four
// built-in level names and would otherwise print "DEBUG-4".
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
