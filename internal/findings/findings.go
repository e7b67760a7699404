// Package findings defines the analyzer's result type and helpers for
// filtering, ordering, and severity handling.
package findings

import (
	"fmt"
	"sort"
)

// Severity classifies how serious a finding is.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// rank orders severities for comparison (higher = more severe).
func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

// ParseSeverity converts a config string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "error":
		return SeverityError, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "info", "":
		return SeverityInfo, nil
	}
	return "", fmt.Errorf("unknown severity: %q", s)
}

// Finding is a single analyzer result anchored to a source location.
type Finding struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	App      string   `json:"app"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Ref      string   `json:"ref,omitempty"`
}

// String formats a finding for console output:
// [SEVERITY] code: message (file:line)
func (f Finding) String() string {
	location := ""
	if f.File != "" {
		location = fmt.Sprintf(" (%s:%d)", f.File, f.Line)
	}
	return fmt.Sprintf("[%s] %s: %s%s", upper(string(f.Severity)), f.Code, f.Message, location)
}

func upper(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

// Key identifies a finding across runs for diffing.
// Line numbers shift too easily to participate.
func (f Finding) Key() string {
	return f.Code + "|" + f.File + "|" + f.Ref
}

// Sort orders findings deterministically by file, line, code, and ref.
func Sort(fs []Finding) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].File != fs[j].File {
			return fs[i].File < fs[j].File
		}
		if fs[i].Line != fs[j].Line {
			return fs[i].Line < fs[j].Line
		}
		if fs[i].Code != fs[j].Code {
			return fs[i].Code < fs[j].Code
		}
		return fs[i].Ref < fs[j].Ref
	})
}

// FilterApp returns findings belonging to the given app.
// An empty app returns the input unchanged.
func FilterApp(fs []Finding, app string) []Finding {
	if app == "" {
		return fs
	}
	out := make([]Finding, 0, len(fs))
	for _, f := range fs {
		if f.App == app {
			out = append(out, f)
		}
	}
	return out
}

// FilterSeverity returns findings at or above the given severity.
func FilterSeverity(fs []Finding, min Severity) []Finding {
	out := make([]Finding, 0, len(fs))
	for _, f := range fs {
		if f.Severity.AtLeast(min) {
			out = append(out, f)
		}
	}
	return out
}

// HasErrors reports whether any finding is error severity.
func HasErrors(fs []Finding) bool {
	for _, f := range fs {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(fs []Finding) map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range fs {
		counts[f.Severity]++
	}
	return counts
}
