package types

import (
	"fmt"
	"strings"
	"time"
)

// Severity classifies an event for display and formatting width.
type Severity uint8

const (
	SeverityNone Severity = iota
	SeverityPass
	SeverityFail
	SeverityDebug
	SeverityWarning
	SeverityCritical
	SeverityFatal
	// SeverityBlanks renders as whitespace of the severity column width.
	// Used for continuation lines such as the body of a hex dump.
	SeverityBlanks
	severityMax
)

var severityNames = [severityMax]string{
	"NONE",
	"PASS",
	"FAIL",
	"DEBUG",
	"WARNING",
	"CRITICAL",
	"FATAL",
	"",
}

var severityShort = [severityMax]string{
	"-", "P", "F", "D", "W", "C", "X", " ",
}

// SeverityNameWidth is the width of the longest severity name.
const SeverityNameWidth = len("CRITICAL")

// String returns the upper-case severity name.
func (s Severity) String() string {
	if s >= severityMax {
		return fmt.Sprintf("SEVERITY(%d)", uint8(s))
	}
	if s == SeverityBlanks {
		return strings.Repeat(" ", SeverityNameWidth)
	}
	return severityNames[s]
}

// Short returns the one character form of the severity.
func (s Severity) Short() string {
	if s >= severityMax {
		return "?"
	}
	return severityShort[s]
}

// Valid reports whether s is one of the defined severities.
func (s Severity) Valid() bool {
	return s < severityMax
}

// ParseSeverity parses a severity name (case-insensitive).
func ParseSeverity(name string) (Severity, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if n == "BLANKS" {
		return SeverityBlanks, nil
	}
	if n == "WARN" {
		return SeverityWarning, nil
	}
	for i, s := range severityNames {
		if s != "" && s == n {
			return Severity(i), nil
		}
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", name)
}

// SeverityFormat selects how the severity column is rendered.
type SeverityFormat uint8

const (
	// SeverityFormatBracketed renders "[WARNING]".
	SeverityFormatBracketed SeverityFormat = iota
	// SeverityFormatHidden omits the severity column.
	SeverityFormatHidden
	// SeverityFormatName renders "WARNING".
	SeverityFormatName
	// SeverityFormatPadded renders the name left-aligned to the widest name.
	SeverityFormatPadded
	// SeverityFormatShort renders a single character.
	SeverityFormatShort
)

var severityFormatNames = map[SeverityFormat]string{
	SeverityFormatBracketed: "bracketed",
	SeverityFormatHidden:    "hidden",
	SeverityFormatName:      "name",
	SeverityFormatPadded:    "padded",
	SeverityFormatShort:     "short",
}

func (f SeverityFormat) String() string {
	if n, ok := severityFormatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// Valid reports whether f is one of the defined formats.
func (f SeverityFormat) Valid() bool {
	_, ok := severityFormatNames[f]
	return ok
}

// ParseSeverityFormat parses the names returned by SeverityFormat.String.
func ParseSeverityFormat(name string) (SeverityFormat, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return SeverityFormatBracketed, nil
	}
	for f, s := range severityFormatNames {
		if s == n {
			return f, nil
		}
	}
	return SeverityFormatBracketed, fmt.Errorf("unknown severity format %q", name)
}

// Priority is the scheduling priority requested for a target's consumer.
type Priority int8

const (
	PriorityNormal Priority = iota
	PriorityLowest
	PriorityBelowNormal
	PriorityAboveNormal
	PriorityHighest
)

var priorityNames = map[Priority]string{
	PriorityNormal:      "normal",
	PriorityLowest:      "lowest",
	PriorityBelowNormal: "below_normal",
	PriorityAboveNormal: "above_normal",
	PriorityHighest:     "highest",
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return fmt.Sprintf("priority(%d)", int8(p))
}

// ParsePriority parses the names returned by Priority.String.
func ParsePriority(name string) (Priority, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return PriorityNormal, nil
	}
	for p, s := range priorityNames {
		if s == n {
			return p, nil
		}
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", name)
}

// Newline is the line terminator convention written to files.
type Newline uint8

const (
	NewlineLF Newline = iota
	NewlineCRLF
)

// Bytes returns the terminator bytes.
func (n Newline) Bytes() []byte {
	if n == NewlineCRLF {
		return []byte("\r\n")
	}
	return []byte("\n")
}

// Valid reports whether n is LF or CRLF.
func (n Newline) Valid() bool {
	return n <= NewlineCRLF
}

// ParseNewline accepts "lf", "crlf" or "" (LF).
func ParseNewline(name string) (Newline, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lf", "unix":
		return NewlineLF, nil
	case "crlf", "windows":
		return NewlineCRLF, nil
	}
	return NewlineLF, fmt.Errorf("unknown newline convention %q", name)
}

// EventKind is the closed set of work items a target's consumer handles.
type EventKind uint8

const (
	KindPlainText EventKind = iota
	KindFormattedText
	KindHexDump
	KindPause
	KindResume
	KindPriority
	KindEcho
	KindColor
	KindSeverityFormat
	KindFlush
	KindMaintenance
	KindShutdown
	KindCancel
)

var kindNames = [...]string{
	"plain_text",
	"formatted_text",
	"hex_dump",
	"pause",
	"resume",
	"priority",
	"echo",
	"color",
	"severity_format",
	"flush",
	"maintenance",
	"shutdown",
	"cancel",
}

func (k EventKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Event is one unit of work handed from a producer to a target's consumer.
// The payload is owned by the event once it has been built; producers must not
// touch the slice after handing it over.
type Event struct {
	Seq      uint64 // admission order, assigned by the queue
	Kind     EventKind
	Severity Severity
	Time     time.Time
	Payload  []byte

	// Control arguments.
	Enabled  bool           // KindEcho, KindColor
	Priority Priority       // KindPriority
	Format   SeverityFormat // KindSeverityFormat
	Done     chan struct{}  // KindFlush; closed once every earlier event is handled
}

// IsData reports whether the event carries log output.
func (e *Event) IsData() bool {
	return e.Kind <= KindHexDump
}

// IsControl reports whether the event is a control directive.
func (e *Event) IsControl() bool {
	return !e.IsData()
}

// IsTerminal reports whether the event ends the consumer loop.
func (e *Event) IsTerminal() bool {
	return e.Kind == KindShutdown || e.Kind == KindCancel
}
