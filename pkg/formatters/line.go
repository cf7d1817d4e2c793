package formatters

import (
	"bytes"
	"strings"
	"time"

	"github.com/wayneeseguin/omnitarget/pkg/types"
)

// DefaultTimestampFormat is used when a target does not configure one.
const DefaultTimestampFormat = "2006-01-02 15:04:05.000"

// Line renders events as text lines: "<timestamp> <severity> <payload><newline>".
// A payload spanning several lines is written as continuation lines whose
// timestamp and severity columns are blank, so dumps stay aligned.
type Line struct {
	TimestampFormat string // "" or "none" omits the timestamp
	SeverityFormat  types.SeverityFormat
	Newline         types.Newline
	UTC             bool
}

// DefaultLine returns the default rendering options.
func DefaultLine() Line {
	return Line{
		TimestampFormat: DefaultTimestampFormat,
		SeverityFormat:  types.SeverityFormatBracketed,
		Newline:         types.NewlineLF,
	}
}

// Timestamp renders t, or "" when timestamps are disabled.
func (l Line) Timestamp(t time.Time) string {
	if l.TimestampFormat == "" || l.TimestampFormat == "none" {
		return ""
	}
	if l.UTC {
		t = t.UTC()
	}
	return t.Format(l.TimestampFormat)
}

// Severity renders the severity column for sev. SeverityNone has no column,
// except in the padded format where it keeps the column's width.
func (l Line) Severity(sev types.Severity) string {
	if sev == types.SeverityNone {
		if l.SeverityFormat == types.SeverityFormatPadded {
			return strings.Repeat(" ", types.SeverityNameWidth)
		}
		return ""
	}
	switch l.SeverityFormat {
	case types.SeverityFormatHidden:
		return ""
	case types.SeverityFormatName:
		return strings.TrimRight(sev.String(), " ")
	case types.SeverityFormatPadded:
		return padRight(sev.String(), types.SeverityNameWidth)
	case types.SeverityFormatShort:
		return sev.Short()
	default:
		if sev == types.SeverityBlanks {
			return strings.Repeat(" ", types.SeverityNameWidth+2)
		}
		return "[" + sev.String() + "]"
	}
}

// Append renders one event into dst and returns the extended slice.
func (l Line) Append(dst []byte, t time.Time, sev types.Severity, payload []byte) []byte {
	ts := l.Timestamp(t)
	col := l.Severity(sev)
	nl := l.Newline.Bytes()

	lines := splitLines(payload)
	for i, line := range lines {
		start := len(dst)
		if i == 0 {
			dst = appendColumn(dst, ts)
			dst = appendColumn(dst, col)
		} else {
			dst = appendColumn(dst, blank(ts))
			dst = appendColumn(dst, blank(col))
		}
		dst = append(dst, line...)
		if len(line) == 0 {
			// no trailing blanks on an empty payload line
			dst = append(dst[:start], bytes.TrimRight(dst[start:], " ")...)
		}
		dst = append(dst, nl...)
	}
	return dst
}

func appendColumn(dst []byte, col string) []byte {
	if col == "" {
		return dst
	}
	dst = append(dst, col...)
	return append(dst, ' ')
}

func blank(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat(" ", len(s))
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// splitLines splits payload on LF, dropping a single trailing terminator and
// any CR before each LF.
func splitLines(payload []byte) [][]byte {
	payload = bytes.TrimSuffix(payload, []byte("\n"))
	payload = bytes.TrimSuffix(payload, []byte("\r"))
	lines := bytes.Split(payload, []byte("\n"))
	for i, ln := range lines {
		lines[i] = bytes.TrimSuffix(ln, []byte("\r"))
	}
	return lines
}
