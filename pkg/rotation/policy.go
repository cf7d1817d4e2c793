// Package rotation decides which file a target writes to.
//
// A Policy is a pure value: given the state of the active file and the
// timestamp of the next event it says whether the active file must change and
// what the next file is called. Nothing here touches the filesystem, so the
// same policy can be exercised with synthetic timestamps.
package rotation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Scheme selects how rotated file names are derived.
type Scheme uint8

const (
	// SchemeNone writes a single file and never rotates.
	SchemeNone Scheme = iota
	// SchemeNumberAscending names files _00001, _00002, ...
	SchemeNumberAscending
	// SchemeNumberDescending names files _99999, _99998, ...
	SchemeNumberDescending
	// SchemeDateTime names files after the time bucket of their events.
	SchemeDateTime
)

var schemeNames = map[Scheme]string{
	SchemeNone:             "none",
	SchemeNumberAscending:  "number_ascending",
	SchemeNumberDescending: "number_descending",
	SchemeDateTime:         "datetime",
}

func (s Scheme) String() string {
	if n, ok := schemeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("scheme(%d)", uint8(s))
}

// ParseScheme parses the names returned by Scheme.String.
func ParseScheme(name string) (Scheme, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return SchemeNone, nil
	}
	for s, v := range schemeNames {
		if v == n {
			return s, nil
		}
	}
	return SchemeNone, errors.Errorf("unknown rotation scheme %q", name)
}

// Granularity is the width of a SchemeDateTime bucket.
type Granularity uint8

const (
	GranularityMinute Granularity = iota
	GranularityHour
	GranularityDay
	GranularityMonth
)

var granularityLayouts = map[Granularity]string{
	GranularityMinute: "2006-01-02_15-04",
	GranularityHour:   "2006-01-02_15",
	GranularityDay:    "2006-01-02",
	GranularityMonth:  "2006-01",
}

var granularityPatterns = map[Granularity]string{
	GranularityMinute: `\d{4}-\d{2}-\d{2}_\d{2}-\d{2}`,
	GranularityHour:   `\d{4}-\d{2}-\d{2}_\d{2}`,
	GranularityDay:    `\d{4}-\d{2}-\d{2}`,
	GranularityMonth:  `\d{4}-\d{2}`,
}

var granularityNames = map[Granularity]string{
	GranularityMinute: "minute",
	GranularityHour:   "hour",
	GranularityDay:    "day",
	GranularityMonth:  "month",
}

func (g Granularity) String() string {
	if n, ok := granularityNames[g]; ok {
		return n
	}
	return fmt.Sprintf("granularity(%d)", uint8(g))
}

// Layout returns the time layout used for bucket names.
func (g Granularity) Layout() string {
	return granularityLayouts[g]
}

// ParseGranularity parses the names returned by Granularity.String.
func ParseGranularity(name string) (Granularity, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return GranularityDay, nil
	}
	for g, v := range granularityNames {
		if v == n {
			return g, nil
		}
	}
	return GranularityDay, errors.Errorf("unknown rotation granularity %q", name)
}

// Reason is why the active file changes.
type Reason uint8

const (
	ReasonNone Reason = iota
	// ReasonOpen is the first file of a target; nothing is closed.
	ReasonOpen
	ReasonTime
	ReasonSize
	ReasonCount
)

func (r Reason) String() string {
	switch r {
	case ReasonOpen:
		return "open"
	case ReasonTime:
		return "time"
	case ReasonSize:
		return "size"
	case ReasonCount:
		return "count"
	}
	return "none"
}

// DefaultWidth is the zero-padded width of numeric suffixes.
const DefaultWidth = 5

// ErrExhausted is returned when a descending counter cannot go any lower.
var ErrExhausted = errors.New("rotation counter exhausted")

// Policy is the rotation configuration of one target.
type Policy struct {
	Scheme      Scheme
	Granularity Granularity
	Width       int   // digits of numeric suffixes; DefaultWidth when zero
	MaxSize     int64 // rotate once the active file holds this many bytes; 0 disables
	MaxEvents   int64 // rotate once the active file holds this many events; 0 disables
	UTC         bool  // bucket in UTC instead of local time
}

// FileState is what the policy needs to know about the active file.
type FileState struct {
	Opened  bool
	Bucket  string
	Counter int
	Seq     int
	Size    int64
	Events  int64
}

// Validate reports conflicting or out-of-range settings.
func (p Policy) Validate() error {
	if _, ok := schemeNames[p.Scheme]; !ok {
		return errors.Errorf("invalid rotation scheme %d", p.Scheme)
	}
	if p.MaxSize < 0 || p.MaxEvents < 0 {
		return errors.New("rotation limits must not be negative")
	}
	if p.Width < 0 || p.Width > 18 {
		return errors.Errorf("numeric width %d out of range 1..18", p.Width)
	}
	switch p.Scheme {
	case SchemeNumberAscending, SchemeNumberDescending:
		if p.MaxSize == 0 && p.MaxEvents == 0 {
			return errors.New("numeric rotation needs a size or event limit")
		}
	case SchemeDateTime:
		if _, ok := granularityLayouts[p.Granularity]; !ok {
			return errors.Errorf("invalid rotation granularity %d", p.Granularity)
		}
	case SchemeNone:
		if p.MaxSize > 0 || p.MaxEvents > 0 {
			return errors.New("rotation limits set but scheme is none")
		}
	}
	return nil
}

func (p Policy) width() int {
	if p.Width <= 0 {
		return DefaultWidth
	}
	return p.Width
}

func (p Policy) maxCounter() int {
	w := p.width()
	if w >= 18 {
		return math.MaxInt64
	}
	return int(math.Pow10(w)) - 1
}

// Bucket returns the bucket key of t. Keys sort in time order.
func (p Policy) Bucket(t time.Time) string {
	if p.UTC {
		t = t.UTC()
	} else {
		t = t.Local()
	}
	return t.Format(p.Granularity.Layout())
}

// ShouldRotate reports whether an event stamped t must go to a different file
// than cur. Time is checked before size, and size before event count, so when
// several triggers fire on one event the new name follows the time bucket.
// A timestamp from an earlier bucket than the active file never rotates.
func (p Policy) ShouldRotate(cur FileState, t time.Time) (Reason, bool) {
	if !cur.Opened {
		return ReasonOpen, true
	}
	if p.Scheme == SchemeNone {
		return ReasonNone, false
	}
	if p.Scheme == SchemeDateTime && p.Bucket(t) > cur.Bucket {
		return ReasonTime, true
	}
	if p.MaxSize > 0 && cur.Size >= p.MaxSize {
		return ReasonSize, true
	}
	if p.MaxEvents > 0 && cur.Events >= p.MaxEvents {
		return ReasonCount, true
	}
	return ReasonNone, false
}

// NameFor returns the state of the file that follows cur for the given reason.
// Size and event counters of the result are zero.
func (p Policy) NameFor(cur FileState, t time.Time, reason Reason) (FileState, error) {
	if reason == ReasonOpen || !cur.Opened {
		return p.Initial(t, nil)
	}
	next := FileState{Opened: true, Bucket: cur.Bucket, Counter: cur.Counter, Seq: cur.Seq}
	switch p.Scheme {
	case SchemeNone:
		return cur, errors.New("scheme none does not rotate")
	case SchemeDateTime:
		if reason == ReasonTime {
			next.Bucket = p.Bucket(t)
			next.Seq = 0
		} else {
			next.Seq++
		}
	case SchemeNumberAscending:
		if next.Counter >= p.maxCounter() {
			return cur, ErrExhausted
		}
		next.Counter++
	case SchemeNumberDescending:
		if next.Counter <= 1 {
			return cur, ErrExhausted
		}
		next.Counter--
	}
	return next, nil
}

// Initial returns the state of the first file for an event stamped t, given
// the names of files already present in the target directory. Numeric
// counters continue past any existing file, compressed or not. A date/time
// bucket that already has an uncompressed file is appended to.
func (p Policy) Initial(t time.Time, existing []Name) (FileState, error) {
	st := FileState{Opened: true}
	switch p.Scheme {
	case SchemeNumberAscending:
		st.Counter = 1
		for _, n := range existing {
			if n.Counter >= st.Counter {
				st.Counter = n.Counter + 1
			}
		}
		if st.Counter > p.maxCounter() {
			return st, ErrExhausted
		}
	case SchemeNumberDescending:
		st.Counter = p.maxCounter()
		for _, n := range existing {
			if n.Counter > 0 && n.Counter <= st.Counter {
				st.Counter = n.Counter - 1
			}
		}
		if st.Counter < 1 {
			return st, ErrExhausted
		}
	case SchemeDateTime:
		st.Bucket = p.Bucket(t)
		seq, plain, found := -1, false, false
		for _, n := range existing {
			if n.Bucket != st.Bucket {
				continue
			}
			found = true
			if n.Seq > seq {
				seq, plain = n.Seq, !n.Compressed
			} else if n.Seq == seq && !n.Compressed {
				plain = true
			}
		}
		switch {
		case !found:
			st.Seq = 0
		case plain:
			st.Seq = seq
		default:
			st.Seq = seq + 1
		}
	}
	return st, nil
}

// Suffix renders the variable part of a file name for st.
func (p Policy) Suffix(st FileState) string {
	switch p.Scheme {
	case SchemeNumberAscending, SchemeNumberDescending:
		return "_" + fmt.Sprintf("%0*d", p.width(), st.Counter)
	case SchemeDateTime:
		if st.Seq > 0 {
			return "_" + st.Bucket + "." + strconv.Itoa(st.Seq)
		}
		return "_" + st.Bucket
	}
	return ""
}

// FileName returns <app><suffix><ext> for st.
func (p Policy) FileName(app, ext string, st FileState) string {
	return app + p.Suffix(st) + ext
}
