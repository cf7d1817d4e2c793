package rotation

import (
	"errors"
	"testing"
	"time"
)

func at(h, m, s int) time.Time {
	return time.Date(2024, 3, 9, h, m, s, 0, time.UTC)
}

func TestMinuteBuckets(t *testing.T) {
	p := Policy{Scheme: SchemeDateTime, Granularity: GranularityMinute, UTC: true}
	app, ext := "app", ".log"

	var cur FileState
	files := map[string]int{}
	for _, ts := range []time.Time{at(12, 0, 0), at(12, 0, 59), at(12, 1, 1)} {
		if reason, ok := p.ShouldRotate(cur, ts); ok {
			next, err := p.NameFor(cur, ts, reason)
			if err != nil {
				t.Fatalf("NameFor: %v", err)
			}
			cur = next
		}
		cur.Events++
		files[p.FileName(app, ext, cur)]++
	}

	if len(files) != 2 {
		t.Fatalf("got files %v, want 2", files)
	}
	if files["app_2024-03-09_12-00.log"] != 2 {
		t.Errorf("12:00 bucket has %d events, want 2", files["app_2024-03-09_12-00.log"])
	}
	if files["app_2024-03-09_12-01.log"] != 1 {
		t.Errorf("12:01 bucket has %d events, want 1", files["app_2024-03-09_12-01.log"])
	}
}

func TestFirstFileIsOpen(t *testing.T) {
	p := Policy{Scheme: SchemeNumberAscending, MaxEvents: 1}
	reason, ok := p.ShouldRotate(FileState{}, at(0, 0, 0))
	if !ok || reason != ReasonOpen {
		t.Fatalf("ShouldRotate on unopened state = %v/%v, want open", reason, ok)
	}
}

func TestNumericSuffixesMonotone(t *testing.T) {
	tests := []struct {
		name   string
		scheme Scheme
		less   func(a, b int) bool
	}{
		{"ascending", SchemeNumberAscending, func(a, b int) bool { return a < b }},
		{"descending", SchemeNumberDescending, func(a, b int) bool { return a > b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{Scheme: tt.scheme, MaxEvents: 1}
			cur, err := p.Initial(at(0, 0, 0), nil)
			if err != nil {
				t.Fatal(err)
			}
			seen := map[string]bool{p.Suffix(cur): true}
			prev := cur.Counter
			for i := 0; i < 50; i++ {
				cur.Events = 1
				reason, ok := p.ShouldRotate(cur, at(0, 0, i))
				if !ok || reason != ReasonCount {
					t.Fatalf("rotation %d: got %v/%v", i, reason, ok)
				}
				cur, err = p.NameFor(cur, at(0, 0, i), reason)
				if err != nil {
					t.Fatalf("NameFor: %v", err)
				}
				s := p.Suffix(cur)
				if seen[s] {
					t.Fatalf("suffix %q repeated", s)
				}
				seen[s] = true
				if !tt.less(prev, cur.Counter) {
					t.Fatalf("counter %d does not follow %d", cur.Counter, prev)
				}
				if len(s) != 1+DefaultWidth {
					t.Fatalf("suffix %q not padded to %d digits", s, DefaultWidth)
				}
				prev = cur.Counter
			}
		})
	}
}

func TestTimeTakesPrecedence(t *testing.T) {
	p := Policy{Scheme: SchemeDateTime, Granularity: GranularityMinute, MaxSize: 10, MaxEvents: 1, UTC: true}
	cur := FileState{Opened: true, Bucket: p.Bucket(at(12, 0, 0)), Seq: 3, Size: 100, Events: 5}

	reason, ok := p.ShouldRotate(cur, at(12, 1, 0))
	if !ok || reason != ReasonTime {
		t.Fatalf("got %v/%v, want time", reason, ok)
	}
	next, err := p.NameFor(cur, at(12, 1, 0), reason)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Suffix(next); got != "_2024-03-09_12-01" {
		t.Errorf("suffix = %q", got)
	}
}

func TestSizeBeforeCount(t *testing.T) {
	p := Policy{Scheme: SchemeNumberAscending, MaxSize: 10, MaxEvents: 1}
	reason, _ := p.ShouldRotate(FileState{Opened: true, Counter: 1, Size: 10, Events: 1}, at(0, 0, 0))
	if reason != ReasonSize {
		t.Errorf("reason = %v, want size", reason)
	}
}

func TestSizeWithinBucket(t *testing.T) {
	p := Policy{Scheme: SchemeDateTime, Granularity: GranularityDay, MaxSize: 10, UTC: true}
	cur := FileState{Opened: true, Bucket: "2024-03-09", Size: 12}

	reason, ok := p.ShouldRotate(cur, at(8, 0, 0))
	if !ok || reason != ReasonSize {
		t.Fatalf("got %v/%v, want size", reason, ok)
	}
	next, err := p.NameFor(cur, at(8, 0, 0), reason)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.FileName("app", ".log", next); got != "app_2024-03-09.1.log" {
		t.Errorf("name = %q", got)
	}
	next.Size = 11
	next, _ = p.NameFor(next, at(9, 0, 0), ReasonSize)
	if got := p.FileName("app", ".log", next); got != "app_2024-03-09.2.log" {
		t.Errorf("name = %q", got)
	}
}

func TestEarlierBucketDoesNotRotate(t *testing.T) {
	p := Policy{Scheme: SchemeDateTime, Granularity: GranularityHour, UTC: true}
	cur := FileState{Opened: true, Bucket: p.Bucket(at(13, 0, 0))}
	if _, ok := p.ShouldRotate(cur, at(12, 59, 0)); ok {
		t.Error("an older timestamp rotated the active file")
	}
}

func TestSchemeNoneNeverRotates(t *testing.T) {
	p := Policy{}
	cur := FileState{Opened: true, Size: 1 << 40, Events: 1 << 40}
	if _, ok := p.ShouldRotate(cur, at(0, 0, 0)); ok {
		t.Error("scheme none rotated")
	}
	if got := p.FileName("app", ".log", cur); got != "app.log" {
		t.Errorf("name = %q", got)
	}
}

func TestDescendingExhaustion(t *testing.T) {
	p := Policy{Scheme: SchemeNumberDescending, Width: 1, MaxEvents: 1}
	cur, err := p.Initial(at(0, 0, 0), nil)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Counter != 9 {
		t.Fatalf("initial counter = %d, want 9", cur.Counter)
	}
	for cur.Counter > 1 {
		if cur, err = p.NameFor(cur, at(0, 0, 0), ReasonCount); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := p.NameFor(cur, at(0, 0, 0), ReasonCount); !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}

func TestInitialContinuesPastExisting(t *testing.T) {
	asc := Policy{Scheme: SchemeNumberAscending, MaxEvents: 1}
	m := asc.Matcher("app", ".log")
	existing := m.ParseAll([]string{"app_00001.log.gz", "app_00004.log.zst", "app_00002.log", "other_00009.log"})
	st, err := asc.Initial(at(0, 0, 0), existing)
	if err != nil {
		t.Fatal(err)
	}
	if st.Counter != 5 {
		t.Errorf("ascending counter = %d, want 5", st.Counter)
	}

	desc := Policy{Scheme: SchemeNumberDescending, MaxEvents: 1}
	m = desc.Matcher("app", ".log")
	existing = m.ParseAll([]string{"app_99999.log.gz", "app_99997.log"})
	st, err = desc.Initial(at(0, 0, 0), existing)
	if err != nil {
		t.Fatal(err)
	}
	if st.Counter != 99996 {
		t.Errorf("descending counter = %d, want 99996", st.Counter)
	}
}

func TestInitialDateTimeBucket(t *testing.T) {
	p := Policy{Scheme: SchemeDateTime, Granularity: GranularityDay, UTC: true}
	m := p.Matcher("app", ".log")
	now := at(10, 0, 0)

	tests := []struct {
		name     string
		existing []string
		want     string
	}{
		{"empty", nil, "app_2024-03-09.log"},
		{"append to plain", []string{"app_2024-03-09.log"}, "app_2024-03-09.log"},
		{"skip compressed", []string{"app_2024-03-09.log.gz"}, "app_2024-03-09.1.log"},
		{"append to last seq", []string{"app_2024-03-09.log.gz", "app_2024-03-09.1.log"}, "app_2024-03-09.1.log"},
		{"other bucket", []string{"app_2024-03-08.log"}, "app_2024-03-09.log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := p.Initial(now, m.ParseAll(tt.existing))
			if err != nil {
				t.Fatal(err)
			}
			if got := p.FileName("app", ".log", st); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatcher(t *testing.T) {
	p := Policy{Scheme: SchemeDateTime, Granularity: GranularityHour}
	m := p.Matcher("my.app", ".log")

	tests := []struct {
		base string
		ok   bool
		seq  int
		comp bool
	}{
		{"my.app_2024-03-09_12.log", true, 0, false},
		{"my.app_2024-03-09_12.3.log.gz", true, 3, true},
		{"my.app_2024-03-09_12.log.zst", true, 0, true},
		{"my.app_2024-03-09.log", false, 0, false},
		{"myXapp_2024-03-09_12.log", false, 0, false},
		{"my.app.lock", false, 0, false},
	}
	for _, tt := range tests {
		n, ok := m.Parse(tt.base)
		if ok != tt.ok {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.base, ok, tt.ok)
			continue
		}
		if ok && (n.Seq != tt.seq || n.Compressed != tt.comp) {
			t.Errorf("Parse(%q) = %+v", tt.base, n)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		p    Policy
		ok   bool
	}{
		{"none", Policy{}, true},
		{"none with limit", Policy{MaxSize: 1}, false},
		{"numeric without limit", Policy{Scheme: SchemeNumberAscending}, false},
		{"numeric", Policy{Scheme: SchemeNumberDescending, MaxSize: 1 << 20}, true},
		{"datetime", Policy{Scheme: SchemeDateTime, Granularity: GranularityMonth}, true},
		{"bad granularity", Policy{Scheme: SchemeDateTime, Granularity: 9}, false},
		{"negative", Policy{Scheme: SchemeNumberAscending, MaxSize: -1}, false},
		{"width", Policy{Scheme: SchemeNumberAscending, MaxSize: 1, Width: 19}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestParseScheme(t *testing.T) {
	for s, name := range schemeNames {
		got, err := ParseScheme(name)
		if err != nil || got != s {
			t.Errorf("ParseScheme(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseScheme("weekly"); err == nil {
		t.Error("ParseScheme accepted an unknown scheme")
	}
}
