package rotation

import (
	"regexp"
	"strconv"
	"strings"
)

// CompressedExtensions are the suffixes processors append to rotated files.
var CompressedExtensions = []string{".gz", ".zst"}

// Name is a file name parsed by a Matcher.
type Name struct {
	Base       string
	Bucket     string
	Counter    int
	Seq        int
	Compressed bool
}

// Matcher recognises every file a policy can produce for one app/extension
// pair, compressed artifacts included.
type Matcher struct {
	policy Policy
	re     *regexp.Regexp
}

// Matcher returns the matcher for files named <app><suffix><ext>.
func (p Policy) Matcher(app, ext string) *Matcher {
	var exts []string
	for _, e := range CompressedExtensions {
		exts = append(exts, regexp.QuoteMeta(e))
	}
	comp := `((?:` + strings.Join(exts, "|") + `))?`
	prefix := "^" + regexp.QuoteMeta(app)
	suffix := regexp.QuoteMeta(ext) + comp + "$"

	var expr string
	switch p.Scheme {
	case SchemeNumberAscending, SchemeNumberDescending:
		expr = prefix + `_(\d{` + strconv.Itoa(p.width()) + `,})` + suffix
	case SchemeDateTime:
		expr = prefix + `_(` + granularityPatterns[p.Granularity] + `)(?:\.(\d+))?` + suffix
	default:
		expr = prefix + suffix
	}
	return &Matcher{policy: p, re: regexp.MustCompile(expr)}
}

// Match reports whether base is one of this target's files.
func (m *Matcher) Match(base string) bool {
	return m.re.MatchString(base)
}

// Parse extracts the counter or bucket of base.
func (m *Matcher) Parse(base string) (Name, bool) {
	sub := m.re.FindStringSubmatch(base)
	if sub == nil {
		return Name{}, false
	}
	n := Name{Base: base, Compressed: sub[len(sub)-1] != ""}
	switch m.policy.Scheme {
	case SchemeNumberAscending, SchemeNumberDescending:
		c, err := strconv.Atoi(sub[1])
		if err != nil {
			return Name{}, false
		}
		n.Counter = c
	case SchemeDateTime:
		n.Bucket = sub[1]
		if sub[2] != "" {
			s, err := strconv.Atoi(sub[2])
			if err != nil {
				return Name{}, false
			}
			n.Seq = s
		}
	}
	return n, true
}

// ParseAll returns the parsed form of every matching name.
func (m *Matcher) ParseAll(bases []string) []Name {
	var out []Name
	for _, b := range bases {
		if n, ok := m.Parse(b); ok {
			out = append(out, n)
		}
	}
	return out
}

// IsCompressed reports whether base carries one of CompressedExtensions.
func IsCompressed(base string) bool {
	for _, e := range CompressedExtensions {
		if strings.HasSuffix(base, e) {
			return true
		}
	}
	return false
}
