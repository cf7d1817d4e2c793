package processors

import (
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// Spec is the serialisable form of a chain entry.
type Spec struct {
	Kind          string        `koanf:"kind" json:"kind"` // compress, prune_age, prune_count, notify
	RunsOnStartup bool          `koanf:"on_startup" json:"on_startup"`
	Algorithm     string        `koanf:"algorithm" json:"algorithm,omitempty"`
	Level         int           `koanf:"level" json:"level,omitempty"`
	MaxAge        time.Duration `koanf:"max_age" json:"max_age,omitempty"`
	Keep          int           `koanf:"keep" json:"keep,omitempty"`
	URL           string        `koanf:"url" json:"url,omitempty"`
	Subject       string        `koanf:"subject" json:"subject,omitempty"`
}

// Deps are collaborators injected into built processors.
type Deps struct {
	Clock      clock.Clock
	Publisher  Publisher // used by notify entries without a URL
	ClientName string
}

// Validate checks a spec without building it.
func (s Spec) Validate() error {
	switch strings.ToLower(s.Kind) {
	case "compress":
		_, err := ParseAlgorithm(s.Algorithm)
		return err
	case "prune_age":
		if s.MaxAge <= 0 {
			return errors.New("prune_age needs a positive max_age")
		}
	case "prune_count":
		if s.Keep <= 0 {
			return errors.New("prune_count needs a positive keep")
		}
	case "notify":
		if s.Subject == "" && s.URL == "" {
			return errors.New("notify needs a subject")
		}
	default:
		return errors.Errorf("unknown processor kind %q", s.Kind)
	}
	return nil
}

// Build turns specs into chain entries. Notify entries with a URL dial their
// own NATS connection; the returned close function releases them.
func Build(specs []Spec, deps Deps) ([]Entry, func(), error) {
	var (
		entries []Entry
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	for i, s := range specs {
		if err := s.Validate(); err != nil {
			closeAll()
			return nil, nil, errors.Wrapf(err, "processor %d", i)
		}
		var p Processor
		switch strings.ToLower(s.Kind) {
		case "compress":
			alg, _ := ParseAlgorithm(s.Algorithm)
			p = &Compress{Algorithm: alg, Level: s.Level}
		case "prune_age":
			p = &PruneByAge{MaxAge: s.MaxAge, Clock: deps.Clock}
		case "prune_count":
			p = &PruneByCount{Keep: s.Keep}
		case "notify":
			n := &Notify{Publisher: deps.Publisher, Subject: s.Subject}
			if s.URL != "" {
				conn, subject, err := DialNATS(s.URL, deps.ClientName)
				if err != nil {
					closeAll()
					return nil, nil, errors.Wrapf(err, "processor %d", i)
				}
				closers = append(closers, conn.Close)
				n.Publisher = conn
				if n.Subject == "" {
					n.Subject = subject
				}
			}
			if n.Publisher == nil {
				closeAll()
				return nil, nil, errors.Errorf("processor %d: notify has no url and no publisher", i)
			}
			if n.Subject == "" {
				closeAll()
				return nil, nil, errors.Errorf("processor %d: notify has no subject", i)
			}
			p = n
		}
		entries = append(entries, Entry{Processor: p, RunsOnStartup: s.RunsOnStartup})
	}
	return entries, closeAll, nil
}
