package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Publisher sends a message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// RotationNotice is the message published for each processed file.
type RotationNotice struct {
	Target    string    `json:"target"`
	TargetID  string    `json:"target_id,omitempty"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	RotatedAt time.Time `json:"rotated_at"`
	Host      string    `json:"host,omitempty"`
	Startup   bool      `json:"startup,omitempty"`
}

// Notify publishes a RotationNotice for the file it is given. Placed after
// Compress in a chain it reports the compressed artifact.
type Notify struct {
	Publisher Publisher
	Subject   string
}

func (n *Notify) Name() string {
	return "notify"
}

func (n *Notify) Process(_ context.Context, f *File) error {
	if n.Publisher == nil {
		return errors.New("notify: no publisher")
	}
	size := f.Size
	if info, err := os.Stat(f.Path); err == nil {
		size = info.Size()
	}
	host, _ := os.Hostname()
	data, err := json.Marshal(RotationNotice{
		Target:    f.Target,
		TargetID:  f.TargetID,
		Path:      f.Path,
		Size:      size,
		RotatedAt: f.RotatedAt,
		Host:      host,
		Startup:   f.Startup,
	})
	if err != nil {
		return errors.Wrap(err, "encoding rotation notice")
	}
	if err := n.Publisher.Publish(n.Subject, data); err != nil {
		return errors.Wrap(err, "failed to publish")
	}
	return nil
}

// DialNATS connects to the server named by rawURL. The URL may carry user
// info and the query options max_reconnect, reconnect_wait (seconds) and tls.
// A path component is returned as the subject; it is empty when absent.
func DialNATS(rawURL, clientName string) (*nats.Conn, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", errors.Wrap(err, "invalid NATS URL")
	}
	if u.Scheme != "nats" && u.Scheme != "tls" {
		return nil, "", errors.Errorf("unsupported NATS scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, "", errors.New("NATS URL has no host")
	}
	if clientName == "" {
		clientName = "omnitarget"
	}

	opts := []nats.Option{nats.Name(clientName)}
	q := u.Query()
	if s := q.Get("max_reconnect"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			opts = append(opts, nats.MaxReconnects(v))
		}
	}
	if s := q.Get("reconnect_wait"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			opts = append(opts, nats.ReconnectWait(time.Duration(v)*time.Second))
		}
	}
	if tls, _ := strconv.ParseBool(q.Get("tls")); tls || u.Scheme == "tls" {
		opts = append(opts, nats.Secure())
	}
	if u.User != nil {
		pass, _ := u.User.Password()
		opts = append(opts, nats.UserInfo(u.User.Username(), pass))
	}

	conn, err := nats.Connect(fmt.Sprintf("nats://%s", u.Host), opts...)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to connect to NATS")
	}
	return conn, strings.Trim(u.Path, "/"), nil
}
