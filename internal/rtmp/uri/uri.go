// Package uri parses and anonymises the RTMP publish target URI
// (spec.md §6.1): rtmp[s]://host[:port]/app/key, with key treated as the
// remainder of the path (it may itself contain slashes).
package uri

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/riverline/rtmp-publish/internal/errors"
)

const defaultPort = 1935

// URI is a parsed RTMP publish target.
type URI struct {
	Secure bool
	Host   string
	Port   int
	App    string
	Key    string
}

// Parse parses an rtmp[s]://host[:port]/app/key URI. A missing scheme,
// unsupported scheme, or missing app/key component is a *errors.ProtocolError.
func Parse(raw string) (*URI, error) {
	secure, rest, ok := splitScheme(raw)
	if !ok {
		return nil, errors.NewProtocolError("uri.parse", fmt.Errorf("unsupported or missing scheme in %q", raw))
	}

	hostPort, path, _ := strings.Cut(rest, "/")
	if hostPort == "" {
		return nil, errors.NewProtocolError("uri.parse", fmt.Errorf("missing host in %q", raw))
	}

	host, port, err := splitHostPort(hostPort)
	if err != nil {
		return nil, errors.NewProtocolError("uri.parse", err)
	}

	app, key, ok := strings.Cut(path, "/")
	if !ok || app == "" || key == "" {
		return nil, errors.NewProtocolError("uri.parse", fmt.Errorf("missing app/key in %q", raw))
	}

	return &URI{Secure: secure, Host: host, Port: port, App: app, Key: key}, nil
}

// TcURL reconstructs the tcUrl sent in the connect command: scheme://host:port/app.
func (u *URI) TcURL() string {
	scheme := "rtmp"
	if u.Secure {
		scheme = "rtmps"
	}
	return fmt.Sprintf("%s://%s:%d/%s", scheme, u.Host, u.Port, u.App)
}

// String reconstructs the full publish URI: scheme://host:port/app/key.
func (u *URI) String() string {
	return fmt.Sprintf("%s/%s", u.TcURL(), u.Key)
}

func splitScheme(raw string) (secure bool, rest string, ok bool) {
	switch {
	case strings.HasPrefix(raw, "rtmps://"):
		return true, strings.TrimPrefix(raw, "rtmps://"), true
	case strings.HasPrefix(raw, "rtmp://"):
		return false, strings.TrimPrefix(raw, "rtmp://"), true
	default:
		return false, "", false
	}
}

func splitHostPort(hostPort string) (host string, port int, err error) {
	h, p, ok := strings.Cut(hostPort, ":")
	if !ok {
		return hostPort, defaultPort, nil
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", p, err)
	}
	return h, n, nil
}

// Anonymize rewrites a publish URI so that app and key keep their first and
// last two characters and every intermediate character is replaced with
// '*'; segments shorter than 4 characters are returned verbatim. Only
// rtmp:// or rtmps:// inputs succeed.
func Anonymize(raw string) (string, error) {
	u, err := Parse(raw)
	if err != nil {
		return "", err
	}
	u.App = anonymizeSegment(u.App)
	u.Key = anonymizeSegment(u.Key)
	return u.String(), nil
}

func anonymizeSegment(s string) string {
	n := len(s)
	if n < 4 {
		return s
	}
	return s[:2] + strings.Repeat("*", n-4) + s[n-2:]
}
