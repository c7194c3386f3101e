package resolver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Target describes what a measurement session downloads. Immutable once built.
type Target struct {
	URL      string
	Host     string
	Port     string
	Scheme   string
	PinnedIP string // empty when the system resolver decides
}

// ResolutionError reports invalid operator input: a malformed URL or an
// override IP that is not a valid IPv4/IPv6 literal. Setup errors like this
// are fatal to the run, unlike per-worker download failures.
type ResolutionError struct {
	Input  string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve target %q: %s", e.Input, e.Reason)
}

// Resolve validates rawURL and the optional override IP. With an override,
// connections are later forced to that address while the Host header and TLS
// SNI keep the URL's hostname, so certificate validation is unaffected.
func Resolve(rawURL, overrideIP string) (*Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ResolutionError{Input: rawURL, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ResolutionError{Input: rawURL, Reason: "URL must start with http:// or https://"}
	}
	if u.Hostname() == "" {
		return nil, &ResolutionError{Input: rawURL, Reason: "URL has no hostname"}
	}

	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	t := &Target{
		URL:    rawURL,
		Host:   u.Hostname(),
		Port:   port,
		Scheme: u.Scheme,
	}

	if overrideIP != "" {
		ip := net.ParseIP(overrideIP)
		if ip == nil {
			return nil, &ResolutionError{Input: overrideIP, Reason: "not a valid IPv4/IPv6 literal"}
		}
		t.PinnedIP = ip.String()
	}

	return t, nil
}

// Lookup returns the IP the system resolver picks for the target host, for
// display before a run. With a pinned IP no lookup happens. The actual peer
// address of a session is captured from the connection instead.
func (t *Target) Lookup() string {
	if t.PinnedIP != "" {
		return t.PinnedIP
	}
	ips, err := net.LookupIP(t.Host)
	if err != nil || len(ips) == 0 {
		return "system-default"
	}
	return ips[0].String()
}

// Describe renders the target for chart titles and summaries.
func (t *Target) Describe() string {
	if t.PinnedIP != "" {
		return fmt.Sprintf("%s (IP: %s)", t.Host, t.PinnedIP)
	}
	return t.Host
}

// FileLabel is the host/IP fragment used in deterministic artifact names.
func (t *Target) FileLabel() string {
	label := t.Host
	if t.PinnedIP != "" {
		label += "_" + t.PinnedIP
	}
	// IPv6 literals contain colons, which make poor filenames.
	return strings.NewReplacer(":", "-", "[", "", "]", "").Replace(label)
}

// Client builds an HTTP client tuned for parallel streaming downloads, in the
// shape of a cloned default transport with raised connection limits. When the
// target is pinned, dials to the target hostname are rewritten to the pinned
// address; the request URL is untouched, so Host and SNI stay correct.
//
// No client-level timeout is set: the session deadline governs the whole
// download, and the dialer bounds connection establishment.
func (t *Target) Client(concurrency int) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	dial := dialer.DialContext
	if t.PinnedIP != "" {
		host := t.Host
		pinned := t.PinnedIP
		dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if h, p, err := net.SplitHostPort(addr); err == nil && h == host {
				addr = net.JoinHostPort(pinned, p)
			}
			return dialer.DialContext(ctx, network, addr)
		}
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = dial
	tr.MaxIdleConns = concurrency * 2
	tr.MaxIdleConnsPerHost = concurrency * 2
	tr.MaxConnsPerHost = 0 // each worker owns exactly one in-flight request
	tr.DisableCompression = true

	return &http.Client{Transport: tr}
}
