package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Failure reasons recorded on a WorkerResult. HTTP failures use the dynamic
// form "http_status_<code>".
const (
	ReasonConnectionRefused = "connection_refused"
	ReasonTimeout           = "timeout"
	ReasonTLSHandshake      = "tls_handshake_failed"
	ReasonDNSLookup         = "dns_lookup_failed"
	ReasonRequestFailed     = "request_failed"
)

// HTTPError marks a non-success response status. The body is not the payload
// we came for, so the download counts as failed rather than measured.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d", e.Status)
}

func (e *HTTPError) Reason() string {
	return fmt.Sprintf("http_status_%d", e.Status)
}

// failureReason maps a transport or protocol error to its recorded reason.
func failureReason(err error) string {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Reason()
	}
	var de *net.DNSError
	if errors.As(err, &de) {
		return ReasonDNSLookup
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonConnectionRefused
	}
	var rhe tls.RecordHeaderError
	if errors.As(err, &rhe) {
		return ReasonTLSHandshake
	}
	var cve *tls.CertificateVerificationError
	var uae x509.UnknownAuthorityError
	var hne x509.HostnameError
	if errors.As(err, &cve) || errors.As(err, &uae) || errors.As(err, &hne) {
		return ReasonTLSHandshake
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimeout
	}
	// net/http wraps handshake failures in plain errors in a few paths.
	if strings.Contains(err.Error(), "handshake") {
		return ReasonTLSHandshake
	}
	return ReasonRequestFailed
}

// finish classifies the download outcome. A read cut off by the session
// deadline is a recorded timeout, not a failure; an operator interrupt is
// treated the same way since the partial series is still valid.
func (w *WorkerResult) finish(ctx context.Context, err error) {
	switch {
	case err == nil:
		w.Status = StatusCompleted
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		w.Status = StatusTimedOut
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		w.Status = StatusTimedOut
		w.Reason = "interrupted"
	default:
		w.Status = StatusFailed
		w.Err = err
		w.Reason = failureReason(err)
	}
}
