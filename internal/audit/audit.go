package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

// Entry represents an audit log entry.
type Entry struct {
	ID        string
	Actor     string
	Role      string
	Action    string
	StoreID   int
	TargetID  string
	Metadata  json.RawMessage
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// WithRequest stamps the network fields from the originating request.
func (e Entry) WithRequest(r *http.Request) Entry {
	if r == nil {
		return e
	}
	e.IP = clientIP(r)
	e.UserAgent = r.UserAgent()
	return e
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address with its port stripped.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "audit-" + hex.EncodeToString(buf)
}

// StdLogger writes audit entries to a standard logger as single lines.
type StdLogger struct {
	logger *log.Logger
}

// NewStdLogger constructs a StdLogger.
func NewStdLogger(logger *log.Logger) *StdLogger {
	return &StdLogger{logger: logger}
}

// Log writes one entry.
func (l *StdLogger) Log(ctx context.Context, entry Entry) error {
	if l == nil || l.logger == nil {
		return nil
	}
	l.logger.Printf("audit: id=%s actor=%s role=%s action=%s store=%d target=%s ip=%s meta=%s",
		entry.ID, entry.Actor, entry.Role, entry.Action, entry.StoreID, entry.TargetID, entry.IP, string(entry.Metadata))
	return nil
}
