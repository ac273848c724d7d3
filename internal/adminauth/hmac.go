// Package adminauth verifies HMAC-signed admin requests: four headers, a
// replay window, a body digest, and a canonical string signature.
package adminauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Required request headers.
const (
	HeaderSignature = "X-Admin-Signature"
	HeaderTimestamp = "X-Admin-Timestamp"
	HeaderUserID    = "X-Admin-User-Id"
	HeaderBodyHash  = "X-Admin-Body-Hash"
)

// ReplayWindow bounds the accepted clock skew on either side, inclusive.
const ReplayWindow = 30 * time.Second

// Verification outcomes. Transports map ErrUnauthorized to 401, ErrBadPath
// to 400 and ErrNotConfigured to 503.
var (
	ErrUnauthorized  = errors.New("admin signature rejected")
	ErrBadPath       = errors.New("admin path rejected")
	ErrNotConfigured = errors.New("admin secret not configured")
)

// Request carries the signed parts of an incoming admin call.
type Request struct {
	Method    string
	Path      string
	RawQuery  string
	Timestamp string
	UserID    string
	BodyHash  string
	Signature string
	Body      []byte
}

// Verifier checks admin request signatures against a shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier builds a verifier. An empty secret yields ErrNotConfigured on
// every Verify call rather than an open door.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify runs the full check chain and returns the authenticated admin user
// id. Every failure mode maps to one of the package error sentinels; the
// wrapped detail is for logs, never for clients.
func (v *Verifier) Verify(r Request) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNotConfigured
	}
	if r.Signature == "" || r.Timestamp == "" || r.UserID == "" || r.BodyHash == "" {
		return "", fmt.Errorf("%w: missing header", ErrUnauthorized)
	}

	ts, err := strconv.ParseInt(r.Timestamp, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad timestamp", ErrUnauthorized)
	}
	skew := v.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if float64(skew) > ReplayWindow.Seconds() {
		return "", fmt.Errorf("%w: timestamp outside replay window", ErrUnauthorized)
	}

	bodySum := sha256.Sum256(r.Body)
	bodyHex := hex.EncodeToString(bodySum[:])
	if !hmac.Equal([]byte(bodyHex), []byte(strings.ToLower(r.BodyHash))) {
		return "", fmt.Errorf("%w: body hash mismatch", ErrUnauthorized)
	}

	path, err := NormalizePath(r.Path)
	if err != nil {
		return "", err
	}
	canonical := strings.Join([]string{
		strings.ToUpper(r.Method),
		path,
		SortQuery(r.RawQuery),
		r.Timestamp,
		r.UserID,
		bodyHex,
	}, "|")

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(canonical))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(r.Signature))) {
		return "", fmt.Errorf("%w: signature mismatch", ErrUnauthorized)
	}
	return r.UserID, nil
}

// NormalizePath lowercases, collapses consecutive slashes, and strips the
// trailing slash (keeping root). Any ".." segment is rejected.
func NormalizePath(p string) (string, error) {
	p = strings.ToLower(p)
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	if p == "" {
		p = "/"
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: traversal segment", ErrBadPath)
		}
	}
	return p, nil
}

// SortQuery orders raw query pairs lexicographically. Pairs are compared as
// whole "k=v" strings, matching how the client signs.
func SortQuery(raw string) string {
	if raw == "" {
		return ""
	}
	pairs := strings.Split(raw, "&")
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// Sign produces the signature a client must send for the given request
// parts. Shared with tests and operational tooling.
func Sign(secret string, method, path, rawQuery, timestamp, userID string, body []byte) (signature, bodyHash string, err error) {
	bodySum := sha256.Sum256(body)
	bodyHash = hex.EncodeToString(bodySum[:])
	normPath, err := NormalizePath(path)
	if err != nil {
		return "", "", err
	}
	canonical := strings.Join([]string{
		strings.ToUpper(method),
		normPath,
		SortQuery(rawQuery),
		timestamp,
		userID,
		bodyHash,
	}, "|")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil)), bodyHash, nil
}
