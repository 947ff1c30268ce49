// Package crypto provides HMAC request authentication for the execution
// sidecar. Transaction signing happens inside the sidecar, never here.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names sent with every authenticated sidecar request.
const (
	HeaderKey       = "X-Convex-Key"
	HeaderTimestamp = "X-Convex-Timestamp"
	HeaderSignature = "X-Convex-Signature"
)

// HMACAuth holds the credentials for HMAC-authenticated requests.
type HMACAuth struct {
	Key    string // API key
	Secret string // shared secret, base64 or raw
}

// Headers returns the HTTP headers for a request. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64.
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	sig := hmacSHA256Base64(h.secretBytes(), ts+method+path+body)
	return map[string]string{
		HeaderKey:       h.Key,
		HeaderTimestamp: ts,
		HeaderSignature: sig,
	}
}

// Verify checks a signature produced by HeadersAt. maxSkew bounds how old
// the timestamp may be relative to now.
func (h *HMACAuth) Verify(method, path, body, ts, sig string, now time.Time, maxSkew time.Duration) bool {
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	skew := now.Sub(time.Unix(unix, 0))
	if skew < -maxSkew || skew > maxSkew {
		return false
	}
	want := hmacSHA256Base64(h.secretBytes(), ts+method+path+body)
	return hmac.Equal([]byte(want), []byte(sig))
}

// secretBytes decodes a base64 secret and falls back to the raw bytes, so a
// malformed secret yields a wrong signature rather than a panic.
func (h *HMACAuth) secretBytes() []byte {
	b, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		return []byte(h.Secret)
	}
	return b
}

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
