package seclog

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"io"
	"sort"

	"golang.org/x/crypto/hkdf"
)

// eventSigner produces HMAC-SHA256 signatures over canonicalized events so a
// log consumer can detect tampering. The signing key is derived from the
// configured secret with HKDF-SHA256, separating it from any other use of the
// same secret.
type eventSigner struct {
	signingKey []byte
}

func newEventSigner(secret []byte) *eventSigner {
	info := []byte("security-event-signing-v1")
	kdf := hkdf.New(sha256.New, secret, nil, info)

	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, signingKey); err != nil {
		// HKDF over SHA-256 cannot fail for a 32-byte read.
		panic(err)
	}
	return &eventSigner{signingKey: signingKey}
}

// Sign returns the HMAC-SHA256 signature of the canonicalized event.
func (s *eventSigner) Sign(event Event) []byte {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write(canonicalize(event))
	return mac.Sum(nil)
}

// Verify reports whether signature matches the canonicalized event.
func (s *eventSigner) Verify(event Event, signature []byte) bool {
	expected := s.Sign(event)
	return hmac.Equal(signature, expected)
}

// canonicalize converts an event to a deterministic byte representation.
// Variable-length fields are length-prefixed to prevent ambiguity; metadata
// keys are serialized in sorted order.
func canonicalize(event Event) []byte {
	buf := make([]byte, 0, 512)

	buf = appendLengthPrefixed(buf, []byte(event.Level))
	buf = appendLengthPrefixed(buf, []byte(event.Name))
	buf = appendLengthPrefixed(buf, []byte(event.Category))
	buf = appendLengthPrefixed(buf, []byte(event.CorrelationID))

	timeBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(timeBytes, uint64(event.Timestamp.UnixNano()))
	buf = append(buf, timeBytes...)

	keys := make([]string, 0, len(event.Metadata))
	for key := range event.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		buf = appendLengthPrefixed(buf, []byte(key))
		valueBytes, err := json.Marshal(event.Metadata[key])
		if err != nil {
			valueBytes = nil
		}
		buf = appendLengthPrefixed(buf, valueBytes)
	}

	return buf
}

// appendLengthPrefixed adds a 4-byte big-endian length prefix followed by data.
func appendLengthPrefixed(buf []byte, data []byte) []byte {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))
	buf = append(buf, length...)
	buf = append(buf, data...)
	return buf
}
