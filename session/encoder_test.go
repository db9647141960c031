package session

import (
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sess := testSession(newClock(), "rt-1", "user-1")
	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SessionID != sess.SessionID || got.UserID != sess.UserID || got.RefreshTokenID != sess.RefreshTokenID {
		t.Fatalf("identity fields mismatch: %+v", got)
	}
	if got.AccessTokenID != sess.AccessTokenID || got.UserAgent != sess.UserAgent || got.IPAddress != sess.IPAddress {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) || !got.CreatedAt.Equal(sess.CreatedAt) || !got.AccessExpiresAt.Equal(sess.AccessExpiresAt) {
		t.Fatalf("timestamps mismatch: %+v", got)
	}
}

func TestDecodeKeepsZeroTimes(t *testing.T) {
	sess := testSession(newClock(), "rt-1", "user-1")
	sess.AccessExpiresAt = time.Time{}
	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.AccessExpiresAt.IsZero() {
		t.Fatalf("expected zero access expiry, got %v", got.AccessExpiresAt)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	data, err := Encode(testSession(newClock(), "rt-1", "user-1"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := map[string][]byte{
		"empty":     {},
		"version":   {9},
		"truncated": data[:len(data)-3],
		"trailing":  append(append([]byte{}, data...), 0),
	}
	for name, in := range cases {
		if _, err := Decode(in); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}

// FuzzSessionDecode feeds arbitrary bytes to the decoder. Goal: no panics.
func FuzzSessionDecode(f *testing.F) {
	encoded, err := Encode(testSession(newClock(), "rt-fuzz", "user-fuzz"))
	if err == nil {
		f.Add(encoded)
		f.Add(encoded[:10])
	}
	f.Add([]byte{})
	f.Add([]byte{1})
	f.Add([]byte{1, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		sess, err := Decode(data)
		if err != nil {
			return
		}
		if _, err := Encode(sess); err != nil {
			t.Fatalf("re-encode of decoded session failed: %v", err)
		}
	})
}
