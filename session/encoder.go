package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"
)

const sessionFormatVersion = 1

// Encode serializes s into the binary blob stored by [RedisStore].
//
// Layout (v1): version byte, then SessionID, UserID, RefreshTokenID,
// AccessTokenID, UserAgent, IPAddress as uint16 length-prefixed strings, then
// AccessExpiresAt, CreatedAt, ExpiresAt as big-endian unix milliseconds.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(sessionFormatVersion)

	for _, field := range []string{s.SessionID, s.UserID, s.RefreshTokenID, s.AccessTokenID, s.UserAgent, s.IPAddress} {
		if len(field) > math.MaxUint16 {
			return nil, errors.New("session field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	for _, ts := range []time.Time{s.AccessExpiresAt, s.CreatedAt, s.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, unixMilli(ts)); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode].
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersion {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}
	for _, field := range []*string{&s.SessionID, &s.UserID, &s.RefreshTokenID, &s.AccessTokenID, &s.UserAgent, &s.IPAddress} {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	for _, ts := range []*time.Time{&s.AccessExpiresAt, &s.CreatedAt, &s.ExpiresAt} {
		var ms int64
		if err := binary.Read(reader, binary.BigEndian, &ms); err != nil {
			return nil, err
		}
		if ms != 0 {
			*ts = time.UnixMilli(ms).UTC()
		}
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session blob")
	}
	return s, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
