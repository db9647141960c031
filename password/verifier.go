package password

import (
	"strings"
)

// Verifier checks passwords against argon2id or bcrypt hashes and creates new
// argon2id hashes. It is safe for concurrent use.
type Verifier struct {
	argon *Argon2
}

// NewVerifier returns a Verifier that hashes with cfg.
func NewVerifier(cfg Argon2Config) (*Verifier, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Verifier{argon: a}, nil
}

// Hash returns a new argon2id hash of password.
func (v *Verifier) Hash(password string) (string, error) {
	return v.argon.Hash(password)
}

// Verify reports whether password matches encoded. A false result with a nil
// error means the password is wrong.
func (v *Verifier) Verify(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, argon2Prefix):
		return v.argon.Verify(password, encoded)
	case isBcrypt(encoded):
		return verifyBcrypt(password, encoded)
	case encoded == "":
		return false, ErrMalformedHash
	default:
		return false, ErrUnsupportedScheme
	}
}

// NeedsRehash reports whether encoded should be replaced by a fresh argon2id
// hash. Every bcrypt hash qualifies.
func (v *Verifier) NeedsRehash(encoded string) (bool, error) {
	if isBcrypt(encoded) {
		if _, err := bcryptCost(encoded); err != nil {
			return false, err
		}
		return true, nil
	}
	return v.argon.NeedsUpgrade(encoded)
}
