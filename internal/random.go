package internal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

var pow10 = [...]int64{1, 10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000, 1_000_000_000, 10_000_000_000}

// NewOTP returns a zero-padded numeric code with the given number of digits,
// drawn uniformly from [0, 10^digits) by crypto/rand.
func NewOTP(digits int) (string, error) {
	return newOTPFrom(rand.Reader, digits)
}

func newOTPFrom(r io.Reader, digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	n, err := rand.Int(r, big.NewInt(pow10[digits]))
	if err != nil {
		return "", err
	}

	otp := fmt.Sprintf("%0*d", digits, n.Int64())
	if len(otp) != digits {
		return "", errors.New("invalid otp generation length")
	}
	return otp, nil
}
