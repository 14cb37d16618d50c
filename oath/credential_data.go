package oath

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
)

// maxIDLen is the largest credential id the applet stores.
const maxIDLen = 64

// minSecretLen pads very short secrets up to the applet's minimum HMAC
// key size.
const minSecretLen = 14

// CredentialData describes a credential about to be provisioned.
type CredentialData struct {
	Issuer string
	Name   string
	Type   Type
	// Algorithm defaults to HmacSHA1 when unset.
	Algorithm Algorithm
	// Secret is the raw HMAC key. Secrets longer than the hash block size
	// are shortened the way RFC 2104 prescribes before upload.
	Secret []byte
	// Digits defaults to 6.
	Digits int
	// Period defaults to DefaultPeriod and only applies to TOTP.
	Period int
	// Counter is the initial moving factor of an HOTP credential.
	Counter       int
	TouchRequired bool
}

// ID returns the identifier the credential will be stored under.
func (d *CredentialData) ID() []byte {
	return FormatID(d.Issuer, d.Name, d.Type, d.period())
}

func (d *CredentialData) period() int {
	if d.Period == 0 {
		return DefaultPeriod
	}
	return d.Period
}

func (d *CredentialData) digits() int {
	if d.Digits == 0 {
		return 6
	}
	return d.Digits
}

func (d *CredentialData) algorithm() Algorithm {
	if d.Algorithm == 0 {
		return HmacSHA1
	}
	return d.Algorithm
}

func (d *CredentialData) validate() error {
	if d.Name == "" {
		return fmt.Errorf("oath: credential name must not be empty")
	}
	if len(d.Secret) == 0 {
		return fmt.Errorf("oath: credential secret must not be empty")
	}
	if _, err := parseType(uint8(d.Type)); err != nil {
		return err
	}
	if _, err := parseAlgorithm(uint8(d.algorithm())); err != nil {
		return err
	}
	if d.digits() < 6 || d.digits() > 8 {
		return fmt.Errorf("oath: %d digits out of the supported 6..8 range", d.digits())
	}
	if n := len(d.ID()); n > maxIDLen {
		return fmt.Errorf("oath: credential id of %d bytes exceeds the %d byte limit", n, maxIDLen)
	}
	return nil
}

// prepareSecret normalizes a raw secret into the key material uploaded to
// the device: secrets longer than the hash block size are replaced by
// their digest, short ones are zero padded to the applet minimum.
func prepareSecret(secret []byte, alg Algorithm) []byte {
	var blockSize int
	var newHash func() hash.Hash

	switch alg {
	case HmacSHA256:
		blockSize, newHash = sha256.BlockSize, sha256.New
	case HmacSHA512:
		blockSize, newHash = sha512.BlockSize, sha512.New
	default:
		blockSize, newHash = sha1.BlockSize, sha1.New
	}

	if len(secret) > blockSize {
		h := newHash()
		h.Write(secret)
		secret = h.Sum(nil)
	}

	if len(secret) < minSecretLen {
		padded := make([]byte, minSecretLen)
		copy(padded, secret)
		return padded
	}

	return append([]byte{}, secret...)
}
