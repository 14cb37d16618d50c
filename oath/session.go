package oath

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	tokenkit "github.com/tokenkit/tokenkit-go"
	"github.com/tokenkit/tokenkit-go/apdu"
	"github.com/tokenkit/tokenkit-go/identifiers"
	"github.com/tokenkit/tokenkit-go/smartcard"
)

const (
	accessKeyLen        = 16
	accessKeyIterations = 1000
	challengeLen        = 8
)

var (
	// ErrAuthenticationFailed is returned by Validate when the access key
	// does not match the one set on the device, or when the device's own
	// proof of key possession does not verify.
	ErrAuthenticationFailed = errors.New("oath: authentication failed")

	// ErrNoAccessKey is returned by Validate when the applet has no
	// access key set and nothing can be validated against.
	ErrNoAccessKey = errors.New("oath: no access key is set")
)

// CredentialCode pairs a credential with the code calculated for it in a
// CALCULATE_ALL batch. Code is nil whenever the device could not produce
// one in bulk: HOTP credentials (never calculated in bulk to avoid
// burning counters), credentials requiring touch, and TOTP credentials
// with a non-default period, which need an individual Calculate call.
type CredentialCode struct {
	Credential *Credential
	Code       *Code
}

// Session gives access to the OATH applet of a device.
type Session struct {
	card *smartcard.Session

	version   tokenkit.Version
	deviceID  string
	salt      []byte
	challenge []byte
}

// NewSession selects the OATH applet over an open smart card session and
// decodes its select response.
func NewSession(card *smartcard.Session) (*Session, error) {
	// The applet serves continuation data through its own instruction.
	card.SetGetResponseIns(insSendRemaining)

	resp, err := card.Select(identifiers.OathAID)
	if err != nil {
		return nil, err
	}

	rawVersion, err := apdu.FindTag(resp.Data, tagVersion)
	if err != nil {
		return nil, err
	}
	version, err := tokenkit.ParseVersion(rawVersion)
	if err != nil {
		return nil, err
	}

	salt, err := apdu.FindTag(resp.Data, tagName)
	if err != nil {
		return nil, err
	}

	s := &Session{
		card:     card,
		version:  version,
		salt:     salt,
		deviceID: deriveDeviceID(salt),
	}

	// A challenge in the select response means an access key is set and
	// the session must be validated before credentials are usable.
	if challenge, err := apdu.FindTag(resp.Data, tagChallenge); err == nil && len(challenge) > 0 {
		s.challenge = challenge
	}

	return s, nil
}

// Version returns the applet version reported during select.
func (s *Session) Version() tokenkit.Version {
	return s.version
}

// DeviceID returns the stable identifier derived from the device's OATH
// salt. It keys credential identity together with the credential id.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// HasAccessKey reports whether the applet demands validation before use.
func (s *Session) HasAccessKey() bool {
	return s.challenge != nil
}

// DeriveAccessKey turns a password into the access key for this
// particular device: PBKDF2-SHA1 over the NFKD-normalized password,
// salted with the device's OATH salt.
func (s *Session) DeriveAccessKey(password string) []byte {
	normalized := norm.NFKD.Bytes([]byte(password))
	return pbkdf2.Key(normalized, s.salt, accessKeyIterations, accessKeyLen, sha1.New)
}

// Validate unlocks the session with the given access key and verifies the
// device's own proof of key possession.
func (s *Session) Validate(accessKey []byte) error {
	if s.challenge == nil {
		return ErrNoAccessKey
	}

	clientChallenge := make([]byte, challengeLen)
	if _, err := rand.Read(clientChallenge); err != nil {
		return err
	}

	data := apdu.Tlv(tagFullResponse, hmacSHA1(accessKey, s.challenge))
	data = append(data, apdu.Tlv(tagChallenge, clientChallenge)...)

	cmd := apdu.NewCommand(0x00, insValidate, 0x00, 0x00, data)
	cmd.SetLe(0)

	resp, err := s.card.SendAndReceive(cmd)
	if err != nil {
		var status *apdu.StatusError
		if errors.As(err, &status) && (status.Sw == apdu.SwWrongData || status.Sw == apdu.SwSecurityConditionNotSatisfied) {
			return ErrAuthenticationFailed
		}
		return err
	}

	deviceResponse, err := apdu.FindTag(resp.Data, tagFullResponse)
	if err != nil {
		return err
	}
	if !hmac.Equal(deviceResponse, hmacSHA1(accessKey, clientChallenge)) {
		return ErrAuthenticationFailed
	}

	s.challenge = nil
	return nil
}

// SetPassword derives an access key from the password and sets it on the
// device.
func (s *Session) SetPassword(password string) error {
	return s.SetAccessKey(s.DeriveAccessKey(password))
}

// SetAccessKey protects the applet with the given 16 byte key. The device
// is sent a proof exchange along with the key so it can reject keys it
// would not be able to validate later.
func (s *Session) SetAccessKey(accessKey []byte) error {
	if len(accessKey) != accessKeyLen {
		return fmt.Errorf("oath: access key must be %d bytes, got %d", accessKeyLen, len(accessKey))
	}

	challenge := make([]byte, challengeLen)
	if _, err := rand.Read(challenge); err != nil {
		return err
	}

	data := apdu.Tlv(tagKey, append([]byte{uint8(TOTP) | uint8(HmacSHA1)}, accessKey...))
	data = append(data, apdu.Tlv(tagChallenge, challenge)...)
	data = append(data, apdu.Tlv(tagFullResponse, hmacSHA1(accessKey, challenge))...)

	_, err := s.card.SendAndReceive(apdu.NewCommand(0x00, insSetCode, 0x00, 0x00, data))
	return err
}

// RemoveAccessKey removes the access key, leaving the applet unprotected.
func (s *Session) RemoveAccessKey() error {
	_, err := s.card.SendAndReceive(apdu.NewCommand(0x00, insSetCode, 0x00, 0x00, apdu.Tlv(tagKey, nil)))
	return err
}

// List returns all stored credentials. Touch requirements are not part of
// LIST records and report false; CalculateAll fills them in.
func (s *Session) List() ([]*Credential, error) {
	cmd := apdu.NewCommand(0x00, insList, 0x00, 0x00, nil)
	cmd.SetLe(0)

	resp, err := s.card.SendAndReceive(cmd)
	if err != nil {
		return nil, err
	}

	var credentials []*Credential
	buf := resp.Data
	for len(buf) > 0 {
		tag, value, rest, err := apdu.ReadTlv(buf)
		if err != nil {
			return nil, err
		}
		if tag != tagNameList {
			return nil, fmt.Errorf("oath: unexpected tag 0x%02x in list response", tag)
		}

		credential, err := parseListRecord(s.deviceID, value)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
		buf = rest
	}

	return credentials, nil
}

// CalculateAll calculates codes for all stored TOTP credentials in one
// exchange, against the default period window containing at.
func (s *Session) CalculateAll(at time.Time) ([]*CredentialCode, error) {
	data := apdu.Tlv(tagChallenge, timeChallenge(at, DefaultPeriod))

	cmd := apdu.NewCommand(0x00, insCalculateAll, 0x00, p2CalculateTruncate, data)
	cmd.SetLe(0)

	resp, err := s.card.SendAndReceive(cmd)
	if err != nil {
		return nil, err
	}

	var results []*CredentialCode
	buf := resp.Data
	for len(buf) > 0 {
		tag, id, rest, err := apdu.ReadTlv(buf)
		if err != nil {
			return nil, err
		}
		if tag != tagName {
			return nil, fmt.Errorf("oath: expected a name record, got tag 0x%02x", tag)
		}

		responseTag, value, rest, err := apdu.ReadTlv(rest)
		if err != nil {
			return nil, err
		}
		buf = rest

		credential, err := parseCalculateRecord(s.deviceID, id, responseTag)
		if err != nil {
			return nil, err
		}

		result := &CredentialCode{Credential: credential}
		// Only a truncated response for the window we asked about carries
		// a usable code; touch records in particular have no code yet.
		if responseTag == tagTruncatedResponse && credential.Period == DefaultPeriod {
			if result.Code, err = totpCode(value, at, DefaultPeriod); err != nil {
				return nil, err
			}
		}
		results = append(results, result)
	}

	return results, nil
}

// Calculate calculates a code for a single credential.
func (s *Session) Calculate(credential *Credential, at time.Time) (*Code, error) {
	data := apdu.Tlv(tagName, credential.ID)
	if credential.Type == TOTP {
		data = append(data, apdu.Tlv(tagChallenge, timeChallenge(at, credential.Period))...)
	} else {
		data = append(data, apdu.Tlv(tagChallenge, nil)...)
	}

	cmd := apdu.NewCommand(0x00, insCalculate, 0x00, p2CalculateTruncate, data)
	cmd.SetLe(0)

	resp, err := s.card.SendAndReceive(cmd)
	if err != nil {
		return nil, err
	}

	value, err := apdu.FindTag(resp.Data, tagTruncatedResponse)
	if err != nil {
		return nil, err
	}

	if credential.Type == HOTP {
		return hotpCode(value)
	}
	return totpCode(value, at, credential.Period)
}

// Put stores a new credential, or overwrites the one already stored under
// the same id.
func (s *Session) Put(data CredentialData) (*Credential, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}

	id := data.ID()
	key := append([]byte{uint8(data.Type) | uint8(data.algorithm()), uint8(data.digits())}, prepareSecret(data.Secret, data.algorithm())...)

	body := apdu.Tlv(tagName, id)
	body = append(body, apdu.Tlv(tagKey, key)...)
	if data.TouchRequired {
		// The property record is a bare tag/value pair without a length.
		body = append(body, tagProperty, propertyRequireTouch)
	}
	if data.Type == HOTP && data.Counter > 0 {
		imf := make([]byte, 4)
		binary.BigEndian.PutUint32(imf, uint32(data.Counter))
		body = append(body, apdu.Tlv(tagImf, imf)...)
	}

	if _, err := s.card.SendAndReceive(apdu.NewCommand(0x00, insPut, 0x00, 0x00, body)); err != nil {
		return nil, err
	}

	credential := newCredential(s.deviceID, id, data.Type)
	credential.TouchRequired = data.TouchRequired
	return credential, nil
}

// Delete removes the credential stored under the given id.
func (s *Session) Delete(id []byte) error {
	_, err := s.card.SendAndReceive(apdu.NewCommand(0x00, insDelete, 0x00, 0x00, apdu.Tlv(tagName, id)))
	return err
}

// Reset wipes all credentials and the access key, then reselects the
// applet: the device generates a fresh salt, so the device id changes.
func (s *Session) Reset() error {
	if _, err := s.card.SendAndReceive(apdu.NewCommand(0x00, insReset, p1Reset, p2Reset, nil)); err != nil {
		return err
	}

	fresh, err := NewSession(s.card)
	if err != nil {
		return err
	}
	*s = *fresh
	return nil
}

// deriveDeviceID condenses the device's OATH salt into a printable stable
// identifier.
func deriveDeviceID(salt []byte) string {
	sum := sha256.Sum256(salt)
	return base64.RawStdEncoding.EncodeToString(sum[:16])
}

func hmacSHA1(key, message []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}
