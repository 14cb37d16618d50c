package piv

import (
	"bytes"
	"crypto"
	"crypto/des"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/moov-io/bertlv"

	tokenkit "github.com/tokenkit/tokenkit-go"
	"github.com/tokenkit/tokenkit-go/apdu"
	"github.com/tokenkit/tokenkit-go/identifiers"
	"github.com/tokenkit/tokenkit-go/smartcard"
)

const (
	insVerify             = uint8(0x20)
	insChangeReference    = uint8(0x24)
	insResetRetry         = uint8(0x2C)
	insGenerateAsymmetric = uint8(0x47)
	insAuthenticate       = uint8(0x87)
	insGetData            = uint8(0xCB)
	insPutData            = uint8(0xDB)

	// Yubico extensions to the PIV standard.
	insGetSerial  = uint8(0xF8)
	insAttest     = uint8(0xF9)
	insReset      = uint8(0xFB)
	insGetVersion = uint8(0xFD)

	p2PIN = uint8(0x80)
	p2PUK = uint8(0x81)

	algTDES = uint8(0x03)

	// Certificate data object layout. PIV stores primitive values under
	// tags whose constructed bit happens to be set, so this layer reads
	// and writes them with the raw BER helpers.
	tagObjectID    = uint8(0x5C)
	tagCertData    = uint8(0x53)
	tagCertificate = uint8(0x70)
	tagCertInfo    = uint8(0x71)
	tagCertLrc     = uint8(0xFE)

	slotCardManagement = uint8(0x9B)

	maxPinLen = 8
)

var (
	// ErrAuthenticationFailed is returned when the device fails to prove
	// possession of the management key during mutual authentication.
	ErrAuthenticationFailed = errors.New("piv: management key authentication failed")

	// ErrCompressedCertificate is returned when a stored certificate uses
	// the optional compression the applet allows.
	ErrCompressedCertificate = errors.New("piv: compressed certificates are not supported")
)

// WrongPINError is a failed PIN verification, carrying the retry counter
// the device reported.
type WrongPINError struct {
	RemainingAttempts int
}

// Error implements the error interface.
func (e *WrongPINError) Error() string {
	return fmt.Sprintf("piv: wrong pin, %d attempts remaining", e.RemainingAttempts)
}

// WrongPUKError is a failed PUK verification, carrying the retry counter
// the device reported.
type WrongPUKError struct {
	RemainingAttempts int
}

// Error implements the error interface.
func (e *WrongPUKError) Error() string {
	return fmt.Sprintf("piv: wrong puk, %d attempts remaining", e.RemainingAttempts)
}

// Slot is a PIV key slot.
type Slot uint8

const (
	SlotAuthentication Slot = 0x9A
	SlotSignature      Slot = 0x9C
	SlotKeyManagement  Slot = 0x9D
	SlotCardAuth       Slot = 0x9E
	SlotAttestation    Slot = 0xF9
)

// objectID returns the data object holding the slot's certificate.
func (s Slot) objectID() []byte {
	switch s {
	case SlotAuthentication:
		return []byte{0x5F, 0xC1, 0x05}
	case SlotSignature:
		return []byte{0x5F, 0xC1, 0x0A}
	case SlotKeyManagement:
		return []byte{0x5F, 0xC1, 0x0B}
	case SlotCardAuth:
		return []byte{0x5F, 0xC1, 0x01}
	case SlotAttestation:
		return []byte{0x5F, 0xFF, 0x01}
	}
	return nil
}

// Session gives access to the PIV applet of a device.
type Session struct {
	card    *smartcard.Session
	version tokenkit.Version
}

// NewSession selects the PIV applet over an open smart card session.
func NewSession(card *smartcard.Session) (*Session, error) {
	if _, err := card.Select(identifiers.PivAID); err != nil {
		return nil, err
	}

	s := &Session{card: card}

	cmd := apdu.NewCommand(0x00, insGetVersion, 0x00, 0x00, nil)
	cmd.SetLe(0)
	resp, err := s.card.SendAndReceive(cmd)
	if err != nil {
		return nil, err
	}
	if s.version, err = tokenkit.ParseVersion(resp.Data); err != nil {
		return nil, err
	}

	return s, nil
}

// Version returns the applet firmware version.
func (s *Session) Version() tokenkit.Version {
	return s.version
}

// Serial returns the device serial number.
func (s *Session) Serial() (uint32, error) {
	cmd := apdu.NewCommand(0x00, insGetSerial, 0x00, 0x00, nil)
	cmd.SetLe(0)

	resp, err := s.card.SendAndReceive(cmd)
	if err != nil {
		return 0, err
	}
	if len(resp.Data) != 4 {
		return 0, fmt.Errorf("piv: serial record of %d bytes, want 4", len(resp.Data))
	}
	return binary.BigEndian.Uint32(resp.Data), nil
}

// VerifyPIN unlocks PIN protected operations for the rest of the session.
// A wrong PIN comes back as *WrongPINError with the device's remaining
// retry count.
func (s *Session) VerifyPIN(pin string) error {
	data, err := pinBytes(pin)
	if err != nil {
		return err
	}

	_, err = s.card.SendAndReceive(apdu.NewCommand(0x00, insVerify, 0x00, p2PIN, data))
	return wrapPINError(err)
}

// ChangePIN replaces the PIN, authenticating with the current one.
func (s *Session) ChangePIN(oldPIN, newPIN string) error {
	data, err := pinPair(oldPIN, newPIN)
	if err != nil {
		return err
	}

	_, err = s.card.SendAndReceive(apdu.NewCommand(0x00, insChangeReference, 0x00, p2PIN, data))
	return wrapPINError(err)
}

// ChangePUK replaces the PUK, authenticating with the current one.
func (s *Session) ChangePUK(oldPUK, newPUK string) error {
	data, err := pinPair(oldPUK, newPUK)
	if err != nil {
		return err
	}

	_, err = s.card.SendAndReceive(apdu.NewCommand(0x00, insChangeReference, 0x00, p2PUK, data))
	return wrapPUKError(err)
}

// UnblockPIN resets a blocked PIN using the PUK.
func (s *Session) UnblockPIN(puk, newPIN string) error {
	data, err := pinPair(puk, newPIN)
	if err != nil {
		return err
	}

	_, err = s.card.SendAndReceive(apdu.NewCommand(0x00, insResetRetry, 0x00, p2PIN, data))
	return wrapPUKError(err)
}

// AuthenticateManagementKey performs the mutual 3DES challenge/response
// unlocking key management operations. Both sides prove possession: the
// device decrypts our witness request, we verify its response to our
// challenge.
func (s *Session) AuthenticateManagementKey(key []byte) error {
	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return err
	}

	witnessReq, err := bertlv.Encode([]bertlv.TLV{{Tag: "7C", TLVs: []bertlv.TLV{{Tag: "80"}}}})
	if err != nil {
		return err
	}

	cmd := apdu.NewCommand(0x00, insAuthenticate, algTDES, slotCardManagement, witnessReq)
	cmd.SetLe(0)
	resp, err := s.card.SendAndReceive(cmd)
	if err != nil {
		return err
	}

	witness, err := findNestedValue(resp.Data, "7C", "80")
	if err != nil {
		return err
	}
	if len(witness) != des.BlockSize {
		return fmt.Errorf("piv: witness of %d bytes, want %d", len(witness), des.BlockSize)
	}

	decrypted := make([]byte, des.BlockSize)
	block.Decrypt(decrypted, witness)

	challenge := make([]byte, des.BlockSize)
	if _, err := rand.Read(challenge); err != nil {
		return err
	}

	proof, err := bertlv.Encode([]bertlv.TLV{{Tag: "7C", TLVs: []bertlv.TLV{
		{Tag: "80", Value: decrypted},
		{Tag: "81", Value: challenge},
	}}})
	if err != nil {
		return err
	}

	cmd = apdu.NewCommand(0x00, insAuthenticate, algTDES, slotCardManagement, proof)
	cmd.SetLe(0)
	resp, err = s.card.SendAndReceive(cmd)
	if err != nil {
		return err
	}

	deviceProof, err := findNestedValue(resp.Data, "7C", "82")
	if err != nil {
		return err
	}

	expected := make([]byte, des.BlockSize)
	block.Encrypt(expected, challenge)
	if !bytes.Equal(deviceProof, expected) {
		return ErrAuthenticationFailed
	}

	return nil
}

// GenerateKey generates a new asymmetric key in the given slot and
// returns its public half. Requires management key authentication.
func (s *Session) GenerateKey(slot Slot, keyType KeyType) (crypto.PublicKey, error) {
	data, err := bertlv.Encode([]bertlv.TLV{{Tag: "AC", TLVs: []bertlv.TLV{
		{Tag: "80", Value: []byte{uint8(keyType)}},
	}}})
	if err != nil {
		return nil, err
	}

	cmd := apdu.NewCommand(0x00, insGenerateAsymmetric, 0x00, uint8(slot), data)
	cmd.SetLe(0)

	resp, err := s.card.SendAndReceive(cmd)
	if err != nil {
		return nil, err
	}

	return parsePublicKey(keyType, resp.Data)
}

// Attest asks the device to produce an attestation certificate for the
// key in the given slot, proving it was generated on the device.
func (s *Session) Attest(slot Slot) (*x509.Certificate, error) {
	cmd := apdu.NewCommand(0x00, insAttest, uint8(slot), 0x00, nil)
	cmd.SetLe(0)

	resp, err := s.card.SendAndReceive(cmd)
	if err != nil {
		return nil, err
	}

	return x509.ParseCertificate(resp.Data)
}

// GetCertificate reads the certificate stored for a slot.
func (s *Session) GetCertificate(slot Slot) (*x509.Certificate, error) {
	cmd := apdu.NewCommand(0x00, insGetData, 0x3F, 0xFF, apdu.BerTlv(tagObjectID, slot.objectID()))
	cmd.SetLe(0)

	resp, err := s.card.SendAndReceive(cmd)
	if err != nil {
		return nil, err
	}

	tag, object, _, err := apdu.ReadBerTlv(resp.Data)
	if err != nil {
		return nil, err
	}
	if tag != tagCertData {
		return nil, fmt.Errorf("piv: unexpected data object tag %02X", tag)
	}

	var certDER []byte
	for rest := object; len(rest) > 0; {
		var value []byte
		tag, value, rest, err = apdu.ReadBerTlv(rest)
		if err != nil {
			return nil, err
		}

		switch tag {
		case tagCertificate:
			certDER = value
		case tagCertInfo:
			if len(value) > 0 && value[0] != 0 {
				return nil, ErrCompressedCertificate
			}
		}
	}

	if certDER == nil {
		return nil, fmt.Errorf("piv: no certificate stored for slot %02X", uint8(slot))
	}

	return x509.ParseCertificate(certDER)
}

// PutCertificate stores a certificate for a slot. Requires management key
// authentication. Certificates routinely exceed one frame; the session
// chains the command transparently.
func (s *Session) PutCertificate(slot Slot, cert *x509.Certificate) error {
	object := apdu.BerTlv(tagCertificate, cert.Raw)
	object = append(object, apdu.BerTlv(tagCertInfo, []byte{0x00})...)
	object = append(object, apdu.BerTlv(tagCertLrc, nil)...)

	data := apdu.BerTlv(tagObjectID, slot.objectID())
	data = append(data, apdu.BerTlv(tagCertData, object)...)

	_, err := s.card.SendAndReceive(apdu.NewCommand(0x00, insPutData, 0x3F, 0xFF, data))
	return err
}

// Reset wipes all keys and certificates and restores the default PIN, PUK
// and management key. The applet only accepts it once PIN and PUK are
// both blocked.
func (s *Session) Reset() error {
	_, err := s.card.SendAndReceive(apdu.NewCommand(0x00, insReset, 0x00, 0x00, nil))
	return err
}

func pinBytes(pin string) ([]byte, error) {
	if len(pin) == 0 || len(pin) > maxPinLen {
		return nil, fmt.Errorf("piv: pin must be 1..%d bytes, got %d", maxPinLen, len(pin))
	}

	data := bytes.Repeat([]byte{0xFF}, maxPinLen)
	copy(data, pin)
	return data, nil
}

func pinPair(first, second string) ([]byte, error) {
	a, err := pinBytes(first)
	if err != nil {
		return nil, err
	}
	b, err := pinBytes(second)
	if err != nil {
		return nil, err
	}
	return append(a, b...), nil
}

func wrapPINError(err error) error {
	if attempts, ok := retryCount(err); ok {
		return &WrongPINError{RemainingAttempts: attempts}
	}
	return err
}

func wrapPUKError(err error) error {
	if attempts, ok := retryCount(err); ok {
		return &WrongPUKError{RemainingAttempts: attempts}
	}
	return err
}

func retryCount(err error) (int, bool) {
	var status *apdu.StatusError
	if !errors.As(err, &status) {
		return 0, false
	}
	if status.Sw == apdu.SwAuthMethodBlocked {
		return 0, true
	}
	return apdu.RemainingAttempts(status.Sw)
}

// parsePublicKey decodes the 0x7F49 record returned by key generation.
func parsePublicKey(keyType KeyType, data []byte) (crypto.PublicKey, error) {
	switch keyType {
	case RSA1024, RSA2048:
		modulus, err := findNestedValue(data, "7F49", "81")
		if err != nil {
			return nil, err
		}
		exponent, err := findNestedValue(data, "7F49", "82")
		if err != nil {
			return nil, err
		}
		e := new(big.Int).SetBytes(exponent)
		if !e.IsInt64() {
			return nil, fmt.Errorf("piv: rsa exponent does not fit an int64")
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: int(e.Int64())}, nil

	case ECCP256, ECCP384:
		point, err := findNestedValue(data, "7F49", "86")
		if err != nil {
			return nil, err
		}

		curve := elliptic.P256()
		if keyType == ECCP384 {
			curve = elliptic.P384()
		}

		size := (curve.Params().BitSize + 7) / 8
		if len(point) != 1+2*size || point[0] != 0x04 {
			return nil, fmt.Errorf("piv: malformed ec point of %d bytes", len(point))
		}

		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(point[1 : 1+size]),
			Y:     new(big.Int).SetBytes(point[1+size:]),
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, keyType)
}

// findNestedValue looks up outer/inner in a BER-TLV record. The outer tag
// may be encoded constructed or primitive; primitive values are decoded a
// second time.
func findNestedValue(data []byte, outer, inner string) ([]byte, error) {
	tlvs, err := bertlv.Decode(data)
	if err != nil {
		return nil, err
	}

	parent, ok := findTLV(tlvs, outer)
	if !ok {
		return nil, fmt.Errorf("piv: tag %s not found", outer)
	}

	nested := parent.TLVs
	if len(nested) == 0 {
		if nested, err = bertlv.Decode(parent.Value); err != nil {
			return nil, err
		}
	}

	child, ok := findTLV(nested, inner)
	if !ok {
		return nil, fmt.Errorf("piv: tag %s not found inside %s", inner, outer)
	}
	return child.Value, nil
}

func findTLV(tlvs []bertlv.TLV, tag string) (bertlv.TLV, bool) {
	for _, t := range tlvs {
		if strings.EqualFold(t.Tag, tag) {
			return t, true
		}
	}
	return bertlv.TLV{}, false
}
