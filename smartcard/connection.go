// Package smartcard drives a single on-device application over an
// exclusively owned transport connection, framing commands and
// reassembling chained responses.
package smartcard

import "errors"

// ErrAlreadyInUse is reported by transports when an exclusive connection
// could not be acquired within their wait bound because another session
// holds the device. It is distinct from other transport failures so
// callers can retry or surface the conflict.
var ErrAlreadyInUse = errors.New("smartcard: connection already in use")

// Connection is a scoped, exclusively held channel to a card-class
// device. Transmit exchanges one raw command buffer for one raw response
// buffer; at most one command is ever in flight. Implementations belong
// to the platform transport layer (USB, NFC, PC/SC), not to this module.
type Connection interface {
	Transmit(command []byte) ([]byte, error)
	Close() error
}
