package smartcard

import (
	"errors"
	"fmt"

	"github.com/tokenkit/tokenkit-go/apdu"
)

const (
	claISO = uint8(0x00)

	insSelect      = uint8(0xA4)
	insGetResponse = uint8(0xC0)

	p1SelectByName = uint8(0x04)
)

var (
	// ErrSessionClosed is returned when an operation is attempted on a
	// closed session. Closed sessions never reopen.
	ErrSessionClosed = errors.New("smartcard: session is closed")

	// ErrApplicationNotFound is returned by Select when the requested
	// application is not present on the device.
	ErrApplicationNotFound = errors.New("smartcard: application not found")
)

// Session owns a Connection for its lifetime and exchanges command APDUs
// with one selected application. It handles command chaining in both
// directions and turns non-success status words into errors; it knows
// nothing about the semantics of any particular applet.
//
// A Session is not safe for concurrent use. Callers needing concurrency
// run independent sessions over independent connections.
type Session struct {
	conn Connection

	extended       bool
	getResponseIns uint8
	closed         bool
}

// NewSession wraps an acquired Connection. The caller hands over
// ownership: the connection is released by Close and must not be used
// elsewhere afterwards.
func NewSession(conn Connection) *Session {
	return &Session{
		conn:           conn,
		getResponseIns: insGetResponse,
	}
}

// SetExtendedLength switches the session to extended length frames, which
// carry up to 64 KiB in one exchange instead of chaining short frames.
// Only enable it for devices that report support.
func (s *Session) SetExtendedLength(enabled bool) {
	s.extended = enabled
}

// SetGetResponseIns overrides the instruction used to fetch continuation
// data. Some applets implement their own in place of the ISO GET RESPONSE
// (the OATH applet uses SEND REMAINING, 0xA5).
func (s *Session) SetGetResponseIns(ins uint8) {
	s.getResponseIns = ins
}

// Select makes the application with the given AID the target of this
// session and returns its select response.
func (s *Session) Select(aid []byte) (*apdu.Response, error) {
	cmd := apdu.NewCommand(claISO, insSelect, p1SelectByName, 0x00, aid)
	cmd.SetLe(0)

	resp, err := s.SendAndReceive(cmd)
	if err != nil {
		var status *apdu.StatusError
		if errors.As(err, &status) && (status.Sw == apdu.SwFileNotFound || status.Sw == apdu.SwInsNotSupported || status.Sw == apdu.SwClaNotSupported) {
			return nil, fmt.Errorf("%w (status 0x%04X)", ErrApplicationNotFound, status.Sw)
		}
		return nil, err
	}

	return resp, nil
}

// SendAndReceive transmits one logical command and returns its decoded
// response. Oversized command data is split into chained frames; a
// response spread across continuation exchanges is reassembled before it
// is returned. Any non-success terminal status word becomes a
// *apdu.StatusError carrying the code; nothing is retried here.
func (s *Session) SendAndReceive(cmd *apdu.Command) (*apdu.Response, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	frames := []*apdu.Command{cmd}
	if !s.extended {
		frames = cmd.Chain()
	}

	// Intermediate chain frames must each succeed before the next one is
	// sent; the first failure aborts the whole chain.
	for _, frame := range frames[:len(frames)-1] {
		resp, err := s.transmit(frame, false)
		if err != nil {
			return nil, err
		}
		if !resp.IsOK() {
			return nil, apdu.NewStatusError(resp.Sw)
		}
	}

	resp, err := s.transmit(frames[len(frames)-1], s.extended)
	if err != nil {
		return nil, err
	}

	// Accumulate continuation data until a terminal status word.
	data := resp.Data
	for {
		n, more := resp.HasMoreData()
		if !more {
			break
		}

		get := apdu.NewCommand(claISO, s.getResponseIns, 0x00, 0x00, nil)
		get.SetLe(n)

		resp, err = s.transmit(get, false)
		if err != nil {
			return nil, err
		}
		data = append(data, resp.Data...)
	}

	if !resp.IsOK() {
		return nil, apdu.NewStatusError(resp.Sw)
	}

	return &apdu.Response{Data: data, Sw1: resp.Sw1, Sw2: resp.Sw2, Sw: resp.Sw}, nil
}

// Close releases the underlying connection. It is safe to call more than
// once; the connection is only released the first time.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func (s *Session) transmit(cmd *apdu.Command, extended bool) (*apdu.Response, error) {
	var raw []byte
	var err error
	if extended {
		raw, err = cmd.SerializeExtended()
	} else {
		raw, err = cmd.Serialize()
	}
	if err != nil {
		return nil, err
	}

	out, err := s.conn.Transmit(raw)
	if err != nil {
		// Transport failures surface verbatim; retry policy belongs to
		// the caller.
		return nil, err
	}

	return apdu.ParseResponse(out)
}
