package handshake

// Client-side RTMP simple handshake: send C0+C1, read S0+S1, echo C2, read
// and discard S2.

import (
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"time"

	rerrors "github.com/riverline/rtmp-publish/internal/errors"
	"github.com/riverline/rtmp-publish/internal/logger"
)

// ClientHandshake performs the RTMP simple handshake as a client. Each
// read/write is bound by timeout rather than a fixed internal constant, so
// the caller's own idle watchdog governs the handshake the same way it
// governs the rest of the connection. onActivity, if non-nil, is called
// after every successful read and write so that watchdog can be re-armed
// while the handshake is still in progress. On success the connection is
// positioned immediately after the S2 read and ready for chunk stream
// negotiation.
func ClientHandshake(conn net.Conn, timeout time.Duration, onActivity func()) error {
	if conn == nil {
		return rerrors.NewHandshakeError("init", fmt.Errorf("nil conn"))
	}
	log := logger.Logger().With("phase", "handshake", "side", "client")
	notify := func() {
		if onActivity != nil {
			onActivity()
		}
	}

	// C1: 8 bytes zero + 1528 bytes random. Unlike some handshake variants,
	// this client does not stamp a timestamp into C1 — S2 echoes it back
	// unvalidated, so the field carries no information either side relies on.
	var c1 [PacketSize]byte
	if _, err := rand.Read(c1[randomFieldOffset:]); err != nil {
		return rerrors.NewHandshakeError("rand C1", err)
	}

	c0c1 := make([]byte, 1+PacketSize)
	c0c1[0] = Version
	copy(c0c1[1:], c1[:])
	if err := setWriteDeadline(conn, timeout); err != nil {
		return err
	}
	if err := writeFull(conn, c0c1); err != nil {
		if isTimeoutErr(err) {
			return rerrors.NewTimeoutError("write C0+C1", timeout, err)
		}
		return rerrors.NewHandshakeError("write C0+C1", err)
	}
	notify()

	// S0 (1 byte, must be Version) + S1 (1536 bytes).
	if err := setReadDeadline(conn, timeout); err != nil {
		return err
	}
	var s0 [1]byte
	if _, err := io.ReadFull(conn, s0[:]); err != nil {
		if isTimeoutErr(err) {
			return rerrors.NewTimeoutError("read S0", timeout, err)
		}
		return rerrors.NewHandshakeError("read S0", err)
	}
	if s0[0] != Version {
		return rerrors.NewHandshakeError("validate S0", fmt.Errorf("unsupported version 0x%02x", s0[0]))
	}
	notify()

	var s1 [PacketSize]byte
	if _, err := io.ReadFull(conn, s1[:]); err != nil {
		if isTimeoutErr(err) {
			return rerrors.NewTimeoutError("read S1", timeout, err)
		}
		return rerrors.NewHandshakeError("read S1", err)
	}
	notify()

	// C2 = echo of S1, byte-for-byte.
	if err := setWriteDeadline(conn, timeout); err != nil {
		return err
	}
	if err := writeFull(conn, s1[:]); err != nil {
		if isTimeoutErr(err) {
			return rerrors.NewTimeoutError("write C2", timeout, err)
		}
		return rerrors.NewHandshakeError("write C2", err)
	}
	notify()

	// S2 = echo of our C1; not validated, matching server implementations
	// that echo something other than a strict C1 copy.
	if err := setReadDeadline(conn, timeout); err != nil {
		return err
	}
	var s2 [PacketSize]byte
	if _, err := io.ReadFull(conn, s2[:]); err != nil {
		if isTimeoutErr(err) {
			return rerrors.NewTimeoutError("read S2", timeout, err)
		}
		return rerrors.NewHandshakeError("read S2", err)
	}
	notify()
	if !bytesEqual(s2[:], c1[:]) {
		log.Debug("S2 did not echo C1 (not validated per handshake contract)")
	}

	// Clear deadlines so subsequent chunk stream operations aren't bound by
	// the handshake's short timeouts.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		log.Warn("failed to clear read deadline", "error", err)
	}
	if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		log.Warn("failed to clear write deadline", "error", err)
	}

	log.Info("handshake completed")
	return nil
}

func setReadDeadline(c net.Conn, d time.Duration) error {
	if err := c.SetReadDeadline(time.Now().Add(d)); err != nil {
		return rerrors.NewHandshakeError("set read deadline", err)
	}
	return nil
}

func setWriteDeadline(c net.Conn, d time.Duration) error {
	if err := c.SetWriteDeadline(time.Now().Add(d)); err != nil {
		return rerrors.NewHandshakeError("set write deadline", err)
	}
	return nil
}

// writeFull ensures the entire buffer is written.
func writeFull(w io.Writer, b []byte) error {
	off := 0
	for off < len(b) {
		n, err := w.Write(b[off:])
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isTimeoutErr classifies a net.Error with Timeout()==true so the caller can
// report a *errors.TimeoutError instead of a bare *errors.HandshakeError.
func isTimeoutErr(err error) bool {
	if err == nil {
		return false
	}
	type to interface{ Timeout() bool }
	if ne, ok := err.(to); ok && ne.Timeout() {
		return true
	}
	return false
}
