package probe

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrPermission is returned when the process may not open the ICMP socket.
	ErrPermission = errors.New("insufficient privileges for ICMP socket")
	// ErrUnsupported is returned when the platform offers no usable ICMP transport.
	ErrUnsupported = errors.New("ICMP transport not supported")
	// ErrNoReply is returned by Socket.Receive when nothing arrived in time.
	ErrNoReply = errors.New("no reply")
	// ErrInvalidArgument is returned for out of range measurement parameters.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEmptyHost is returned by AddTarget for an empty host string.
	ErrEmptyHost = errors.New("empty host")
)

// SendError reports a failed transmission of a single echo request.
type SendError struct {
	Addr netip.Addr
	Seq  uint16
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send echo %d to %s: %v", e.Seq, e.Addr, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
