//go:build linux || darwin || freebsd

package probe

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return fmt.Errorf("%w: %w", ErrPermission, err)
	case errors.Is(err, unix.EPROTONOSUPPORT),
		errors.Is(err, unix.EAFNOSUPPORT),
		errors.Is(err, unix.ESOCKTNOSUPPORT):
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	return fmt.Errorf("open ICMP socket: %w", err)
}
