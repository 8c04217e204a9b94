//go:build !(linux || darwin || freebsd)

package probe

import (
	"errors"
	"fmt"
	"os"
)

func classifyOpenError(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %w", ErrPermission, err)
	}
	return fmt.Errorf("%w: %w", ErrUnsupported, err)
}
