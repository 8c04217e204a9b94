package output

import (
	"errors"

	"github.com/tkjaer/mping/internal/shared"
)

// Output interface for different output types
type Output interface {
	WriteReport(report shared.Report) error
	Close() error
}

// OutputManager manages multiple outputs
type OutputManager struct {
	outputs []Output
}

func (om *OutputManager) Register(o Output) {
	om.outputs = append(om.outputs, o)
}

// WriteReport hands report to every output. All outputs are attempted even
// if one fails.
func (om *OutputManager) WriteReport(report shared.Report) error {
	var errs []error
	for _, o := range om.outputs {
		if err := o.WriteReport(report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (om *OutputManager) Close() error {
	var errs []error
	for _, o := range om.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
