//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/stack-telemetry/internal/session"
)

// RealIndicator is not available on non-Linux platforms.
type RealIndicator struct{}

// NewRealIndicator returns an error on non-Linux platforms.
func NewRealIndicator(pinLink, pinBroker int) (*RealIndicator, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Show is not implemented on non-Linux platforms.
func (r *RealIndicator) Show(session.State) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealIndicator) Close() error {
	return nil
}
