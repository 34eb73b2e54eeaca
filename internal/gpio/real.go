//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/stack-telemetry/internal/session"
)

// RealIndicator drives LEDs on actual hardware using the Linux GPIO character device.
type RealIndicator struct {
	chip   *gpiocdev.Chip
	link   *gpiocdev.Line
	broker *gpiocdev.Line
}

// NewRealIndicator requests the LED pins as outputs, initially off.
// A pin <= 0 leaves that LED unused.
func NewRealIndicator(pinLink, pinBroker int) (*RealIndicator, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealIndicator{chip: chip}
	if pinLink > 0 {
		r.link, err = chip.RequestLine(pinLink, gpiocdev.AsOutput(0))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request link pin %d: %w", pinLink, err)
		}
	}
	if pinBroker > 0 {
		r.broker, err = chip.RequestLine(pinBroker, gpiocdev.AsOutput(0))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request broker pin %d: %w", pinBroker, err)
		}
	}
	return r, nil
}

// Show sets the LED levels for state.
func (r *RealIndicator) Show(state session.State) error {
	link, broker := Levels(state)
	if r.link != nil {
		if err := r.link.SetValue(level(link)); err != nil {
			return fmt.Errorf("set link pin: %w", err)
		}
	}
	if r.broker != nil {
		if err := r.broker.SetValue(level(broker)); err != nil {
			return fmt.Errorf("set broker pin: %w", err)
		}
	}
	return nil
}

// Close releases GPIO resources.
// Pins are returned to input with pull-down (matching Pi boot defaults) so
// the LEDs go dark and nothing is driven during the next boot.
func (r *RealIndicator) Close() error {
	var errs []error

	for name, line := range map[string]*gpiocdev.Line{"link": r.link, "broker": r.broker} {
		if line == nil {
			continue
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	r.link, r.broker = nil, nil
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
