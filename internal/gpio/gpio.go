// Package gpio drives the status LEDs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "github.com/sweeney/stack-telemetry/internal/session"

// Indicator shows the connection state on output pins.
type Indicator interface {
	// Show updates the outputs for state.
	Show(state session.State) error

	// Close switches the outputs off and releases GPIO resources.
	Close() error
}

// Default pins (BCM numbering). A pin <= 0 disables that LED.
const (
	PinLink   = 20 // lit while the WiFi link is up
	PinBroker = 21 // lit while the broker session is up
)

// Levels maps a connection state to the (link, broker) LED levels.
func Levels(state session.State) (link, broker bool) {
	switch state {
	case session.StateWifiConnected, session.StateBrokerConnecting:
		return true, false
	case session.StateBrokerConnected:
		return true, true
	default:
		return false, false
	}
}

// Nop is an Indicator with no outputs, used when both LEDs are disabled.
type Nop struct{}

func (Nop) Show(session.State) error { return nil }
func (Nop) Close() error             { return nil }
