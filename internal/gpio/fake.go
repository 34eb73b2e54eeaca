package gpio

import "github.com/sweeney/stack-telemetry/internal/session"

// FakeIndicator records the LED levels for test assertions.
type FakeIndicator struct {
	// Link and Broker are the current LED levels.
	Link   bool
	Broker bool

	// Shown contains every state passed to Show.
	Shown []session.State

	// ShowError, if set, will be returned by Show.
	ShowError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeIndicator creates a FakeIndicator with both LEDs off.
func NewFakeIndicator() *FakeIndicator {
	return &FakeIndicator{}
}

// Show records state and updates the levels.
func (f *FakeIndicator) Show(state session.State) error {
	f.Shown = append(f.Shown, state)
	if f.ShowError != nil {
		return f.ShowError
	}
	f.Link, f.Broker = Levels(state)
	return nil
}

// Close switches both LEDs off.
func (f *FakeIndicator) Close() error {
	f.Closed = true
	f.Link, f.Broker = false, false
	return nil
}
