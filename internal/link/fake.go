package link

// FakeLink is a test double that returns scripted link states.
type FakeLink struct {
	// States contains scripted Connected() values.
	// Each call consumes the next state; when exhausted the last state repeats.
	States []bool

	// index tracks current position in States
	index int

	// Joins records the SSID of every Join call.
	Joins []string

	// JoinError, if set, will be returned by Join.
	JoinError error

	// OnConnected, if set, is called at the start of every Connected call.
	OnConnected func(call int)

	calls int
}

// NewFakeLink creates a FakeLink with the given states.
func NewFakeLink(states ...bool) *FakeLink {
	return &FakeLink{States: states}
}

// Join records the request.
func (f *FakeLink) Join(ssid, _ string) error {
	f.Joins = append(f.Joins, ssid)
	return f.JoinError
}

// Connected returns the next scripted state. With no states it reports down.
func (f *FakeLink) Connected() bool {
	f.calls++
	if f.OnConnected != nil {
		f.OnConnected(f.calls)
	}
	if len(f.States) == 0 {
		return false
	}

	state := f.States[f.index]
	if f.index < len(f.States)-1 {
		f.index++
	}
	return state
}

// Calls returns the number of Connected calls.
func (f *FakeLink) Calls() int {
	return f.calls
}

// Set replaces the script with a single repeating state.
func (f *FakeLink) Set(connected bool) {
	f.States = []bool{connected}
	f.index = 0
}
