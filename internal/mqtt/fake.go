package mqtt

// Message is a publish recorded by FakeTransport.
type Message struct {
	Topic   string
	Payload []byte
}

// FakeTransport records calls for test assertions and plays back scripted results.
type FakeTransport struct {
	// Identities contains every identity passed to InstallIdentity.
	Identities []TLSIdentity

	// Host and Port are the last configured endpoint.
	Host string
	Port int

	// ConnectResults are consumed one per Connect call; nil means success.
	// When exhausted, ConnectDefault is returned.
	ConnectResults []error

	// ConnectDefault is returned once ConnectResults is exhausted.
	ConnectDefault error

	// ClientIDs records the client id of each Connect call.
	ClientIDs []string

	// Connected controls the return value of IsConnected. A successful Connect sets it.
	Connected bool

	// Ticks counts ServiceTick calls.
	Ticks int

	// Published contains all successful publishes.
	Published []Message

	// PublishErrors are consumed one per Publish call; nil means success.
	// When exhausted, PublishError is returned.
	PublishErrors []error

	// PublishError, if set, will be returned by Publish once PublishErrors is exhausted.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// OnConnect, if set, is called at the start of every Connect.
	OnConnect func(attempt int)

	// OnPublish, if set, is called at the start of every Publish.
	OnPublish func(topic string)
}

// NewFakeTransport creates a FakeTransport for testing.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// InstallIdentity records the identity.
func (f *FakeTransport) InstallIdentity(id TLSIdentity) error {
	f.Identities = append(f.Identities, id)
	return nil
}

// ConfigureEndpoint records the endpoint.
func (f *FakeTransport) ConfigureEndpoint(host string, port int) {
	f.Host = host
	f.Port = port
}

// Connect returns the next scripted result.
func (f *FakeTransport) Connect(clientID string) error {
	f.ClientIDs = append(f.ClientIDs, clientID)
	if f.OnConnect != nil {
		f.OnConnect(len(f.ClientIDs))
	}
	if len(f.Identities) == 0 {
		return &ConnectError{Code: CodeConnectFailed, Err: ErrNoIdentity}
	}

	err := f.ConnectDefault
	if len(f.ConnectResults) > 0 {
		err = f.ConnectResults[0]
		f.ConnectResults = f.ConnectResults[1:]
	}
	if err != nil {
		f.Connected = false
		return err
	}
	f.Connected = true
	return nil
}

// Attempts returns the number of Connect calls.
func (f *FakeTransport) Attempts() int {
	return len(f.ClientIDs)
}

// IsConnected reports whether the fake transport is "connected".
func (f *FakeTransport) IsConnected() bool {
	return f.Connected
}

// ServiceTick counts the tick.
func (f *FakeTransport) ServiceTick() {
	f.Ticks++
}

// Publish records the message or returns the next scripted error.
func (f *FakeTransport) Publish(topic string, payload []byte) error {
	if f.OnPublish != nil {
		f.OnPublish(topic)
	}

	err := f.PublishError
	if len(f.PublishErrors) > 0 {
		err = f.PublishErrors[0]
		f.PublishErrors = f.PublishErrors[1:]
	}
	if err != nil {
		return err
	}
	if !f.Connected {
		return ErrNotConnected
	}

	f.Published = append(f.Published, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

// Close marks the transport as closed.
func (f *FakeTransport) Close() error {
	f.Closed = true
	f.Connected = false
	return nil
}

// Reset clears recorded calls and scripted results.
func (f *FakeTransport) Reset() {
	*f = FakeTransport{}
}
