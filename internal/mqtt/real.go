package mqtt

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Options tunes the paho session. Zero values fall back to defaults.
type Options struct {
	KeepAlive      time.Duration // default 15s
	ConnectTimeout time.Duration // default 10s
	PublishTimeout time.Duration // default 5s
	QoS            byte          // 0 or 1
}

func (o Options) withDefaults() Options {
	if o.KeepAlive <= 0 {
		o.KeepAlive = 15 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}
	return o
}

// RealTransport publishes to an actual MQTT broker over mutual TLS.
// Automatic reconnection is disabled: recovery is owned by the session manager.
type RealTransport struct {
	opts Options

	mu     sync.Mutex
	tls    *tls.Config
	id     *TLSIdentity
	host   string
	port   int
	client paho.Client
	lost   error // set by the connection-lost handler, reported on the next tick
}

// NewRealTransport creates an unconnected transport.
func NewRealTransport(opts Options) *RealTransport {
	return &RealTransport{opts: opts.withDefaults()}
}

// InstallIdentity validates the credential set and keeps it for subsequent connects.
func (t *RealTransport) InstallIdentity(id TLSIdentity) error {
	// Parse eagerly with an empty server name so bad material fails at startup.
	if _, err := id.TLSConfig(""); err != nil {
		return fmt.Errorf("install identity: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.id = &id
	t.tls = nil
	return nil
}

// ConfigureEndpoint sets the broker host and port.
func (t *RealTransport) ConfigureEndpoint(host string, port int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.host = host
	t.port = port
	t.tls = nil
}

// Connect dials the broker and performs one MQTT CONNECT with clientID.
func (t *RealTransport) Connect(clientID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.id == nil {
		return &ConnectError{Code: CodeConnectFailed, Err: ErrNoIdentity}
	}
	if t.host == "" {
		return &ConnectError{Code: CodeConnectFailed, Err: ErrNoEndpoint}
	}
	if t.tls == nil {
		cfg, err := t.id.TLSConfig(t.host)
		if err != nil {
			return &ConnectError{Code: CodeConnectFailed, Err: err}
		}
		t.tls = cfg
	}

	if t.client != nil {
		t.client.Disconnect(250)
		t.client = nil
	}

	broker := "ssl://" + net.JoinHostPort(t.host, strconv.Itoa(t.port))
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetTLSConfig(t.tls).
		SetProtocolVersion(4).
		SetCleanSession(true).
		SetKeepAlive(t.opts.KeepAlive).
		SetPingTimeout(t.opts.KeepAlive / 2).
		SetConnectTimeout(t.opts.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectionLostHandler(t.onConnectionLost)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(t.opts.ConnectTimeout + time.Second) {
		client.Disconnect(0)
		return &ConnectError{Code: CodeConnectionTimeout, Err: fmt.Errorf("connect to %s: timeout", broker)}
	}
	if err := token.Error(); err != nil {
		return &ConnectError{Code: connackCode(token), Err: fmt.Errorf("connect to %s: %w", broker, err)}
	}

	t.client = client
	t.lost = nil
	return nil
}

// connackCode maps a CONNACK refusal to its wire code; transport failures map to CodeConnectFailed.
func connackCode(token paho.Token) int {
	ct, ok := token.(*paho.ConnectToken)
	if !ok {
		return CodeConnectFailed
	}
	rc := int(ct.ReturnCode())
	if rc >= CodeBadProtocol && rc <= CodeUnauthorized {
		return rc
	}
	return CodeConnectFailed
}

func (t *RealTransport) onConnectionLost(_ paho.Client, err error) {
	t.mu.Lock()
	t.lost = err
	t.mu.Unlock()
}

// IsConnected reports whether the paho client holds a live session.
func (t *RealTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil && t.client.IsConnectionOpen()
}

// ServiceTick reports a connection loss observed since the previous tick.
// Keep-alive pings themselves are sent by paho's own goroutine.
func (t *RealTransport) ServiceTick() {
	t.mu.Lock()
	lost := t.lost
	t.lost = nil
	t.mu.Unlock()

	if lost != nil {
		log.Printf("mqtt: connection lost: %v", lost)
	}
}

// Publish sends payload to topic and waits for the publish to be flushed (QoS 0)
// or acknowledged (QoS 1).
func (t *RealTransport) Publish(topic string, payload []byte) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Publish(topic, t.opts.QoS, false, payload)
	if !token.WaitTimeout(t.opts.PublishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (t *RealTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		t.client.Disconnect(1000) // 1 second timeout
		t.client = nil
	}
	return nil
}
