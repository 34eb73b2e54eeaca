// Package mqtt provides the TLS-secured MQTT transport with abstraction for testing.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

// DefaultTopic is the topic the ingestion service subscribes to.
const DefaultTopic = "ebhoomPub"

// DefaultPort is the standard MQTT-over-TLS port.
const DefaultPort = 8883

// Return codes reported in ConnectError, following the PubSubClient state convention.
const (
	CodeConnectionTimeout = -4
	CodeConnectionLost    = -3
	CodeConnectFailed     = -2
	CodeDisconnected      = -1
	CodeConnected         = 0
	CodeBadProtocol       = 1
	CodeBadClientID       = 2
	CodeUnavailable       = 3
	CodeBadCredentials    = 4
	CodeUnauthorized      = 5
)

var (
	// ErrNoIdentity is returned when Connect is called before InstallIdentity.
	ErrNoIdentity = errors.New("mqtt: tls identity not installed")

	// ErrNoEndpoint is returned when Connect is called before ConfigureEndpoint.
	ErrNoEndpoint = errors.New("mqtt: broker endpoint not configured")

	// ErrNotConnected is returned by Publish when there is no live session.
	ErrNotConnected = errors.New("mqtt: not connected")
)

// Transport is an encrypted, authenticated MQTT session to a single broker.
type Transport interface {
	// InstallIdentity validates and installs the TLS credentials.
	// Must be called before the first Connect.
	InstallIdentity(id TLSIdentity) error

	// ConfigureEndpoint sets the broker host and port.
	ConfigureEndpoint(host string, port int)

	// Connect performs a single MQTT CONNECT. On failure the error is a *ConnectError.
	Connect(clientID string) error

	// IsConnected reports whether the session is currently up.
	IsConnected() bool

	// ServiceTick drives protocol housekeeping. Call it at least once per keep-alive interval.
	ServiceTick()

	// Publish sends payload to topic. Returns error if publishing fails
	// (should not crash the process).
	Publish(topic string, payload []byte) error

	// Close disconnects from the broker.
	Close() error
}

// TLSIdentity holds the PEM-encoded credential blobs for mutual TLS.
type TLSIdentity struct {
	RootCA            []byte
	ClientCertificate []byte
	PrivateKey        []byte
}

// TLSConfig parses the identity into a client TLS configuration for serverName.
func (id TLSIdentity) TLSConfig(serverName string) (*tls.Config, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(id.RootCA) {
		return nil, errors.New("root ca: no certificates found")
	}
	cert, err := tls.X509KeyPair(id.ClientCertificate, id.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("client certificate: %w", err)
	}
	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ConnectError reports a failed CONNECT with a broker or transport specific code.
// The code is informational only; callers retry regardless.
type ConnectError struct {
	Code int
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connect failed, rc=%d", e.Code)
	}
	return fmt.Sprintf("connect failed, rc=%d: %v", e.Code, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ReturnCode extracts the rc from err. Errors that are not a *ConnectError
// report CodeConnectFailed.
func ReturnCode(err error) int {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeConnectFailed
}
