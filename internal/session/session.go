// Package session keeps the WiFi link and the MQTT session up.
// All waiting goes through an injectable sleep function so tests run on a
// virtual clock.
package session

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/stack-telemetry/internal/link"
	"github.com/sweeney/stack-telemetry/internal/mqtt"
)

// State is the derived connection state.
type State string

const (
	StateDisconnected     State = "DISCONNECTED"
	StateWifiConnecting   State = "WIFI_CONNECTING"
	StateWifiConnected    State = "WIFI_CONNECTED"
	StateBrokerConnecting State = "BROKER_CONNECTING"
	StateBrokerConnected  State = "BROKER_CONNECTED"
)

// Default retry intervals.
const (
	DefaultLinkPollInterval    = 1 * time.Second
	DefaultBrokerRetryInterval = 5 * time.Second
)

// Config configures a Manager.
type Config struct {
	SSID       string
	Passphrase string
	ClientID   string

	// LinkPollInterval is the wait between link status checks (default 1s).
	LinkPollInterval time.Duration

	// BrokerRetryInterval is the wait after a failed CONNECT (default 5s).
	BrokerRetryInterval time.Duration

	// Sleep waits for d or until ctx is done. Returns false if ctx is done.
	// Defaults to a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) bool

	// OnStateChange is called synchronously on every state transition. Optional.
	OnStateChange func(State)

	// OnConnectFailure is called after each rejected CONNECT. Optional.
	OnConnectFailure func(rc int, err error)
}

// Manager guarantees that both the link and the broker session are up.
// Not safe for concurrent use; it is driven by the publish loop.
type Manager struct {
	link      link.Link
	transport mqtt.Transport
	cfg       Config

	state    State
	attempts int
	lastCode int
}

// NewManager creates a Manager. The transport must already hold its identity
// and endpoint before EnsureConnected is first called.
func NewManager(l link.Link, transport mqtt.Transport, cfg Config) *Manager {
	if cfg.LinkPollInterval <= 0 {
		cfg.LinkPollInterval = DefaultLinkPollInterval
	}
	if cfg.BrokerRetryInterval <= 0 {
		cfg.BrokerRetryInterval = DefaultBrokerRetryInterval
	}
	if cfg.Sleep == nil {
		cfg.Sleep = SleepCtx
	}
	return &Manager{
		link:      l,
		transport: transport,
		cfg:       cfg,
		state:     StateDisconnected,
		lastCode:  mqtt.CodeDisconnected,
	}
}

// EnsureConnected blocks until the link and the broker session are both up.
// Failures are retried indefinitely; the only error returned is ctx.Err().
func (m *Manager) EnsureConnected(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !m.link.Connected() {
		if err := m.connectLink(ctx); err != nil {
			return err
		}
		m.setState(StateWifiConnected)
	}

	if m.transport.IsConnected() {
		m.setState(StateBrokerConnected)
		return nil
	}
	m.setState(StateWifiConnected)
	return m.connectBroker(ctx)
}

// connectLink requests association once and polls until the link is up.
func (m *Manager) connectLink(ctx context.Context) error {
	m.setState(StateWifiConnecting)
	log.Printf("session: connecting to wifi %q", m.cfg.SSID)

	joined := false
	for {
		if !joined {
			if err := m.link.Join(m.cfg.SSID, m.cfg.Passphrase); err != nil {
				log.Printf("session: wifi join error: %v", err)
			} else {
				joined = true
			}
		}
		if m.link.Connected() {
			break
		}
		if !m.cfg.Sleep(ctx, m.cfg.LinkPollInterval) {
			return ctx.Err()
		}
	}

	log.Printf("session: connected to wifi")
	return nil
}

// connectBroker retries CONNECT at a fixed interval. The link is not
// re-checked here; a link drop is picked up by the next EnsureConnected.
func (m *Manager) connectBroker(ctx context.Context) error {
	for {
		m.setState(StateBrokerConnecting)
		m.attempts++
		log.Printf("session: connecting to broker as %s", m.cfg.ClientID)

		err := m.transport.Connect(m.cfg.ClientID)
		if err == nil {
			m.lastCode = mqtt.CodeConnected
			m.setState(StateBrokerConnected)
			log.Printf("session: connected to broker")
			return nil
		}

		rc := mqtt.ReturnCode(err)
		m.lastCode = rc
		log.Printf("session: broker connect failed, rc=%d: %v; retrying in %v", rc, err, m.cfg.BrokerRetryInterval)
		if m.cfg.OnConnectFailure != nil {
			m.cfg.OnConnectFailure(rc, err)
		}

		if !m.cfg.Sleep(ctx, m.cfg.BrokerRetryInterval) {
			return ctx.Err()
		}
	}
}

func (m *Manager) setState(s State) {
	if s == m.state {
		return
	}
	m.state = s
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(s)
	}
}

// State returns the state observed by the most recent EnsureConnected.
func (m *Manager) State() State {
	return m.state
}

// Attempts returns the number of broker CONNECT attempts since startup.
func (m *Manager) Attempts() int {
	return m.attempts
}

// LastCode returns the return code of the most recent CONNECT.
func (m *Manager) LastCode() int {
	return m.lastCode
}

// SleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func SleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
