// Package status provides a thread-safe status tracker for the telemetry agent.
// It is written by the publish loop and read by HTTP handlers and the LED driver.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/stack-telemetry/internal/session"
)

// NetworkInfo contains network state reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains agent configuration for display.
type Config struct {
	Broker        string
	ClientID      string
	Topic         string
	Interface     string
	PeriodMs      int64
	LinkPollMs    int64
	BrokerRetryMs int64
	HTTPAddr      string
	SpoolEnabled  bool
}

// Counts tracks publish outcomes since startup.
type Counts struct {
	PublishOK     int
	PublishFailed int
	Spooled       int
	ConnectFailed int
}

// Snapshot is a point-in-time view of agent state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	State           session.State
	ConnectAttempts int
	LastConnectCode int
	LastPublish     time.Time
	LastError       string
	Counts          Counts
	StartTime       time.Time
	Now             time.Time
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the agent started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// WifiConnected reports whether the link layer was up at the last check.
func (s Snapshot) WifiConnected() bool {
	switch s.State {
	case session.StateWifiConnected, session.StateBrokerConnecting, session.StateBrokerConnected:
		return true
	}
	return false
}

// MQTTConnected reports whether the broker session was up at the last check.
func (s Snapshot) MQTTConnected() bool {
	return s.State == session.StateBrokerConnected
}

// Tracker holds mutable agent state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     session.StateDisconnected,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetState records a connection state transition.
func (t *Tracker) SetState(s session.State) {
	t.mu.Lock()
	t.snap.State = s
	t.mu.Unlock()
}

// SetConnect records the broker connect attempt count and last return code.
func (t *Tracker) SetConnect(attempts, rc int) {
	t.mu.Lock()
	t.snap.ConnectAttempts = attempts
	t.snap.LastConnectCode = rc
	t.mu.Unlock()
}

// RecordConnectFailure counts a rejected CONNECT.
func (t *Tracker) RecordConnectFailure(rc int, err error) {
	t.mu.Lock()
	t.snap.Counts.ConnectFailed++
	t.snap.LastConnectCode = rc
	if err != nil {
		t.snap.LastError = err.Error()
	}
	t.mu.Unlock()
}

// RecordPublish counts a publish attempt. A nil err is a success.
func (t *Tracker) RecordPublish(err error, spooled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.snap.Counts.PublishFailed++
		t.snap.LastError = err.Error()
		if spooled {
			t.snap.Counts.Spooled++
		}
		return
	}
	t.snap.Counts.PublishOK++
	t.snap.LastPublish = t.now()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the agent state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
