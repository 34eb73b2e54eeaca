package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/stack-telemetry/internal/session"
)

func testConfig() Config {
	return Config{
		Broker:        "broker.example.com:8883",
		ClientID:      "iotconsole-test",
		Topic:         "ebhoomPub",
		Interface:     "wlan0",
		PeriodMs:      10000,
		LinkPollMs:    1000,
		BrokerRetryMs: 5000,
		HTTPAddr:      ":8080",
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testConfig())

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.State != session.StateDisconnected {
		t.Errorf("State: got %s", snap.State)
	}
	if snap.WifiConnected() || snap.MQTTConnected() {
		t.Error("expected disconnected initially")
	}
	if snap.Config.PeriodMs != 10000 {
		t.Errorf("Config.PeriodMs: got %d", snap.Config.PeriodMs)
	}
}

func TestStateDerivedFlags(t *testing.T) {
	tests := []struct {
		state    session.State
		wantWifi bool
		wantMQTT bool
	}{
		{session.StateDisconnected, false, false},
		{session.StateWifiConnecting, false, false},
		{session.StateWifiConnected, true, false},
		{session.StateBrokerConnecting, true, false},
		{session.StateBrokerConnected, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			tr := NewTracker(time.Now(), Config{})
			tr.SetState(tt.state)
			snap := tr.Snapshot()
			if snap.WifiConnected() != tt.wantWifi {
				t.Errorf("WifiConnected: got %v", snap.WifiConnected())
			}
			if snap.MQTTConnected() != tt.wantMQTT {
				t.Errorf("MQTTConnected: got %v", snap.MQTTConnected())
			}
		})
	}
}

func TestRecordPublish(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return at }

	tr.RecordPublish(nil, false)
	tr.RecordPublish(nil, false)
	tr.RecordPublish(errors.New("write failed"), false)
	tr.RecordPublish(errors.New("timeout"), true)

	snap := tr.Snapshot()
	if snap.Counts.PublishOK != 2 {
		t.Errorf("PublishOK: got %d, want 2", snap.Counts.PublishOK)
	}
	if snap.Counts.PublishFailed != 2 {
		t.Errorf("PublishFailed: got %d, want 2", snap.Counts.PublishFailed)
	}
	if snap.Counts.Spooled != 1 {
		t.Errorf("Spooled: got %d, want 1", snap.Counts.Spooled)
	}
	if snap.LastError != "timeout" {
		t.Errorf("LastError: got %q", snap.LastError)
	}
	if !snap.LastPublish.Equal(at) {
		t.Errorf("LastPublish: got %v", snap.LastPublish)
	}
}

func TestRecordConnectFailure(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.RecordConnectFailure(5, errors.New("not authorized"))
	tr.RecordConnectFailure(-2, nil)
	tr.SetConnect(3, 0)

	snap := tr.Snapshot()
	if snap.Counts.ConnectFailed != 2 {
		t.Errorf("ConnectFailed: got %d", snap.Counts.ConnectFailed)
	}
	if snap.ConnectAttempts != 3 || snap.LastConnectCode != 0 {
		t.Errorf("connect: attempts %d rc %d", snap.ConnectAttempts, snap.LastConnectCode)
	}
	if snap.LastError != "not authorized" {
		t.Errorf("LastError: got %q", snap.LastError)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testConfig())
	tr.now = func() time.Time { return start.Add(90 * time.Second) }
	tr.SetState(session.StateBrokerConnected)
	tr.SetConnect(2, 0)
	tr.RecordPublish(nil, false)
	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.50", Status: "connected", SSID: "plant-wifi"})

	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := sj.Status
	if s.State != "BROKER_CONNECTED" {
		t.Errorf("State: got %q", s.State)
	}
	if s.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds: got %d", s.UptimeSeconds)
	}
	if !s.WiFi.Connected || s.WiFi.Interface != "wlan0" {
		t.Errorf("WiFi: got %+v", s.WiFi)
	}
	if !s.MQTT.Connected || s.MQTT.ClientID != "iotconsole-test" || s.MQTT.ConnectAttempts != 2 {
		t.Errorf("MQTT: got %+v", s.MQTT)
	}
	if s.Publish.OK != 1 || s.Publish.Topic != "ebhoomPub" {
		t.Errorf("Publish: got %+v", s.Publish)
	}
	if s.Publish.LastSuccess != "2026-01-01T00:01:30Z" {
		t.Errorf("LastSuccess: got %q", s.Publish.LastSuccess)
	}
	if s.Network == nil || s.Network.SSID != "plant-wifi" {
		t.Errorf("Network: got %+v", s.Network)
	}
	if s.Config.PeriodMs != 10000 || s.Config.HTTPAddr != ":8080" {
		t.Errorf("Config: got %+v", s.Config)
	}
}

func TestFormatJSONOmitsEmpty(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := raw["status"]["network"]; ok {
		t.Error("network should be omitted when unknown")
	}
	publish := raw["status"]["publish"].(map[string]interface{})
	if _, ok := publish["last_success"]; ok {
		t.Error("last_success should be omitted before the first publish")
	}
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.SetState(session.StateBrokerConnected)
				tr.RecordPublish(nil, false)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = FormatJSON(tr.Snapshot())
			}
		}()
	}
	wg.Wait()

	if got := tr.Snapshot().Counts.PublishOK; got != 1000 {
		t.Errorf("PublishOK: got %d, want 1000", got)
	}
}
