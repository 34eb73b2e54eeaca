package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	State         string       `json:"state"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	WiFi          WiFiStatus   `json:"wifi"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Publish       PublishJSON  `json:"publish"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// WiFiStatus reports link state.
type WiFiStatus struct {
	Connected bool   `json:"connected"`
	Interface string `json:"interface"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected       bool   `json:"connected"`
	Broker          string `json:"broker"`
	ClientID        string `json:"client_id"`
	ConnectAttempts int    `json:"connect_attempts"`
	ConnectFailures int    `json:"connect_failures"`
	LastCode        int    `json:"last_rc"`
}

// PublishJSON is the JSON representation of publish counters.
type PublishJSON struct {
	Topic       string `json:"topic"`
	OK          int    `json:"ok"`
	Failed      int    `json:"failed"`
	Spooled     int    `json:"spooled"`
	LastSuccess string `json:"last_success,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of agent config.
type ConfigJSON struct {
	PeriodMs      int64  `json:"period_ms"`
	LinkPollMs    int64  `json:"link_poll_ms"`
	BrokerRetryMs int64  `json:"broker_retry_ms"`
	HTTPAddr      string `json:"http_addr"`
	Spool         bool   `json:"spool"`
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := StatusInner{
		State:         string(snap.State),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		WiFi:          WiFiStatus{Connected: snap.WifiConnected(), Interface: snap.Config.Interface},
		MQTT: MQTTStatus{
			Connected:       snap.MQTTConnected(),
			Broker:          snap.Config.Broker,
			ClientID:        snap.Config.ClientID,
			ConnectAttempts: snap.ConnectAttempts,
			ConnectFailures: snap.Counts.ConnectFailed,
			LastCode:        snap.LastConnectCode,
		},
		Publish: PublishJSON{
			Topic:     snap.Config.Topic,
			OK:        snap.Counts.PublishOK,
			Failed:    snap.Counts.PublishFailed,
			Spooled:   snap.Counts.Spooled,
			LastError: snap.LastError,
		},
		Config: ConfigJSON{
			PeriodMs:      snap.Config.PeriodMs,
			LinkPollMs:    snap.Config.LinkPollMs,
			BrokerRetryMs: snap.Config.BrokerRetryMs,
			HTTPAddr:      snap.Config.HTTPAddr,
			Spool:         snap.Config.SpoolEnabled,
		},
	}
	if !snap.LastPublish.IsZero() {
		inner.Publish.LastSuccess = snap.LastPublish.UTC().Format(time.RFC3339)
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
