// Package link reports and requests WiFi association with hardware abstraction.
// The real implementation watches a network interface; association itself is
// delegated to the OS supplicant. The fake implementation allows testing
// without a radio.
package link

// Link is the WiFi layer underneath the MQTT session.
type Link interface {
	// Join asks the link to associate with ssid. It does not wait.
	Join(ssid, passphrase string) error

	// Connected reports whether the link is associated and has an address.
	Connected() bool
}
