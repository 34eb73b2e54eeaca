package link

import (
	"fmt"
	"log"
	"net"
)

// NetLink checks a network interface for an operational, addressed state.
type NetLink struct {
	iface string

	// lookup is replaceable in tests.
	lookup func(name string) (*net.Interface, []net.Addr, error)
}

// NewNetLink creates a Link backed by the named interface (e.g. "wlan0").
func NewNetLink(iface string) *NetLink {
	return &NetLink{iface: iface, lookup: lookupInterface}
}

func lookupInterface(name string) (*net.Interface, []net.Addr, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, nil, err
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, nil, fmt.Errorf("addrs for %s: %w", name, err)
	}
	return ifi, addrs, nil
}

// Join logs the requested network. Association is performed by the OS
// supplicant configured with the same credentials; the session manager
// only waits for the interface to come up.
func (l *NetLink) Join(ssid, _ string) error {
	if _, _, err := l.lookup(l.iface); err != nil {
		return fmt.Errorf("join %q on %s: %w", ssid, l.iface, err)
	}
	log.Printf("link: waiting for %s to join %q", l.iface, ssid)
	return nil
}

// Connected reports whether the interface is up, running, and holds a
// non-link-local unicast address.
func (l *NetLink) Connected() bool {
	ifi, addrs, err := l.lookup(l.iface)
	if err != nil {
		return false
	}
	if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagRunning == 0 {
		return false
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipnet.IP.IsGlobalUnicast() {
			return true
		}
	}
	return false
}
