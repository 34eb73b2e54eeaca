package link

import (
	"errors"
	"net"
	"testing"
)

func TestFakeLinkScript(t *testing.T) {
	f := NewFakeLink(false, false, true)

	want := []bool{false, false, true, true}
	for i, w := range want {
		if got := f.Connected(); got != w {
			t.Errorf("call %d: got %v, want %v", i, got, w)
		}
	}
	if f.Calls() != 4 {
		t.Errorf("calls: got %d, want 4", f.Calls())
	}
}

func TestFakeLinkNoStates(t *testing.T) {
	f := NewFakeLink()
	if f.Connected() {
		t.Error("expected down with no states")
	}
}

func TestFakeLinkJoin(t *testing.T) {
	f := NewFakeLink(true)
	f.Join("plant-wifi", "secret")
	f.JoinError = errors.New("radio off")
	if err := f.Join("plant-wifi", "secret"); err == nil {
		t.Error("expected JoinError")
	}
	if len(f.Joins) != 2 || f.Joins[0] != "plant-wifi" {
		t.Errorf("unexpected joins: %v", f.Joins)
	}
}

func TestFakeLinkSet(t *testing.T) {
	f := NewFakeLink(true, true, true)
	f.Connected()
	f.Set(false)
	if f.Connected() {
		t.Error("expected down after Set(false)")
	}
}

func fakeLookup(flags net.Flags, addrs []net.Addr, err error) func(string) (*net.Interface, []net.Addr, error) {
	return func(name string) (*net.Interface, []net.Addr, error) {
		if err != nil {
			return nil, nil, err
		}
		return &net.Interface{Name: name, Flags: flags}, addrs, nil
	}
}

func ipNet(s string) *net.IPNet {
	ip, n, _ := net.ParseCIDR(s)
	n.IP = ip
	return n
}

func TestNetLinkConnected(t *testing.T) {
	upRunning := net.FlagUp | net.FlagRunning

	tests := []struct {
		name   string
		flags  net.Flags
		addrs  []net.Addr
		err    error
		expect bool
	}{
		{"up with address", upRunning, []net.Addr{ipNet("192.168.1.50/24")}, nil, true},
		{"up with ipv6 global", upRunning, []net.Addr{ipNet("2001:db8::5/64")}, nil, true},
		{"up link-local only", upRunning, []net.Addr{ipNet("169.254.3.4/16"), ipNet("fe80::1/64")}, nil, false},
		{"up no address", upRunning, nil, nil, false},
		{"not running", net.FlagUp, []net.Addr{ipNet("192.168.1.50/24")}, nil, false},
		{"down", 0, []net.Addr{ipNet("192.168.1.50/24")}, nil, false},
		{"missing interface", 0, nil, errors.New("no such interface"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &NetLink{iface: "wlan0", lookup: fakeLookup(tt.flags, tt.addrs, tt.err)}
			if got := l.Connected(); got != tt.expect {
				t.Errorf("got %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestNetLinkJoinMissingInterface(t *testing.T) {
	l := &NetLink{iface: "wlan9", lookup: fakeLookup(0, nil, errors.New("no such interface"))}
	if err := l.Join("plant-wifi", "secret"); err == nil {
		t.Error("expected error for missing interface")
	}

	ok := &NetLink{iface: "wlan0", lookup: fakeLookup(net.FlagUp, nil, nil)}
	if err := ok.Join("plant-wifi", "secret"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
