package mqtt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"testing"
	"time"
)

// testIdentity returns a self-signed CA and a client certificate signed by it.
func testIdentity(t *testing.T) TLSIdentity {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ca key: %v", err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create ca: %v", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parse ca: %v", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "device"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &key.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create client cert: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	return TLSIdentity{
		RootCA:            pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER}),
		ClientCertificate: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		PrivateKey:        pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}
}

func TestTLSConfig(t *testing.T) {
	id := testIdentity(t)

	cfg, err := id.TLSConfig("broker.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServerName != "broker.example.com" {
		t.Errorf("ServerName: got %q", cfg.ServerName)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("expected 1 client certificate, got %d", len(cfg.Certificates))
	}
	if cfg.RootCAs == nil {
		t.Error("expected root pool")
	}
}

func TestTLSConfigRejectsBadMaterial(t *testing.T) {
	good := testIdentity(t)
	other := testIdentity(t)

	tests := []struct {
		name string
		id   TLSIdentity
	}{
		{"empty ca", TLSIdentity{ClientCertificate: good.ClientCertificate, PrivateKey: good.PrivateKey}},
		{"garbage ca", TLSIdentity{RootCA: []byte("not pem"), ClientCertificate: good.ClientCertificate, PrivateKey: good.PrivateKey}},
		{"missing key", TLSIdentity{RootCA: good.RootCA, ClientCertificate: good.ClientCertificate}},
		{"mismatched key", TLSIdentity{RootCA: good.RootCA, ClientCertificate: good.ClientCertificate, PrivateKey: other.PrivateKey}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.id.TLSConfig("h"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConnectErrorMessage(t *testing.T) {
	err := &ConnectError{Code: CodeBadCredentials, Err: errors.New("not authorized")}
	if got := err.Error(); got != "connect failed, rc=4: not authorized" {
		t.Errorf("unexpected message: %s", got)
	}

	bare := &ConnectError{Code: CodeConnectionTimeout}
	if got := bare.Error(); got != "connect failed, rc=-4" {
		t.Errorf("unexpected message: %s", got)
	}
}

func TestReturnCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"connack", &ConnectError{Code: CodeUnauthorized}, CodeUnauthorized},
		{"timeout", &ConnectError{Code: CodeConnectionTimeout}, CodeConnectionTimeout},
		{"plain error", errors.New("boom"), CodeConnectFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReturnCode(tt.err); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConnectErrorUnwrap(t *testing.T) {
	err := error(&ConnectError{Code: CodeConnectFailed, Err: ErrNoIdentity})
	if !errors.Is(err, ErrNoIdentity) {
		t.Error("expected errors.Is to find ErrNoIdentity")
	}
}

func TestRealTransportRequiresIdentity(t *testing.T) {
	tr := NewRealTransport(Options{})
	tr.ConfigureEndpoint("broker.example.com", DefaultPort)

	err := tr.Connect("device-1")
	if !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	if ReturnCode(err) != CodeConnectFailed {
		t.Errorf("rc: got %d, want %d", ReturnCode(err), CodeConnectFailed)
	}
}

func TestRealTransportRequiresEndpoint(t *testing.T) {
	tr := NewRealTransport(Options{})
	if err := tr.InstallIdentity(testIdentity(t)); err != nil {
		t.Fatalf("install: %v", err)
	}

	err := tr.Connect("device-1")
	if !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("expected ErrNoEndpoint, got %v", err)
	}
}

func TestRealTransportInstallIdentityValidates(t *testing.T) {
	tr := NewRealTransport(Options{})
	if err := tr.InstallIdentity(TLSIdentity{RootCA: []byte("x")}); err == nil {
		t.Error("expected error for invalid identity")
	}
}

func TestRealTransportPublishWhileDisconnected(t *testing.T) {
	tr := NewRealTransport(Options{})

	if tr.IsConnected() {
		t.Error("should not be connected initially")
	}
	if err := tr.Publish(DefaultTopic, []byte("[]")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	tr.ServiceTick()
	if err := tr.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.KeepAlive != 15*time.Second {
		t.Errorf("KeepAlive: got %v", o.KeepAlive)
	}
	if o.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout: got %v", o.ConnectTimeout)
	}
	if o.PublishTimeout != 5*time.Second {
		t.Errorf("PublishTimeout: got %v", o.PublishTimeout)
	}

	custom := Options{KeepAlive: time.Minute, QoS: 1}.withDefaults()
	if custom.KeepAlive != time.Minute || custom.QoS != 1 {
		t.Errorf("custom options overwritten: %+v", custom)
	}
}

func TestDefaults(t *testing.T) {
	if DefaultTopic != "ebhoomPub" {
		t.Errorf("unexpected topic: %s", DefaultTopic)
	}
	if DefaultPort != 8883 {
		t.Errorf("unexpected port: %d", DefaultPort)
	}
}

// --- FakeTransport ---

func TestFakeTransportConnectScript(t *testing.T) {
	f := NewFakeTransport()
	f.InstallIdentity(TLSIdentity{})
	f.ConnectResults = []error{&ConnectError{Code: CodeBadCredentials}, nil}

	if err := f.Connect("a"); ReturnCode(err) != CodeBadCredentials {
		t.Fatalf("attempt 1: got %v", err)
	}
	if f.IsConnected() {
		t.Error("should not be connected after failure")
	}
	if err := f.Connect("a"); err != nil {
		t.Fatalf("attempt 2: %v", err)
	}
	if !f.IsConnected() {
		t.Error("should be connected after success")
	}
	if f.Attempts() != 2 {
		t.Errorf("attempts: got %d", f.Attempts())
	}
}

func TestFakeTransportConnectWithoutIdentity(t *testing.T) {
	f := NewFakeTransport()
	if err := f.Connect("a"); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("expected ErrNoIdentity, got %v", err)
	}
}

func TestFakeTransportPublish(t *testing.T) {
	f := NewFakeTransport()
	f.Connected = true
	f.PublishErrors = []error{errors.New("write failed")}

	if err := f.Publish("t", []byte("1")); err == nil {
		t.Error("expected scripted error")
	}
	if err := f.Publish("t", []byte("2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Published) != 1 || string(f.Published[0].Payload) != "2" {
		t.Errorf("unexpected published: %+v", f.Published)
	}

	f.Connected = false
	if err := f.Publish("t", []byte("3")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestFakeTransportCloseAndReset(t *testing.T) {
	f := NewFakeTransport()
	f.Connected = true
	f.ServiceTick()
	f.Close()

	if !f.Closed || f.Connected {
		t.Error("close should mark closed and disconnected")
	}

	f.Reset()
	if f.Closed || f.Ticks != 0 {
		t.Error("reset should clear state")
	}
}
