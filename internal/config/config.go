// Package config loads the agent configuration.
//
// Values are layered: built-in defaults, then an optional YAML file (with
// ${VAR} expansion), then a .env file in the working directory, then
// STACK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // devices often ship without a zoneinfo database

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/stack-telemetry/internal/mqtt"
	"github.com/sweeney/stack-telemetry/internal/telemetry"
)

// Config is the complete agent configuration.
type Config struct {
	WiFi    WiFiConfig   `yaml:"wifi"`
	Broker  BrokerConfig `yaml:"broker"`
	TLS     TLSConfig    `yaml:"tls"`
	Device  DeviceConfig `yaml:"device"`
	Timing  TimingConfig `yaml:"timing"`
	Spool   SpoolConfig  `yaml:"spool"`
	HTTP    HTTPConfig   `yaml:"http"`
	LEDs    LEDConfig    `yaml:"leds"`
	DataDir string       `yaml:"data_dir"`
}

// WiFiConfig holds the network credentials and the interface to watch.
type WiFiConfig struct {
	Interface  string `yaml:"interface"`
	SSID       string `yaml:"ssid"`
	Passphrase string `yaml:"passphrase"`
}

// BrokerConfig describes the MQTT endpoint and session tuning.
type BrokerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ClientID       string        `yaml:"client_id"` // generated and persisted when empty
	Topic          string        `yaml:"topic"`
	QoS            int           `yaml:"qos"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// TLSConfig holds paths to the PEM-encoded identity files.
type TLSConfig struct {
	RootCA     string `yaml:"root_ca"`
	ClientCert string `yaml:"client_cert"`
	PrivateKey string `yaml:"private_key"`
}

// DeviceConfig identifies the device and its readings.
type DeviceConfig struct {
	ProductID    string                   `yaml:"product_id"`
	UserName     string                   `yaml:"user_name"`
	Timezone     string                   `yaml:"timezone"`
	Stacks       []telemetry.StackReading `yaml:"stacks"`
	ReadingsFile string                   `yaml:"readings_file"`
}

// TimingConfig holds the retry and publish intervals.
type TimingConfig struct {
	LinkPoll      time.Duration `yaml:"link_poll"`
	BrokerRetry   time.Duration `yaml:"broker_retry"`
	PublishPeriod time.Duration `yaml:"publish_period"`
}

// SpoolConfig enables the durable outbox. An empty path disables it.
type SpoolConfig struct {
	Path     string `yaml:"path"`
	Capacity int    `yaml:"capacity"`
}

// HTTPConfig configures the status server. An empty addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LEDConfig holds the status LED pins (BCM). A pin <= 0 disables that LED.
type LEDConfig struct {
	LinkPin   int `yaml:"link_pin"`
	BrokerPin int `yaml:"broker_pin"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WiFi: WiFiConfig{Interface: "wlan0"},
		Broker: BrokerConfig{
			Port:           mqtt.DefaultPort,
			Topic:          mqtt.DefaultTopic,
			KeepAlive:      15 * time.Second,
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 5 * time.Second,
		},
		TLS: TLSConfig{
			RootCA:     "certs/AmazonRootCA1.pem",
			ClientCert: "certs/certificate.pem.crt",
			PrivateKey: "certs/private.pem.key",
		},
		Device: DeviceConfig{Timezone: telemetry.DefaultTimezone},
		Timing: TimingConfig{
			LinkPoll:      1 * time.Second,
			BrokerRetry:   5 * time.Second,
			PublishPeriod: 10 * time.Second,
		},
		HTTP:    HTTPConfig{Addr: ":8080"},
		DataDir: "/var/lib/stack-telemetry",
	}
}

// Load builds the configuration from path (may be empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.WiFi.Interface = getEnv("STACK_WIFI_INTERFACE", c.WiFi.Interface)
	c.WiFi.SSID = getEnv("STACK_WIFI_SSID", c.WiFi.SSID)
	c.WiFi.Passphrase = getEnv("STACK_WIFI_PASSPHRASE", c.WiFi.Passphrase)

	c.Broker.Host = getEnv("STACK_BROKER_HOST", c.Broker.Host)
	c.Broker.Port = getEnvInt("STACK_BROKER_PORT", c.Broker.Port)
	c.Broker.ClientID = getEnv("STACK_CLIENT_ID", c.Broker.ClientID)
	c.Broker.Topic = getEnv("STACK_TOPIC", c.Broker.Topic)
	c.Broker.QoS = getEnvInt("STACK_QOS", c.Broker.QoS)

	c.TLS.RootCA = getEnv("STACK_TLS_ROOT_CA", c.TLS.RootCA)
	c.TLS.ClientCert = getEnv("STACK_TLS_CLIENT_CERT", c.TLS.ClientCert)
	c.TLS.PrivateKey = getEnv("STACK_TLS_PRIVATE_KEY", c.TLS.PrivateKey)

	c.Device.ProductID = getEnv("STACK_PRODUCT_ID", c.Device.ProductID)
	c.Device.UserName = getEnv("STACK_USER_NAME", c.Device.UserName)
	c.Device.Timezone = getEnv("STACK_TIMEZONE", c.Device.Timezone)
	c.Device.ReadingsFile = getEnv("STACK_READINGS_FILE", c.Device.ReadingsFile)

	c.Timing.PublishPeriod = getEnvDuration("STACK_PUBLISH_PERIOD", c.Timing.PublishPeriod)

	c.Spool.Path = getEnv("STACK_SPOOL_PATH", c.Spool.Path)
	c.HTTP.Addr = getEnv("STACK_HTTP_ADDR", c.HTTP.Addr)
	c.DataDir = getEnv("STACK_DATA_DIR", c.DataDir)
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch {
	case c.Broker.Host == "":
		return errors.New("broker.host is required")
	case c.Broker.Port < 1 || c.Broker.Port > 65535:
		return fmt.Errorf("broker.port %d out of range", c.Broker.Port)
	case c.Broker.Topic == "":
		return errors.New("broker.topic is required")
	case c.Broker.QoS < 0 || c.Broker.QoS > 1:
		return fmt.Errorf("broker.qos %d not supported (0 or 1)", c.Broker.QoS)
	case c.Device.ProductID == "":
		return errors.New("device.product_id is required")
	case c.Device.UserName == "":
		return errors.New("device.user_name is required")
	case len(c.Device.Stacks) == 0 && c.Device.ReadingsFile == "":
		return errors.New("device.stacks or device.readings_file is required")
	case c.Timing.LinkPoll <= 0, c.Timing.BrokerRetry <= 0, c.Timing.PublishPeriod <= 0:
		return errors.New("timing intervals must be positive")
	case c.Spool.Capacity < 0:
		return fmt.Errorf("spool.capacity %d must not be negative", c.Spool.Capacity)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	name := c.Device.Timezone
	if name == "" {
		name = telemetry.DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("device.timezone: %w", err)
	}
	return loc, nil
}

// BrokerURL returns the endpoint in display form.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("ssl://%s:%d", c.Broker.Host, c.Broker.Port)
}

// LoadIdentity reads the three PEM files of the TLS identity.
func (c *Config) LoadIdentity() (mqtt.TLSIdentity, error) {
	var id mqtt.TLSIdentity
	files := []struct {
		name string
		path string
		dst  *[]byte
	}{
		{"root ca", c.TLS.RootCA, &id.RootCA},
		{"client certificate", c.TLS.ClientCert, &id.ClientCertificate},
		{"private key", c.TLS.PrivateKey, &id.PrivateKey},
	}
	for _, f := range files {
		if f.path == "" {
			return mqtt.TLSIdentity{}, fmt.Errorf("%s: no path configured", f.name)
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return mqtt.TLSIdentity{}, fmt.Errorf("read %s: %w", f.name, err)
		}
		*f.dst = data
	}
	return id, nil
}

// clientIDFile is the file under the data dir holding the generated client id.
const clientIDFile = "client_id"

// ResolveClientID returns the configured client id. When none is set it
// reuses the id persisted in dataDir, generating and saving one on first run.
func (c *Config) ResolveClientID(dataDir string) (string, error) {
	if c.Broker.ClientID != "" {
		return c.Broker.ClientID, nil
	}

	path := filepath.Join(dataDir, clientIDFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read client id: %w", err)
	}

	id := "iotconsole-" + uuid.New().String()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write client id: %w", err)
	}
	log.Printf("config: generated client id %s", id)
	return id, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: failed to parse %s as int, using %d: %v", key, defaultValue, err)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("config: failed to parse %s as duration, using %v: %v", key, defaultValue, err)
		return defaultValue
	}
	return d
}
