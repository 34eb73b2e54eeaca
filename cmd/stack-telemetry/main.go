// Command stack-telemetry keeps a WiFi link and a mutual-TLS MQTT session up
// and publishes stack emission readings on a fixed cadence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/stack-telemetry/internal/config"
	"github.com/sweeney/stack-telemetry/internal/gpio"
	"github.com/sweeney/stack-telemetry/internal/link"
	"github.com/sweeney/stack-telemetry/internal/mqtt"
	"github.com/sweeney/stack-telemetry/internal/publish"
	"github.com/sweeney/stack-telemetry/internal/session"
	"github.com/sweeney/stack-telemetry/internal/spool"
	"github.com/sweeney/stack-telemetry/internal/status"
	"github.com/sweeney/stack-telemetry/internal/telemetry"
	"github.com/sweeney/stack-telemetry/internal/web"
)

func main() {
	configPath := flag.String("config", os.Getenv("STACK_CONFIG"), "YAML config file (empty for defaults and environment only)")
	httpAddr := flag.String("http", "", "HTTP status address, overrides config (\"off\" disables)")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")
	once := flag.Bool("once", false, "Connect, publish a single record and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	switch *httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = *httpAddr
	}

	if *printConfig {
		out, err := formatConfig(cfg)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		os.Stdout.Write(out)
		return
	}

	if err := run(cfg, *once); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, once bool) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	id, err := cfg.LoadIdentity()
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	clientID, err := cfg.ResolveClientID(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("resolve client id: %w", err)
	}

	transport := mqtt.NewRealTransport(mqtt.Options{
		KeepAlive:      cfg.Broker.KeepAlive,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		PublishTimeout: cfg.Broker.PublishTimeout,
		QoS:            byte(cfg.Broker.QoS),
	})
	defer transport.Close()
	if err := transport.InstallIdentity(id); err != nil {
		return err
	}
	transport.ConfigureEndpoint(cfg.Broker.Host, cfg.Broker.Port)

	indicator := newIndicator(cfg.LEDs)
	defer indicator.Close()

	a, err := newAgent(cfg, clientID, deps{
		Link:      link.NewNetLink(cfg.WiFi.Interface),
		Transport: transport,
		Indicator: indicator,
		Now:       time.Now,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		return a.controller.Cycle(ctx)
	}

	log.Printf("started: broker=%s topic=%s client=%s period=%v", cfg.BrokerURL(), cfg.Broker.Topic, clientID, cfg.Timing.PublishPeriod)
	return a.Run(ctx)
}

// deps are the collaborators that differ between the device and tests.
type deps struct {
	Link      link.Link
	Transport mqtt.Transport
	Indicator gpio.Indicator
	Now       func() time.Time

	// Sleep overrides the wait used by the session and the publish loop. Optional.
	Sleep func(ctx context.Context, d time.Duration) bool
}

// agent is the wired set of components.
type agent struct {
	cfg        *config.Config
	tracker    *status.Tracker
	manager    *session.Manager
	controller *publish.Controller
	spool      *spool.Spool
	server     *web.Server
}

func newAgent(cfg *config.Config, clientID string, d deps) (*agent, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &agent{cfg: cfg}
	a.tracker = status.NewTracker(d.Now(), statusConfig(cfg, clientID))
	if net := readNetworkInfo(); net != nil {
		a.tracker.SetNetwork(net)
	}

	a.manager = session.NewManager(d.Link, d.Transport, session.Config{
		SSID:                cfg.WiFi.SSID,
		Passphrase:          cfg.WiFi.Passphrase,
		ClientID:            clientID,
		LinkPollInterval:    cfg.Timing.LinkPoll,
		BrokerRetryInterval: cfg.Timing.BrokerRetry,
		Sleep:               d.Sleep,
		OnStateChange: func(s session.State) {
			a.tracker.SetState(s)
			if s == session.StateBrokerConnected {
				a.tracker.SetConnect(a.manager.Attempts(), a.manager.LastCode())
			}
			if err := d.Indicator.Show(s); err != nil {
				log.Printf("gpio: %v", err)
			}
		},
		OnConnectFailure: func(rc int, err error) {
			a.tracker.RecordConnectFailure(rc, err)
			a.tracker.SetConnect(a.manager.Attempts(), rc)
		},
	})

	if cfg.Spool.Path != "" {
		a.spool, err = spool.Open(cfg.Spool.Path, cfg.Spool.Capacity)
		if err != nil {
			return nil, fmt.Errorf("open spool: %w", err)
		}
	}

	a.controller = publish.New(a.manager, d.Transport, newBuilder(cfg, loc, d.Now), publish.Config{
		Topic:  cfg.Broker.Topic,
		Period: cfg.Timing.PublishPeriod,
		Sleep:  d.Sleep,
		Spool:  a.spool,
		OnPublish: func(r publish.Result) {
			a.tracker.RecordPublish(r.Err, r.Spooled)
		},
	})

	if cfg.HTTP.Addr != "" {
		a.server = web.New(cfg.HTTP.Addr, a.tracker)
	}
	return a, nil
}

// Run drives the publish loop and the status server until ctx is cancelled.
func (a *agent) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.controller.Run(ctx)
	})

	if a.server != nil {
		g.Go(func() error {
			log.Printf("http status server listening on %s", a.cfg.HTTP.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Close releases the spool.
func (a *agent) Close() error {
	if a.spool != nil {
		return a.spool.Close()
	}
	return nil
}

func newBuilder(cfg *config.Config, loc *time.Location, now func() time.Time) telemetry.Builder {
	if cfg.Device.ReadingsFile != "" {
		return &telemetry.FileBuilder{
			Path:      cfg.Device.ReadingsFile,
			ProductID: cfg.Device.ProductID,
			UserName:  cfg.Device.UserName,
			Location:  loc,
			Now:       now,
			Fallback:  cfg.Device.Stacks,
		}
	}
	return &telemetry.StaticBuilder{
		ProductID: cfg.Device.ProductID,
		UserName:  cfg.Device.UserName,
		Stacks:    cfg.Device.Stacks,
		Location:  loc,
		Now:       now,
	}
}

// newIndicator opens the LED pins. The agent runs without LEDs if they are
// disabled or the GPIO chip is unavailable.
func newIndicator(leds config.LEDConfig) gpio.Indicator {
	if leds.LinkPin <= 0 && leds.BrokerPin <= 0 {
		return gpio.Nop{}
	}
	ind, err := gpio.NewRealIndicator(leds.LinkPin, leds.BrokerPin)
	if err != nil {
		log.Printf("gpio: leds disabled: %v", err)
		return gpio.Nop{}
	}
	return ind
}

func statusConfig(cfg *config.Config, clientID string) status.Config {
	return status.Config{
		Broker:        cfg.BrokerURL(),
		ClientID:      clientID,
		Topic:         cfg.Broker.Topic,
		Interface:     cfg.WiFi.Interface,
		PeriodMs:      cfg.Timing.PublishPeriod.Milliseconds(),
		LinkPollMs:    cfg.Timing.LinkPoll.Milliseconds(),
		BrokerRetryMs: cfg.Timing.BrokerRetry.Milliseconds(),
		HTTPAddr:      cfg.HTTP.Addr,
		SpoolEnabled:  cfg.Spool.Path != "",
	}
}

// formatConfig renders cfg as YAML with the WiFi passphrase masked.
func formatConfig(cfg *config.Config) ([]byte, error) {
	c := *cfg
	if c.WiFi.Passphrase != "" {
		c.WiFi.Passphrase = "********"
	}
	out, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("format config: %w", err)
	}
	return out, nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
