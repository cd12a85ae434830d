package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	kitlog "github.com/go-kit/kit/log"

	"github.com/xmidt-org/teleop/comm"
	"github.com/xmidt-org/teleop/comm/ble"
	"github.com/xmidt-org/teleop/comm/hid"
	"github.com/xmidt-org/teleop/comm/lovenseconnect"
	"github.com/xmidt-org/teleop/comm/serial"
	"github.com/xmidt-org/teleop/comm/wsdevice"
	"github.com/xmidt-org/teleop/comm/xinput"
	"github.com/xmidt-org/teleop/deviceconfig"
	"github.com/xmidt-org/teleop/devicemanager"
	"github.com/xmidt-org/teleop/internal/xlog"
	"github.com/xmidt-org/teleop/protocol"
	"github.com/xmidt-org/teleop/serializer"
)

// Server owns the full teleop process: the device manager, the comm
// managers feeding it, and the HTTP listener accepting client connections.
type Server struct {
	cfg     *Config
	log     kitlog.Logger
	devices *devicemanager.Manager
	http    *http.Server
	webhook *WebhookNotifier
	cancel  func()
}

// New assembles a Server from cfg, registering every comm manager cfg
// enables and every built-in protocol factory, following tr1d1um.go's
// "build every service, then webPA.Prepare the router" wiring order.
func New(cfg *Config, log kitlog.Logger) (*Server, error) {
	if log == nil {
		log = xlog.New()
	}

	configMgr := deviceconfig.NewManager()
	if cfg.BaseConfigPath != "" {
		f, err := os.Open(cfg.BaseConfigPath)
		if err != nil {
			return nil, fmt.Errorf("opening base device config: %w", err)
		}
		defer f.Close()
		if err := configMgr.LoadBaseConfig(f); err != nil {
			return nil, fmt.Errorf("loading base device config: %w", err)
		}
	}
	if cfg.UserConfigPath != "" {
		f, err := os.Open(cfg.UserConfigPath)
		if err != nil {
			return nil, fmt.Errorf("opening user device config: %w", err)
		}
		defer f.Close()
		if err := configMgr.LoadUserConfig(f); err != nil {
			return nil, fmt.Errorf("loading user device config: %w", err)
		}
	}

	protocols := protocol.NewRegistry()
	protocols.Register(protocol.KiirooInitFactory{})
	protocols.Register(protocol.GenericFactory{ProtocolName: "generic"})

	aggregator := comm.NewAggregator()
	registerCommManagers(aggregator, cfg)

	devices := devicemanager.New(configMgr, protocols, aggregator, log)

	validator, err := newValidator(cfg.SchemaPath)
	if err != nil {
		return nil, err
	}

	router := newRouter(cfg, devices, validator, log)

	s := &Server{
		cfg:     cfg,
		log:     log,
		devices: devices,
		http:    &http.Server{Addr: cfg.ListenAddress, Handler: router},
	}

	if notifier := NewWebhookNotifier(WebhookConfig{URLs: cfg.WebhookURLs}, log); notifier != nil {
		s.webhook = notifier
	}

	return s, nil
}

func newValidator(schemaPath string) (serializer.SchemaValidator, error) {
	if schemaPath == "" {
		return serializer.NoopValidator{}, nil
	}
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("reading message schema: %w", err)
	}
	return serializer.NewJSONSchemaValidator(data)
}

// registerCommManagers adds every enabled comm.Manager to aggregator,
// mirroring tr1d1um.go's per-service conditional construction (each block
// below is skipped entirely when its enable flag is unset, the same "only
// proceed if configured" shape as tr1d1um.go's snsFactory wiring).
func registerCommManagers(aggregator *comm.Aggregator, cfg *Config) {
	if cfg.BLEEnabled {
		aggregator.Add(ble.New(cfg.BLEAdapter, nil))
	}
	if cfg.HIDEnabled {
		aggregator.Add(hid.New(nil))
	}
	if cfg.SerialEnabled {
		aggregator.Add(serial.New(nil))
	}
	if cfg.XInputEnabled {
		aggregator.Add(xinput.New())
	}
	if cfg.LovenseEnabled {
		aggregator.Add(lovenseconnect.New(cfg.LovenseURL, cfg.LovensePoll))
	}
	if cfg.WSDeviceEnabled {
		aggregator.Add(wsdevice.New(cfg.WSDeviceAddress, nil))
	}
}

// Run starts the HTTP listener and the webhook notifier (if configured) and
// blocks until ctx is cancelled, then shuts both down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.webhook != nil {
		events, unsubscribe := s.devices.Subscribe()
		defer unsubscribe()
		go s.webhook.Run(ctx, events)
	}

	serveErr := make(chan error, 1)
	go func() {
		xlog.Info(s.log).Log(xlog.MessageKey(), "listening", "address", s.cfg.ListenAddress)
		serveErr <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return s.http.Shutdown(shutdownCtx)
}

// Stop cancels Run's context, beginning graceful shutdown.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
