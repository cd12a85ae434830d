package server

import (
	"net/http"

	kitlog "github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/xmidt-org/teleop/devicemanager"
	"github.com/xmidt-org/teleop/internal/xlog"
	"github.com/xmidt-org/teleop/serializer"
	"github.com/xmidt-org/teleop/session"
	"github.com/xmidt-org/teleop/transport"
)

const websocketRoute = "/teleop/ws"

// newRouter builds the HTTP surface: the client websocket-upgrade route
// (behind auth, if configured) and a plain status route, mirroring
// tr1d1um.go's mux.NewRouter()+alice.New() shape.
func newRouter(cfg *Config, devices *devicemanager.Manager, validator serializer.SchemaValidator, log kitlog.Logger) *mux.Router {
	r := mux.NewRouter()

	handler := &wsHandler{cfg: cfg, devices: devices, validator: validator, log: log}

	var upgrade http.Handler = http.HandlerFunc(handler.handle)
	if chain := newAuthChain(cfg.AuthTokens); chain != nil {
		upgrade = chain.Then(upgrade)
	}
	r.Handle(websocketRoute, upgrade)

	r.HandleFunc("/teleop/status", handleStatus).Methods(http.MethodGet)

	tracing := TracingConfig{ApplicationName: applicationName}
	instrumentRouter(r, tracing)

	return r
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// wsHandler upgrades one client connection and hands it off to a fresh
// session.Session, exactly as comm/wsdevice.Manager upgrades device
// connections on the device-facing side.
type wsHandler struct {
	cfg       *Config
	devices   *devicemanager.Manager
	validator serializer.SchemaValidator
	upgrader  websocket.Upgrader
	log       kitlog.Logger
}

func (h *wsHandler) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		xlog.Error(h.log).Log(xlog.MessageKey(), "websocket upgrade failed", xlog.ErrorKey(), err)
		return
	}

	wt := transport.NewAcceptedWebsocketTransport(conn)
	ser := serializer.New(h.validator)
	rc := transport.NewRemoteConnector(wt, ser, nil)

	sess := session.New(rc, h.devices, session.Config{
		ServerName: h.cfg.ServerName,
		MaxPingMs:  h.cfg.MaxPingMs,
	}, h.log)

	go func() {
		if err := sess.Run(); err != nil {
			xlog.Error(h.log).Log(xlog.MessageKey(), "session ended with error", xlog.ErrorKey(), err)
		}
	}()
}
