package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xmidt-org/candlelight"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TracingConfig shapes the tracing section of the server config, carried as
// a candlelight.Config so the knobs line up with the rest of the XMiDT
// fleet even though this server exports no spans of its own outside the
// default global provider (candlelight's exporter construction needs an
// operator-supplied collector endpoint we have nothing to default to here).
type TracingConfig struct {
	candlelight.Config
	ApplicationName string
}

// instrumentRouter wraps r's routes with otelmux, naming spans after cfg's
// application, mirroring tr1d1um.go's pattern of decorating the whole
// mux.Router rather than each handler individually.
func instrumentRouter(r *mux.Router, cfg TracingConfig) {
	r.Use(otelmux.Middleware(cfg.ApplicationName))
}

// instrumentHandler wraps a single handler with otelhttp, for routes
// registered outside the traced router. newRouter does not call it: the
// status route is registered on the router and traced by otelmux.
func instrumentHandler(operation string, h http.Handler) http.Handler {
	return otelhttp.NewHandler(h, operation)
}
