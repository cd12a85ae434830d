package server

import (
	"context"
	"net/http"

	"github.com/justinas/alice"
	"github.com/xmidt-org/bascule"
	"github.com/xmidt-org/bascule/basculehttp"
)

// nopValidator accepts any token bascule's constructor already parsed; with
// only a static token set configured there is nothing further to check.
type nopValidator struct{}

func (nopValidator) Check(context.Context, bascule.Token) error { return nil }

// newAuthChain builds the alice.Chain gating the websocket-upgrade route,
// following tr1d1um.go's authenticationHandler: if no tokens are
// configured, authentication is skipped entirely (an open server), mirroring
// tr1d1um.go's "only proceed if sure that value was set" guard around its
// own optional auth wiring.
func newAuthChain(tokens map[string]string) *alice.Chain {
	if len(tokens) == 0 {
		return nil
	}

	constructor := basculehttp.NewConstructor(
		basculehttp.WithTokenFactory("Basic", basculehttp.BasicTokenFactory(tokens)),
		basculehttp.WithCErrorHTTPResponseFunc(func(_ context.Context, _ error) (int, http.Header) {
			return http.StatusForbidden, nil
		}),
	)

	authorizer := basculehttp.NewAuthorizeMiddleware(
		basculehttp.WithRules("authorizeStatic", bascule.Validators{nopValidator{}}),
	)

	chain := alice.New(constructor, authorizer)
	return &chain
}
