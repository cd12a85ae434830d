package lovenseconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/xmidt-org/teleop/comm"
	"github.com/xmidt-org/teleop/hardware"
	"github.com/xmidt-org/teleop/internal/xhttp"
)

// connector finishes bringing a discovered toy up into a hardware.Hardware;
// a Lovense Connect toy has no separate dial step, so Connect just wraps a
// new HTTP bus addressed at the toy's Connect app.
type connector struct {
	baseURL string
	do      xhttp.Transactor
	toyID   string
	name    string
}

func (c connector) Specifier() comm.Specifier { return comm.LovenseConnectSpecifier{} }

func (c connector) Connect(ctx context.Context) (*hardware.Hardware, error) {
	b := &bus{baseURL: c.baseURL, do: c.do, toyID: c.toyID}
	return hardware.New(c.name, c.toyID, hardware.EndpointMap{
		hardware.EndpointTx: "command",
	}, b), nil
}

// bus issues one HTTP GET per write against the Lovense Connect app's
// per-toy command endpoint; it has no server push, so Subscribe/Read are
// not supported.
type bus struct {
	baseURL string
	do      xhttp.Transactor
	toyID   string
}

func (b *bus) Write(ctx context.Context, busID string, data []byte, withResponse bool) error {
	q := url.Values{}
	q.Set("command", busID)
	q.Set("toy", b.toyID)
	q.Set("v", string(data))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/Command?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := b.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var out struct {
		Code    int    `json:"code"`
		Message string `json:"msg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && out.Code != 0 {
		return fmt.Errorf("lovense connect command failed: %s", out.Message)
	}
	return nil
}

func (b *bus) Read(ctx context.Context, busID string, length int) ([]byte, error) {
	return nil, hardware.ErrUnsupported
}

func (b *bus) Subscribe(ctx context.Context, busID string) (<-chan []byte, error) {
	return nil, hardware.ErrUnsupported
}

func (b *bus) Unsubscribe(ctx context.Context, busID string) error { return nil }

func (b *bus) Close() error { return nil }
