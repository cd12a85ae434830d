package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/xmidt-org/ancla"
	kitlog "github.com/go-kit/kit/log"

	"github.com/xmidt-org/teleop/devicemanager"
	"github.com/xmidt-org/teleop/internal/xlog"
)

// WebhookConfig shapes the device-lifecycle webhook knobs as an
// ancla.Config, so a later move to Argus-backed dynamic registration only
// has to replace how urls is populated (ancla's registration/listener API
// itself has no source in the retrieval pack to ground a call against, so
// the fan-out below posts directly to the statically configured URLs,
// mirroring tr1d1um.go's snsFactory being entirely optional and only wired
// when the operator supplies credentials).
type WebhookConfig struct {
	ancla.Config
	URLs []string
}

// WebhookNotifier posts DeviceAdded/DeviceRemoved payloads to every
// configured URL, best-effort, matching tr1d1um.go's "if not configured,
// the handler for webhooks is not set up" conditional wiring.
type WebhookNotifier struct {
	urls   []string
	client *http.Client
	log    kitlog.Logger
}

// NewWebhookNotifier returns nil if cfg has no URLs configured.
func NewWebhookNotifier(cfg WebhookConfig, log kitlog.Logger) *WebhookNotifier {
	if len(cfg.URLs) == 0 {
		return nil
	}
	return &WebhookNotifier{
		urls:   cfg.URLs,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log,
	}
}

// Run forwards device manager events to every configured webhook URL until
// ctx is cancelled or events closes.
func (n *WebhookNotifier) Run(ctx context.Context, events <-chan devicemanager.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.notify(ctx, ev)
		}
	}
}

type webhookPayload struct {
	Event       string `json:"event"`
	DeviceIndex uint32 `json:"deviceIndex,omitempty"`
	DeviceName  string `json:"deviceName,omitempty"`
}

func (n *WebhookNotifier) notify(ctx context.Context, ev devicemanager.Event) {
	var payload webhookPayload
	switch ev.Kind {
	case devicemanager.EventDeviceAdded:
		payload = webhookPayload{Event: "DeviceAdded", DeviceIndex: ev.Added.DeviceIndex, DeviceName: ev.Added.DeviceName}
	case devicemanager.EventDeviceRemoved:
		payload = webhookPayload{Event: "DeviceRemoved", DeviceIndex: ev.Removed}
	default:
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	for _, url := range n.urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := n.client.Do(req)
		if err != nil {
			xlog.Error(n.log).Log(xlog.MessageKey(), "webhook delivery failed", "url", url, xlog.ErrorKey(), err)
			continue
		}
		resp.Body.Close()
	}
}
