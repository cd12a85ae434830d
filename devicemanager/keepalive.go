package devicemanager

import (
	"context"
	"time"

	"github.com/xmidt-org/teleop/protocol"
)

// keepaliveInterval is the keep-alive ticker period; handlers don't
// override it per-protocol. The ticker fires on this fixed period from the
// moment it starts, and real commands do not reset it.
const keepaliveInterval = time.Second

// maybeStartKeepalive starts d's keep-alive timer if its handler declares
// a non-None strategy, replacing any timer from a prior connection.
func (m *Manager) maybeStartKeepalive(d *device) {
	d.stopKeepalive()
	strategy := d.handler.KeepaliveStrategy()
	if strategy == protocol.KeepaliveNone {
		return
	}

	stop := make(chan struct{})
	d.keepaliveMu.Lock()
	d.keepaliveStop = stop
	d.keepaliveMu.Unlock()

	go d.runKeepalive(strategy, stop)
}

func (d *device) runKeepalive(strategy protocol.KeepaliveStrategy, stop chan struct{}) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-d.done:
			return
		case <-ticker.C:
			d.sendKeepalive(strategy)
		}
	}
}

// sendKeepalive re-sends the last recorded commands under
// KeepaliveRepeatLastPacket; under any other strategy, including
// KeepaliveRepeatFixedPacket, it sends nothing.
func (d *device) sendKeepalive(strategy protocol.KeepaliveStrategy) {
	d.keepaliveMu.Lock()
	cmds := append([]protocol.HardwareCommand(nil), d.keepaliveLast...)
	d.keepaliveMu.Unlock()
	if strategy != protocol.KeepaliveRepeatLastPacket || len(cmds) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.mu.Lock()
	hw := d.hw
	d.mu.Unlock()
	for _, cmd := range cmds {
		_ = hw.WriteValue(ctx, cmd.Endpoint, cmd.Data, cmd.WithResponse)
	}
}

// recordLastCommand stashes cmds as what the keep-alive timer re-sends,
// called after every real command is issued to a device; it does not reset
// the timer.
func (d *device) recordLastCommand(cmds []protocol.HardwareCommand) {
	d.keepaliveMu.Lock()
	d.keepaliveLast = cmds
	d.keepaliveMu.Unlock()
}

func (d *device) stopKeepalive() {
	d.keepaliveMu.Lock()
	stop := d.keepaliveStop
	d.keepaliveStop = nil
	d.keepaliveMu.Unlock()
	if stop != nil {
		close(stop)
	}
}
