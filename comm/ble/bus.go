package ble

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	gattChar1Iface = "org.bluez.GattCharacteristic1"
	propsIface     = "org.freedesktop.DBus.Properties"
)

// bus resolves a device's Bus identifiers (GATT characteristic UUIDs) to
// their object paths lazily, since BlueZ only assigns characteristic paths
// once services are resolved post-connect.
type bus struct {
	conn       *dbus.Conn
	devicePath dbus.ObjectPath

	mu   sync.Mutex
	subs map[string]chan []byte
}

func (b *bus) characteristicPath(ctx context.Context, charUUID string) (dbus.ObjectPath, error) {
	root := b.conn.Object(bluezService, dbus.ObjectPath("/"))
	call := root.CallWithContext(ctx, objectMgrIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return "", call.Err
	}
	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := call.Store(&managed); err != nil {
		return "", err
	}
	prefix := string(b.devicePath) + "/"
	for p, ifaces := range managed {
		if !hasPrefix(string(p), prefix) {
			continue
		}
		ch, ok := ifaces[gattChar1Iface]
		if !ok {
			continue
		}
		if u, ok := ch["UUID"].Value().(string); ok && u == charUUID {
			return p, nil
		}
	}
	return "", fmt.Errorf("ble: characteristic %s not found under %s", charUUID, b.devicePath)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (b *bus) Write(ctx context.Context, busID string, data []byte, withResponse bool) error {
	charPath, err := b.characteristicPath(ctx, busID)
	if err != nil {
		return err
	}
	opts := map[string]dbus.Variant{"type": dbus.MakeVariant("request")}
	if !withResponse {
		opts["type"] = dbus.MakeVariant("command")
	}
	obj := b.conn.Object(bluezService, charPath)
	return obj.CallWithContext(ctx, gattChar1Iface+".WriteValue", 0, data, opts).Err
}

func (b *bus) Read(ctx context.Context, busID string, length int) ([]byte, error) {
	charPath, err := b.characteristicPath(ctx, busID)
	if err != nil {
		return nil, err
	}
	obj := b.conn.Object(bluezService, charPath)
	call := obj.CallWithContext(ctx, gattChar1Iface+".ReadValue", 0, map[string]dbus.Variant{})
	if call.Err != nil {
		return nil, call.Err
	}
	var value []byte
	if err := call.Store(&value); err != nil {
		return nil, err
	}
	return value, nil
}

func (b *bus) Subscribe(ctx context.Context, busID string) (<-chan []byte, error) {
	b.mu.Lock()
	if ch, ok := b.subs[busID]; ok {
		b.mu.Unlock()
		return ch, nil
	}
	b.mu.Unlock()

	charPath, err := b.characteristicPath(ctx, busID)
	if err != nil {
		return nil, err
	}
	obj := b.conn.Object(bluezService, charPath)
	if err := obj.CallWithContext(ctx, gattChar1Iface+".StartNotify", 0).Err; err != nil {
		return nil, err
	}

	ch := make(chan []byte, 8)
	b.mu.Lock()
	b.subs[busID] = ch
	b.mu.Unlock()

	signals := make(chan *dbus.Signal, 8)
	b.conn.Signal(signals)
	matchRule := "type='signal',interface='" + propsIface + "',path='" + string(charPath) + "'"
	_ = b.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule).Err

	go func() {
		for sig := range signals {
			if sig.Path != charPath || len(sig.Body) < 2 {
				continue
			}
			changed, ok := sig.Body[1].(map[string]dbus.Variant)
			if !ok {
				continue
			}
			v, ok := changed["Value"]
			if !ok {
				continue
			}
			data, ok := v.Value().([]byte)
			if !ok {
				continue
			}
			select {
			case ch <- data:
			default:
			}
		}
	}()

	return ch, nil
}

func (b *bus) Unsubscribe(ctx context.Context, busID string) error {
	charPath, err := b.characteristicPath(ctx, busID)
	if err == nil {
		obj := b.conn.Object(bluezService, charPath)
		_ = obj.CallWithContext(ctx, gattChar1Iface+".StopNotify", 0).Err
	}
	b.mu.Lock()
	if ch, ok := b.subs[busID]; ok {
		close(ch)
		delete(b.subs, busID)
	}
	b.mu.Unlock()
	return nil
}

func (b *bus) Close() error {
	b.mu.Lock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.mu.Unlock()
	return b.conn.Close()
}

func devicePropertyString(ctx context.Context, conn *dbus.Conn, devPath dbus.ObjectPath, prop string) (string, error) {
	obj := conn.Object(bluezService, devPath)
	call := obj.CallWithContext(ctx, propsIface+".Get", 0, device1Iface, prop)
	if call.Err != nil {
		return "", call.Err
	}
	var v dbus.Variant
	if err := call.Store(&v); err != nil {
		return "", err
	}
	s, _ := v.Value().(string)
	return s, nil
}

func devicePropertyBool(ctx context.Context, conn *dbus.Conn, devPath dbus.ObjectPath, prop string) (bool, error) {
	obj := conn.Object(bluezService, devPath)
	call := obj.CallWithContext(ctx, propsIface+".Get", 0, device1Iface, prop)
	if call.Err != nil {
		return false, call.Err
	}
	var v dbus.Variant
	if err := call.Store(&v); err != nil {
		return false, err
	}
	b, _ := v.Value().(bool)
	return b, nil
}
