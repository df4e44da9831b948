package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezDevice    = "org.bluez.Device1"
	propsInterface = "org.freedesktop.DBus.Properties"
	propsChanged   = propsInterface + ".PropertiesChanged"
)

// connChange is one peer connecting to or leaving the adapter.
type connChange struct {
	peer      string
	connected bool
}

// connSource subscribes to peer connection changes. The channel is closed or
// abandoned once ctx is done.
type connSource func(ctx context.Context) (<-chan connChange, error)

// watchBlueZ reports Device1.Connected changes from BlueZ on the system bus.
// The BLE stack does not surface peripheral-side connects on Linux, so this
// is what drives the connection lifecycle there.
func watchBlueZ(ctx context.Context) (<-chan connChange, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	err = conn.AddMatchSignal(
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, bluezDevice),
		dbus.WithMatchPathNamespace("/org/bluez"),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("match bluez signals: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	out := make(chan connChange)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case sig, ok := <-signals:
				if !ok {
					return
				}
				c, ok := parseConnChange(sig)
				if !ok {
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// parseConnChange extracts a Connected change from a Device1 PropertiesChanged
// signal. Other properties and interfaces are ignored.
func parseConnChange(sig *dbus.Signal) (connChange, bool) {
	if sig == nil || sig.Name != propsChanged || len(sig.Body) < 2 {
		return connChange{}, false
	}
	if iface, _ := sig.Body[0].(string); iface != bluezDevice {
		return connChange{}, false
	}
	props, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return connChange{}, false
	}
	v, ok := props["Connected"]
	if !ok {
		return connChange{}, false
	}
	connected, ok := v.Value().(bool)
	if !ok {
		return connChange{}, false
	}
	return connChange{peer: peerAddress(sig.Path), connected: connected}, true
}

// peerAddress turns /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF into
// AA:BB:CC:DD:EE:FF.
func peerAddress(path dbus.ObjectPath) string {
	p := string(path)
	i := strings.LastIndex(p, "/dev_")
	if i < 0 {
		return p
	}
	return strings.ReplaceAll(p[i+len("/dev_"):], "_", ":")
}
