package protocol

import (
	"context"

	"github.com/xmidt-org/teleop/hardware"
	"github.com/xmidt-org/teleop/message"
)

// Identifier is what a protocol's identify step reports about a freshly
// connected Hardware, used to build the device manager's
// deviceconfig.UserDeviceIdentifier (§5 step 3).
type Identifier struct {
	Protocol   string
	Identifier string // protocol-internal refinement, e.g. firmware variant
}

// Factory builds a Handler for one protocol family. Identify may perform
// initial reads/writes to distinguish device sub-variants before the
// device manager decides whether to allow the device and assign it an
// index; Initialize performs any handshake and constructs the Handler
// that will serve the device's features thereafter.
type Factory interface {
	Name() string
	Identify(ctx context.Context, hw *hardware.Hardware) (Identifier, error)
	Initialize(ctx context.Context, hw *hardware.Hardware, features []message.DeviceFeature) (Handler, error)
}

// Registry resolves a protocol name to its Factory.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs f under f.Name(), overwriting any prior registration
// for the same name.
func (r *Registry) Register(f Factory) {
	r.factories[f.Name()] = f
}

// Lookup returns the Factory registered for name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}
