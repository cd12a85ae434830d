// Package deviceconfig loads and serves the protocol/device configuration
// tree the device manager consults during discovery: which
// CommunicationSpecifiers identify which protocol, what feature set a
// newly discovered device starts with, and which addresses are allowed or
// denied, grounded on
// buttplug_server_device_config/src/device_config_manager.rs.
package deviceconfig

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/xmidt-org/teleop/comm"
	"github.com/xmidt-org/teleop/hardware"
	"github.com/xmidt-org/teleop/message"
)

// InternalMajorVersion is this build's configuration schema major version;
// any loaded config file whose major version differs is rejected outright
// rather than partially applied.
const InternalMajorVersion = 4

// BaseDeviceIdentifier names a protocol, optionally narrowed to one of its
// internal identifiers (e.g. a specific firmware variant sharing a
// protocol).
type BaseDeviceIdentifier struct {
	Protocol   string
	Identifier string // empty means "protocol defaults"
}

// UserDeviceIdentifier names one physical device the user has configured,
// keyed by the protocol that claimed it plus the address it was found at.
type UserDeviceIdentifier struct {
	Protocol   string
	Identifier string
	Address    string
}

// DeviceDefinition is a device's feature set plus the per-device policy
// flags the spec's configuration layer contributes.
type DeviceDefinition struct {
	BaseID           *string
	Index            uint32
	Endpoints        hardware.EndpointMap
	Features         []message.DeviceFeature
	Allow            bool
	Deny             bool
	AllowRawMessages bool
}

// Manager is the runtime form of DeviceConfigurationManagerBuilder::finish
// in the original: base config is immutable after load, user config
// mutates as devices are discovered and index-assigned.
type Manager struct {
	mu sync.Mutex

	baseSpecifiers map[string][]comm.Specifier
	baseDevices    map[BaseDeviceIdentifier]DeviceDefinition

	userSpecifiers map[string][]comm.Specifier
	userDevices    map[UserDeviceIdentifier]DeviceDefinition
}

// NewManager builds an empty Manager; use a Builder to load actual config.
func NewManager() *Manager {
	return &Manager{
		baseSpecifiers: make(map[string][]comm.Specifier),
		baseDevices:    make(map[BaseDeviceIdentifier]DeviceDefinition),
		userSpecifiers: make(map[string][]comm.Specifier),
		userDevices:    make(map[UserDeviceIdentifier]DeviceDefinition),
	}
}

// AddUserCommunicationSpecifier registers an additional specifier for
// protocol, as a user config does at load time or a client does at
// runtime.
func (m *Manager) AddUserCommunicationSpecifier(protocol string, s comm.Specifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userSpecifiers[protocol] = append(m.userSpecifiers[protocol], s)
}

// RemoveUserCommunicationSpecifier drops every specifier previously added
// for protocol matching s.
func (m *Manager) RemoveUserCommunicationSpecifier(protocol string, s comm.Specifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	specs := m.userSpecifiers[protocol]
	kept := make([]comm.Specifier, 0, len(specs))
	for _, existing := range specs {
		if !reflect.DeepEqual(existing, s) {
			kept = append(kept, existing)
		}
	}
	m.userSpecifiers[protocol] = kept
}

// MatchProtocol returns the protocol name whose base or user specifiers
// match candidate, and whether a match was found.
func (m *Manager) MatchProtocol(candidate comm.Specifier) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for protocol, specs := range m.baseSpecifiers {
		for _, s := range specs {
			if s.Match(candidate) {
				return protocol, true
			}
		}
	}
	for protocol, specs := range m.userSpecifiers {
		for _, s := range specs {
			if s.Match(candidate) {
				return protocol, true
			}
		}
	}
	return "", false
}

// AddressAllowed applies the allow/deny policy of §5: an address on the
// deny list is always rejected; if any allow entries exist, only
// addresses explicitly on that list pass.
func (m *Manager) AddressAllowed(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	anyAllow := false
	for ident, def := range m.userDevices {
		if ident.Address == address && def.Deny {
			return false
		}
		if def.Allow {
			anyAllow = true
		}
	}
	if !anyAllow {
		return true
	}
	for ident, def := range m.userDevices {
		if ident.Address == address && def.Allow {
			return true
		}
	}
	return false
}

func (m *Manager) nextIndex() uint32 {
	used := make(map[uint32]struct{}, len(m.userDevices))
	for _, def := range m.userDevices {
		used[def.Index] = struct{}{}
	}
	var idx uint32
	for {
		if _, taken := used[idx]; !taken {
			return idx
		}
		idx++
	}
}

// DeviceDefinitionFor resolves identifier to its feature set, creating and
// caching a fresh user entry (with a newly allocated index) the first time
// a given identifier is seen, per device_config_manager.rs's
// device_definition. Returns false if no base config recognizes the
// protocol at all.
func (m *Manager) DeviceDefinitionFor(identifier UserDeviceIdentifier) (DeviceDefinition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if def, ok := m.userDevices[identifier]; ok {
		return def, true
	}

	base, ok := m.baseDevices[BaseDeviceIdentifier{Protocol: identifier.Protocol, Identifier: identifier.Identifier}]
	if !ok {
		base, ok = m.baseDevices[BaseDeviceIdentifier{Protocol: identifier.Protocol}]
	}
	if !ok {
		return DeviceDefinition{}, false
	}

	def := base
	def.Index = m.nextIndex()
	m.userDevices[identifier] = def
	return def, true
}

// AddUserDeviceDefinition overlays identifier with an explicit user
// definition, refusing any definition whose BaseID doesn't name a loaded
// base protocol (the original's "Cannot find protocol with base id" check).
func (m *Manager) AddUserDeviceDefinition(identifier UserDeviceIdentifier, def DeviceDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if def.BaseID != nil {
		found := false
		for _, base := range m.baseDevices {
			if base.BaseID != nil && *base.BaseID == *def.BaseID {
				found = true
				break
			}
		}
		if !found {
			return errBaseIDNotFound(*def.BaseID)
		}
	}
	m.userDevices[identifier] = def
	return nil
}

// RemoveUserDeviceDefinition drops identifier from the user overlay.
func (m *Manager) RemoveUserDeviceDefinition(identifier UserDeviceIdentifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.userDevices, identifier)
}

// NewFeatureUUID allocates a stable per-feature identifier the way the
// original tags every generated ServerDeviceDefinition.
func NewFeatureUUID() uuid.UUID { return uuid.New() }

func errBaseIDNotFound(baseID string) error {
	return fmt.Errorf("deviceconfig: no base device definition with id %q", baseID)
}

// RawEndpoints lists this device's endpoint names when AllowRawMessages is
// set, or nil otherwise. No protocol handler or session path consults it,
// and no RawWriteCmd/RawReadCmd is ever honored.
func (d DeviceDefinition) RawEndpoints() []string {
	if !d.AllowRawMessages {
		return nil
	}
	names := make([]string, 0, len(d.Endpoints))
	for ep := range d.Endpoints {
		names = append(names, string(ep))
	}
	return names
}
