package deviceconfig

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xmidt-org/teleop/comm"
	"github.com/xmidt-org/teleop/hardware"
	"github.com/xmidt-org/teleop/message"
)

// configVersion is the version header every config file (base or user)
// must carry, checked against InternalMajorVersion before anything else
// in the file is trusted.
type configVersion struct {
	Major uint32 `json:"major"`
	Minor uint32 `json:"minor"`
}

type rawSpecifier struct {
	Kind     string   `json:"kind"`
	Names    []string `json:"names,omitempty"`
	Services []string `json:"services,omitempty"`
	VID      uint16   `json:"vid,omitempty"`
	PID      uint16   `json:"pid,omitempty"`
	Port     string   `json:"port,omitempty"`
	Baud     int      `json:"baud,omitempty"`
}

func (r rawSpecifier) toSpecifier() (comm.Specifier, error) {
	switch r.Kind {
	case "ble":
		return comm.BLESpecifier{Names: r.Names, AdvertisedServices: r.Services}, nil
	case "hid":
		return comm.HIDSpecifier{VID: r.VID, PID: r.PID}, nil
	case "usb":
		return comm.USBSpecifier{VID: r.VID, PID: r.PID}, nil
	case "serial":
		return comm.SerialSpecifier{Port: r.Port, Baud: r.Baud}, nil
	case "xinput":
		return comm.XInputSpecifier{}, nil
	case "lovense-connect":
		return comm.LovenseConnectSpecifier{}, nil
	case "websocket":
		return comm.WebsocketSpecifier{Names: r.Names}, nil
	default:
		return nil, fmt.Errorf("deviceconfig: unknown specifier kind %q", r.Kind)
	}
}

type rawDeviceEntry struct {
	Identifier       string                   `json:"identifier,omitempty"`
	BaseID           *string                  `json:"base_id,omitempty"`
	Endpoints        map[string]string        `json:"endpoints"`
	Features         []message.DeviceFeature  `json:"features"`
	Allow            bool                     `json:"allow,omitempty"`
	Deny             bool                     `json:"deny,omitempty"`
	AllowRawMessages bool                     `json:"allow_raw_messages,omitempty"`
}

type rawProtocolEntry struct {
	CommunicationSpecifiers []rawSpecifier   `json:"communication_specifiers"`
	Devices                 []rawDeviceEntry `json:"devices"`
}

type rawConfigFile struct {
	Version   configVersion                `json:"version"`
	Protocols map[string]rawProtocolEntry  `json:"protocols"`
}

// LoadBaseConfig reads the built-in protocol/device catalogue from r and
// installs it as m's base configuration. A major version mismatch against
// InternalMajorVersion is always fatal, mirroring
// device_config_file/mod.rs's non-negotiable version check.
func (m *Manager) LoadBaseConfig(r io.Reader) error {
	cfg, err := decodeConfig(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for protocol, entry := range cfg.Protocols {
		for _, rs := range entry.CommunicationSpecifiers {
			spec, err := rs.toSpecifier()
			if err != nil {
				return err
			}
			m.baseSpecifiers[protocol] = append(m.baseSpecifiers[protocol], spec)
		}
		for _, rd := range entry.Devices {
			def, err := rd.toDefinition()
			if err != nil {
				return err
			}
			m.baseDevices[BaseDeviceIdentifier{Protocol: protocol, Identifier: rd.Identifier}] = def
		}
	}
	return nil
}

// LoadUserConfig overlays additional communication specifiers and device
// definitions from r, also subject to the major-version check.
func (m *Manager) LoadUserConfig(r io.Reader) error {
	cfg, err := decodeConfig(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for protocol, entry := range cfg.Protocols {
		for _, rs := range entry.CommunicationSpecifiers {
			spec, err := rs.toSpecifier()
			if err != nil {
				return err
			}
			m.userSpecifiers[protocol] = append(m.userSpecifiers[protocol], spec)
		}
		for _, rd := range entry.Devices {
			def, err := rd.toDefinition()
			if err != nil {
				return err
			}
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
			m.userDevices[UserDeviceIdentifier{Protocol: protocol, Identifier: rd.Identifier}] = def
		}
	}
	return nil
}

func decodeConfig(r io.Reader) (*rawConfigFile, error) {
	var cfg rawConfigFile
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("deviceconfig: %w", err)
	}
	if cfg.Version.Major != InternalMajorVersion {
		return nil, fmt.Errorf(
			"deviceconfig: config major version %d differs from internal major version %d, refusing to load",
			cfg.Version.Major, InternalMajorVersion)
	}
	return &cfg, nil
}

func (rd rawDeviceEntry) toDefinition() (DeviceDefinition, error) {
	endpoints := make(hardware.EndpointMap, len(rd.Endpoints))
	for k, v := range rd.Endpoints {
		endpoints[hardware.Endpoint(k)] = v
	}
	for i := range rd.Features {
		if err := rd.Features[i].Validate(); err != nil {
			return DeviceDefinition{}, fmt.Errorf("deviceconfig: feature %d: %w", rd.Features[i].FeatureIndex, err)
		}
	}
	return DeviceDefinition{
		BaseID:           rd.BaseID,
		Endpoints:        endpoints,
		Features:         rd.Features,
		Allow:            rd.Allow,
		Deny:             rd.Deny,
		AllowRawMessages: rd.AllowRawMessages,
	}, nil
}
