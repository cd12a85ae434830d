// Package server wires the remote server surface of spec §5: HTTP/websocket
// glue, client auth, tracing, and device-lifecycle webhooks, following
// tr1d1um.go's pflag+viper configuration shape.
package server

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const applicationName = "teleop"

// Config keys, mirroring tr1d1um.go's const block of viper keys.
const (
	listenAddrKey       = "listenAddress"
	serverNameKey       = "serverName"
	maxPingMsKey        = "maxPingTimeMs"
	schemaPathKey       = "schemaPath"
	baseConfigKey       = "baseDeviceConfig"
	userConfigKey       = "userDeviceConfig"
	allowRawMessagesKey = "allowRawMessages"
	authTokensKey       = "authTokens"
	webhookURLsKey      = "webhookURLs"

	bleAdapterKey  = "ble.adapter"
	bleEnabledKey  = "ble.enabled"
	hidEnabledKey  = "hid.enabled"
	serialEnabledKey    = "serial.enabled"
	xinputEnabledKey    = "xinput.enabled"
	lovenseEnabledKey   = "lovenseConnect.enabled"
	lovenseURLKey       = "lovenseConnect.url"
	lovensePollKey      = "lovenseConnect.pollInterval"
	wsDeviceEnabledKey  = "websocketDevice.enabled"
	wsDeviceAddrKey     = "websocketDevice.address"
)

var defaults = map[string]interface{}{
	listenAddrKey:       ":12345",
	serverNameKey:       "teleop",
	maxPingMsKey:        0,
	allowRawMessagesKey: false,
	lovensePollKey:      "1s",
	wsDeviceAddrKey:     ":12346",
}

// Config is the fully parsed server configuration.
type Config struct {
	ListenAddress    string
	ServerName       string
	MaxPingMs        uint32
	SchemaPath       string
	BaseConfigPath   string
	UserConfigPath   string
	AllowRawMessages bool
	AuthTokens       map[string]string
	WebhookURLs      []string

	BLEEnabled     bool
	BLEAdapter     string
	HIDEnabled     bool
	SerialEnabled  bool
	XInputEnabled  bool
	LovenseEnabled bool
	LovenseURL     string
	LovensePoll    time.Duration
	WSDeviceEnabled bool
	WSDeviceAddress string
}

// LoadConfig parses arguments (normally os.Args[1:]) into a Config,
// following tr1d1um.go's pflag.NewFlagSet + viper.New + SetDefault pattern.
func LoadConfig(arguments []string) (*Config, error) {
	f := pflag.NewFlagSet(applicationName, pflag.ContinueOnError)
	f.String("config", "", "path to a YAML/JSON config file")
	v := viper.New()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := f.Parse(arguments); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}
	if err := v.BindPFlags(f); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	if cfgFile, _ := f.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	poll, err := time.ParseDuration(v.GetString(lovensePollKey))
	if err != nil {
		poll = time.Second
	}

	return &Config{
		ListenAddress:    v.GetString(listenAddrKey),
		ServerName:       v.GetString(serverNameKey),
		MaxPingMs:        uint32(v.GetInt(maxPingMsKey)),
		SchemaPath:       v.GetString(schemaPathKey),
		BaseConfigPath:   v.GetString(baseConfigKey),
		UserConfigPath:   v.GetString(userConfigKey),
		AllowRawMessages: v.GetBool(allowRawMessagesKey),
		AuthTokens:       v.GetStringMapString(authTokensKey),
		WebhookURLs:      v.GetStringSlice(webhookURLsKey),

		BLEEnabled:      v.GetBool(bleEnabledKey),
		BLEAdapter:      v.GetString(bleAdapterKey),
		HIDEnabled:      v.GetBool(hidEnabledKey),
		SerialEnabled:   v.GetBool(serialEnabledKey),
		XInputEnabled:   v.GetBool(xinputEnabledKey),
		LovenseEnabled:  v.GetBool(lovenseEnabledKey),
		LovenseURL:      v.GetString(lovenseURLKey),
		LovensePoll:     poll,
		WSDeviceEnabled: v.GetBool(wsDeviceEnabledKey),
		WSDeviceAddress: v.GetString(wsDeviceAddrKey),
	}, nil
}
