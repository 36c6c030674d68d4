// Package config loads the agent configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/geebinge/iot-hub-device-update/pkg/retry"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "/etc/adu/du-config.yaml"

// Configuration errors.
var (
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrInvalidConnectionType = fmt.Errorf("%w: unknown connection type", ErrInvalidConfig)
	ErrMissingUsername       = fmt.Errorf("%w: mqttBroker.username is not specified", ErrInvalidConfig)
	ErrMissingHostname       = fmt.Errorf("%w: mqttBroker.hostname is not specified", ErrInvalidConfig)
)

// Connection types.
const (
	ConnectionTypeADPS2MQTT  = "ADPS2/MQTT"
	ConnectionTypeMQTTBroker = "MQTTBroker"
)

// File is the agent configuration file.
type File struct {
	Agent Agent `yaml:"agent"`

	// StateFile is where the State Store is persisted. Empty disables
	// persistence.
	StateFile string `yaml:"stateFile"`

	// ProtocolLog is the path of the CBOR protocol trace. Empty disables it.
	ProtocolLog string `yaml:"protocolLog"`

	// ProtocolLogMaxSize rotates the protocol trace once it exceeds this
	// many bytes. Zero keeps a single growing file.
	ProtocolLogMaxSize int64 `yaml:"protocolLogMaxSize"`

	// MetricsAddress is the listen address of the Prometheus endpoint.
	// Empty disables it.
	MetricsAddress string `yaml:"metricsAddress"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`
}

// Agent describes the agent and how it reaches the service.
type Agent struct {
	Name           string         `yaml:"name"`
	ConnectionType string         `yaml:"connectionType"`
	ConnectionData ConnectionData `yaml:"connectionData"`

	// ExternalDeviceID seeds the State Store when no provisioning module
	// supplies it.
	ExternalDeviceID string `yaml:"externalDeviceId"`

	Enrollment Enrollment     `yaml:"enrollment"`
	Retry      retry.ParamSet `yaml:"retry"`
}

// ConnectionData holds connection-type specific settings.
type ConnectionData struct {
	MQTTBroker MQTTBroker `yaml:"mqttBroker"`
}

// MQTTBroker is the raw mqttBroker section. Pointer fields distinguish
// absent values from zero values.
type MQTTBroker struct {
	Hostname string `yaml:"hostname"`
	CAFile   string `yaml:"caFile"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
	Username string `yaml:"username"`

	MQTTVersion        *int  `yaml:"mqttVersion"`
	TCPPort            *int  `yaml:"tcpPort"`
	UseTLS             *bool `yaml:"useTLS"`
	QoS                *int  `yaml:"qos"`
	CleanSession       *bool `yaml:"cleanSession"`
	KeepAliveInSeconds *int  `yaml:"keepAliveInSeconds"`
}

// Enrollment configures the enrollment operation.
type Enrollment struct {
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	ResponseTimeout time.Duration `yaml:"responseTimeout"`
}

// Parse parses a configuration file from YAML bytes.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if f.Agent.ConnectionType == "" {
		return nil, fmt.Errorf("%w: agent.connectionType is required", ErrInvalidConfig)
	}
	return &f, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}
