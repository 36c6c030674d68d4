package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// MQTT broker defaults.
const (
	DefaultMQTTVersion  = 5
	MinMQTTVersion      = 5
	DefaultTCPPort      = 8883
	DefaultUseTLS       = true
	DefaultQoS          = 1
	DefaultCleanSession = false
	DefaultKeepAlive    = 180
	MaxKeepAlive        = 65535
)

// HostnameSource tells where the broker hostname comes from.
type HostnameSource uint8

const (
	// HostnameSourceDPS means provisioning writes the hostname to the State Store.
	HostnameSourceDPS HostnameSource = iota

	// HostnameSourceConfigFile means the hostname is in the configuration file.
	HostnameSourceConfigFile
)

// String returns the source name.
func (s HostnameSource) String() string {
	switch s {
	case HostnameSourceDPS:
		return "dps"
	case HostnameSourceConfigFile:
		return "config"
	default:
		return "unknown"
	}
}

// MQTTSettings are the resolved broker connection settings.
type MQTTSettings struct {
	HostnameSource HostnameSource
	Hostname       string

	CAFile   string
	CertFile string
	KeyFile  string
	Username string

	// MQTTVersion is informational; the session always speaks v5.
	MQTTVersion  int
	TCPPort      int
	UseTLS       bool
	QoS          byte
	CleanSession bool
	KeepAlive    time.Duration
}

// ReadMQTTBrokerSettings resolves the broker settings of agent, applying
// defaults to absent or out of range values. Each applied default is logged.
func ReadMQTTBrokerSettings(agent Agent, logger *slog.Logger) (*MQTTSettings, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	raw := agent.ConnectionData.MQTTBroker
	s := &MQTTSettings{
		CAFile:   raw.CAFile,
		CertFile: raw.CertFile,
		KeyFile:  raw.KeyFile,
		Username: raw.Username,
	}

	switch agent.ConnectionType {
	case ConnectionTypeADPS2MQTT:
		s.HostnameSource = HostnameSourceDPS
	case ConnectionTypeMQTTBroker:
		s.HostnameSource = HostnameSourceConfigFile
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidConnectionType, agent.ConnectionType)
	}

	if s.Username == "" {
		return nil, ErrMissingUsername
	}

	if s.HostnameSource == HostnameSourceDPS {
		logger.Info("using provisioning to retrieve the broker hostname")
	} else {
		if raw.Hostname == "" {
			return nil, ErrMissingHostname
		}
		s.Hostname = raw.Hostname
	}

	switch {
	case raw.MQTTVersion == nil:
		logger.Info("using default MQTT protocol version", "version", DefaultMQTTVersion)
		s.MQTTVersion = DefaultMQTTVersion
	case *raw.MQTTVersion < MinMQTTVersion:
		logger.Warn("MQTT protocol version not supported, using v5",
			"configured", *raw.MQTTVersion, "version", DefaultMQTTVersion)
		s.MQTTVersion = DefaultMQTTVersion
	default:
		s.MQTTVersion = *raw.MQTTVersion
	}

	if raw.TCPPort == nil || *raw.TCPPort <= 0 || *raw.TCPPort > 65535 {
		logger.Info("using default TCP port", "port", DefaultTCPPort)
		s.TCPPort = DefaultTCPPort
	} else {
		s.TCPPort = *raw.TCPPort
	}

	if raw.UseTLS == nil {
		logger.Info("using default TLS setting", "use_tls", DefaultUseTLS)
		s.UseTLS = DefaultUseTLS
	} else {
		s.UseTLS = *raw.UseTLS
	}

	if raw.QoS == nil || *raw.QoS < 0 || *raw.QoS > 2 {
		logger.Info("using default QoS", "qos", DefaultQoS)
		s.QoS = DefaultQoS
	} else {
		s.QoS = byte(*raw.QoS)
	}

	if raw.CleanSession == nil {
		logger.Info("using default clean session", "clean_session", DefaultCleanSession)
		s.CleanSession = DefaultCleanSession
	} else {
		s.CleanSession = *raw.CleanSession
	}

	if raw.KeepAliveInSeconds == nil || *raw.KeepAliveInSeconds <= 0 || *raw.KeepAliveInSeconds > MaxKeepAlive {
		logger.Info("using default keep alive", "seconds", DefaultKeepAlive)
		s.KeepAlive = DefaultKeepAlive * time.Second
	} else {
		s.KeepAlive = time.Duration(*raw.KeepAliveInSeconds) * time.Second
	}

	return s, nil
}

// TLSConfig builds the client TLS configuration. It returns nil when TLS is
// disabled. Without a CA file the system roots are used.
func (s *MQTTSettings) TLSConfig() (*tls.Config, error) {
	if !s.UseTLS {
		return nil, nil
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if s.CAFile != "" {
		pem, err := os.ReadFile(s.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates in %s", ErrInvalidConfig, s.CAFile)
		}
		cfg.RootCAs = pool
	}

	switch {
	case s.CertFile != "" && s.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(s.CertFile, s.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	case s.CertFile != "" || s.KeyFile != "":
		return nil, fmt.Errorf("%w: certFile and keyFile must be set together", ErrInvalidConfig)
	}

	return cfg, nil
}
