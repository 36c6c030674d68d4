package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geebinge/iot-hub-device-update/pkg/commchannel"
	"github.com/geebinge/iot-hub-device-update/pkg/config"
	"github.com/geebinge/iot-hub-device-update/pkg/enrollment"
	mlog "github.com/geebinge/iot-hub-device-update/pkg/log"
	"github.com/geebinge/iot-hub-device-update/pkg/module"
	"github.com/geebinge/iot-hub-device-update/pkg/statestore"
)

// Module identity of the communication channel.
const (
	channelProvider = "Microsoft"
	channelModule   = "CommunicationManagement"
	channelVersion  = "1.0"
)

// agentOptions carries command-line overrides and test hooks.
type agentOptions struct {
	DeviceID string
	Interval time.Duration

	Logger         *slog.Logger
	ProtocolLogger mlog.Logger

	// Dial replaces the MQTT dialer.
	Dial commchannel.Dialer
}

// agent is an assembled device update agent.
type agent struct {
	logger *slog.Logger

	store     *statestore.Store
	fileStore *statestore.FileStore

	channel    *commchannel.Manager
	enrollment *enrollment.Module
	host       *module.Host
}

// newAgent builds the State Store, the service channel and the enrollment
// module from the configuration file.
func newAgent(file *config.File, opts agentOptions) (*agent, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings, err := config.ReadMQTTBrokerSettings(file.Agent, logger.With("component", "config"))
	if err != nil {
		return nil, err
	}
	tlsCfg, err := settings.TLSConfig()
	if err != nil {
		return nil, err
	}

	a := &agent{
		logger: logger,
		store:  statestore.New(),
	}

	if file.StateFile != "" {
		a.fileStore = statestore.NewFileStore(file.StateFile)
		st, err := a.fileStore.Load()
		if err != nil {
			return nil, fmt.Errorf("loading state: %w", err)
		}
		a.store.Restore(st)
	}

	deviceID := opts.DeviceID
	if deviceID == "" {
		deviceID = file.Agent.ExternalDeviceID
	}
	if deviceID != "" {
		a.store.SetExternalDeviceID(deviceID)
	}
	if _, ok := a.store.ExternalDeviceID(); ok {
		// Without a provisioning module an identity from configuration is
		// treated as registered.
		a.store.SetDeviceRegistered(true)
	}
	if settings.HostnameSource == config.HostnameSourceConfigFile {
		a.store.SetMQTTBrokerHostname(settings.Hostname)
	}

	a.channel, err = commchannel.NewManager(commchannel.Config{
		Store:          a.store,
		Port:           settings.TCPPort,
		UseTLS:         settings.UseTLS,
		TLSConfig:      tlsCfg,
		Username:       settings.Username,
		KeepAlive:      settings.KeepAlive,
		CleanSession:   settings.CleanSession,
		QoS:            settings.QoS,
		Params:         file.Agent.Retry,
		Logger:         logger.With("component", "commchannel"),
		ProtocolLogger: opts.ProtocolLogger,
		Dial:           opts.Dial,
	})
	if err != nil {
		return nil, err
	}

	a.enrollment = enrollment.NewModule(enrollment.Config{
		Store:           a.store,
		RefreshInterval: file.Agent.Enrollment.RefreshInterval,
		ResponseTimeout: file.Agent.Enrollment.ResponseTimeout,
		Params:          file.Agent.Retry,
		Logger:          logger.With("component", "enrollment"),
		ProtocolLogger:  opts.ProtocolLogger,
	})

	a.host = module.NewHost(
		module.WithInterval(opts.Interval),
		module.WithLogger(logger.With("component", "host")),
	)
	a.host.Add(module.FromOperation(module.ContractInfo{
		Provider:      channelProvider,
		Name:          channelModule,
		Version:       channelVersion,
		ContractMajor: 1,
	}, a.channel))
	a.host.Add(a.enrollment)
	if a.fileStore != nil {
		a.host.Add(&stateSaver{store: a.store, file: a.fileStore, logger: logger})
	}

	return a, nil
}

// Run drives the modules until ctx is done.
func (a *agent) Run(ctx context.Context) error {
	err := a.host.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close tears the modules down and writes the final state.
func (a *agent) Close() error {
	a.host.Close()
	if a.fileStore == nil {
		return nil
	}
	return a.store.SaveTo(a.fileStore)
}

// stateSaver is a module that persists the State Store after changes.
type stateSaver struct {
	store  *statestore.Store
	file   *statestore.FileStore
	logger *slog.Logger
}

func (s *stateSaver) ContractInfo() module.ContractInfo {
	return module.ContractInfo{Provider: channelProvider, Name: "StateStore", Version: "1.0", ContractMajor: 1}
}

func (s *stateSaver) Initialize(context.Context) error { return nil }

func (s *stateSaver) DoWork(context.Context) error {
	if !s.store.Dirty() {
		return nil
	}
	if err := s.store.SaveTo(s.file); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	s.logger.Debug("state saved", "path", s.file.Path())
	return nil
}

func (s *stateSaver) Deinitialize() {}
func (s *stateSaver) Destroy()      {}
func (s *stateSaver) Data() any     { return s.store }
