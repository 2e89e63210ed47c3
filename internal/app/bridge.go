package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"cloudpico-bridge/internal/ble"
	"cloudpico-bridge/internal/config"
	"cloudpico-bridge/internal/pipeline"
	"cloudpico-bridge/internal/record"
	"cloudpico-bridge/internal/ring"
	"cloudpico-bridge/internal/sensor"
	"cloudpico-bridge/internal/sysstat"
)

// Deps are the collaborators that touch hardware or the network.
type Deps struct {
	Link     pipeline.Link
	Commands pipeline.CommandSource
	// Scanner is nil when BLE is disabled.
	Scanner ble.Scanner
	Stats   sysstat.Source
	// OpenSensor is nil when the BME280 is disabled.
	OpenSensor sensor.Opener
	Filter     *ble.Filter
}

// Bridge owns the record pipeline: one ring buffer and task per source and a
// single consumer draining them all.
type Bridge struct {
	Registry *pipeline.Registry
	Consumer *pipeline.Consumer
	Devices  *ble.Devices
	Resolver *ble.Resolver
	BT       *ble.Provider
	Sys      *sysstat.Provider
	Env      *sensor.Provider

	cfg    config.Config
	tasks  []*pipeline.Task
	logger *slog.Logger
}

func NewBridge(cfg config.Config, host pipeline.Host, deps Deps, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	reg := pipeline.NewRegistry(host)
	disc := pipeline.NewDiscovery(reg)
	consumer := pipeline.NewConsumer(deps.Link, reg, cfg.JSONBufferSize, logger)
	if deps.Commands != nil {
		consumer.SetCommandSource(deps.Commands)
	}

	b := &Bridge{
		Registry: reg,
		Consumer: consumer,
		Devices:  ble.NewDevices(),
		cfg:      cfg,
		logger:   logger,
	}
	b.Resolver = ble.NewResolver(reg, disc, b.Devices, deps.Filter)
	ble.RegisterDefaults(b.Resolver)

	var reporters []pipeline.SystemReporter
	if deps.Scanner != nil {
		buf := ring.New("bt", cfg.BTBufferRecords)
		b.BT = ble.NewProvider(buf, reg, b.Resolver, b.Devices, deps.Link, deps.Scanner, cfg.BLEQueueSize, logger)
		b.addTask(buf, b.BT)
		reporters = append(reporters, b.BT)
	}

	sysBuf := ring.New("sys", cfg.SysBufferRecords)
	b.Sys = sysstat.NewProvider(sysBuf, reg, disc, deps.Link, deps.Stats, cfg.SystemInterval, logger, reporters...)
	b.addTask(sysBuf, b.Sys)

	if deps.OpenSensor != nil {
		envBuf := ring.New("env", cfg.EnvBufferRecords)
		b.Env = sensor.NewProvider(envBuf, reg, disc, deps.Link, deps.OpenSensor, cfg.BME280Address,
			cfg.SensorPollInterval, logger)
		b.addTask(envBuf, b.Env)
	}

	consumer.Handle(record.FieldDiscoveryReset, b.resetDiscovery)
	return b
}

func (b *Bridge) addTask(buf *ring.Buffer, p pipeline.Provider) {
	b.Consumer.Attach(buf)
	b.tasks = append(b.tasks, pipeline.NewTask(buf.Name(), b.logger, p))
}

func (b *Bridge) resetDiscovery(cmd pipeline.Command) {
	b.logger.Info("discovery reset requested", "device", cmd.DeviceID)
	b.Sys.RequestDiscovery()
	b.Devices.ResetDiscovery()
	if b.Env != nil {
		b.Env.RequestDiscovery()
	}
}

// Run runs every task and the consumer until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range b.tasks {
		g.Go(func() error { return t.Run(gctx) })
	}
	g.Go(func() error { return b.Consumer.Run(gctx, b.cfg.DrainInterval) })
	return g.Wait()
}
