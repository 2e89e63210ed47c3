package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"cloudpico-bridge/internal/ble"
	"cloudpico-bridge/internal/config"
	"cloudpico-bridge/internal/journal"
	"cloudpico-bridge/internal/mqtt"
	"cloudpico-bridge/internal/pipeline"
	"cloudpico-bridge/internal/sensor"
	"cloudpico-bridge/internal/sysstat"
)

const (
	brokerLookupTimeout = 10 * time.Second
	journalQueue        = 256
	journalRetention    = 7 * 24 * time.Hour
)

func Run(ctx context.Context, cfg config.Config, version string) error {
	stats := sysstat.HostSource{InterfaceName: cfg.NetInterface}
	host, err := sysstat.Identity(ctx, stats, cfg.BridgeName, version)
	if err != nil {
		return fmt.Errorf("host identity: %w", err)
	}

	if cfg.MQTTBroker == config.BrokerAuto {
		addr, port, err := mqtt.DiscoverBroker(ctx, brokerLookupTimeout)
		if err != nil {
			return fmt.Errorf("broker lookup: %w", err)
		}
		slog.Info("mqtt broker found via mdns", "broker", addr, "port", port)
		cfg.MQTTBroker, cfg.MQTTPort = addr, port
	}

	slog.Info("initializing bridge",
		"bridge", cfg.BridgeName,
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"mqtt_client_id", cfg.MQTTClientID,
	)

	client, err := mqtt.NewClient(cfg, slog.Default())
	if err != nil {
		return err
	}

	var filter *ble.Filter
	if cfg.BLEFilterPath != "" {
		if filter, err = ble.LoadFilter(cfg.BLEFilterPath); err != nil {
			return err
		}
	}

	deps := Deps{
		Link:     client,
		Commands: client,
		Stats:    stats,
		Filter:   filter,
	}
	if cfg.BLEEnabled {
		deps.Scanner = ble.NewListener(ble.Options{Adapter: cfg.BLEAdapter}, slog.Default())
	}
	if cfg.BME280Enabled {
		deps.OpenSensor = sensor.Open
	}

	var jr *journal.Journal
	if cfg.JournalPath != "" {
		db, err := journal.Open(cfg.JournalPath, slog.Default())
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer db.Close()
		jr = journal.New(db, journalQueue, slog.Default())
		if n, err := jr.Prune(ctx, time.Now().Add(-journalRetention)); err != nil {
			slog.Warn("journal prune failed", "error", err)
		} else if n > 0 {
			slog.Info("journal pruned", "messages", n)
		}
		deps.Link = journal.NewLink(client, jr)
	}

	bridge := NewBridge(cfg, host, deps, slog.Default())
	client.Subscribe(pipeline.CommandSubscription(cfg.BridgeName, bridge.Registry.HostIdentity().StrID))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// paho keeps reconnecting on its own once the first attempt is made
		if err := client.Connect(gctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mqtt connect failed", "error", err)
		}
		return nil
	})
	if jr != nil {
		g.Go(func() error { return jr.Run(gctx) })
	}
	g.Go(func() error { return bridge.Run(gctx) })
	g.Go(func() error { return watchdog(gctx) })

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		slog.Debug("systemd notify failed", "error", err)
	}

	err = g.Wait()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	client.Disconnect()
	st := bridge.Consumer.Stats()
	slog.Info("bridge shutting down",
		"messages_sent", st.Sent,
		"messages_invalid", st.Invalid,
		"element_failures", st.ElementFailures,
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchdog pings systemd at half the configured watchdog interval. Without a
// watchdog it returns immediately.
func watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
