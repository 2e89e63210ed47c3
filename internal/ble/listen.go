package ble

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"

	"tinygo.org/x/bluetooth"
)

type Options struct {
	Adapter string // "hci0" by default
}

// Listener wraps BlueZ scanning with context cancellation.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
	logger  *slog.Logger
}

func NewListener(opts Options, logger *slog.Logger) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		logger:  logger,
	}
}

// Run scans until ctx is done, handing every advertisement to onPacket as a
// re-encoded AD payload.
func (l *Listener) Run(ctx context.Context, onPacket func(Packet)) error {
	l.logger.Info("ble: enabling adapter", "adapter", l.opts.Adapter)
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}
	l.logger.Info("ble: adapter enabled", "adapter", l.opts.Adapter)

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	l.logger.Info("ble: scanning started")

	// adapter.Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		pkt, ok := packetFromScan(r)
		if !ok {
			return
		}
		onPacket(pkt)
	})

	// If ctx canceled, treat as clean shutdown.
	if ctx.Err() != nil {
		l.logger.Info("ble: scanning stopped (context canceled)")
		return nil
	}

	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}

	l.logger.Info("ble: scanning stopped")
	return nil
}

// packetFromScan rebuilds the AD structures the decoders need from the
// parsed fields the adapter reports.
func packetFromScan(r bluetooth.ScanResult) (Packet, bool) {
	mac, err := net.ParseMAC(r.Address.String())
	if err != nil || len(mac) != 6 {
		return Packet{}, false
	}
	pkt := Packet{
		Addr: [6]byte(mac),
		RSSI: r.RSSI,
	}

	var payload []byte
	if name := r.LocalName(); name != "" {
		payload = AppendAD(payload, ADName, []byte(name))
	}
	for _, sd := range r.ServiceData() {
		if !sd.UUID.Is16Bit() {
			continue
		}
		v := binary.LittleEndian.AppendUint16(nil, sd.UUID.Get16Bit())
		payload = AppendAD(payload, ADServiceData16, append(v, sd.Data...))
	}
	for _, md := range r.ManufacturerData() {
		v := binary.LittleEndian.AppendUint16(nil, md.CompanyID)
		payload = AppendAD(payload, ADManufacturer, append(v, md.Data...))
	}
	pkt.Payload = payload
	return pkt, true
}
