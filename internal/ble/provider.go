package ble

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"cloudpico-bridge/internal/pipeline"
	"cloudpico-bridge/internal/record"
	"cloudpico-bridge/internal/ring"
	"cloudpico-bridge/internal/utils"
)

// Scanner delivers advertisements until ctx is done. onPacket must not block.
type Scanner interface {
	Run(ctx context.Context, onPacket func(Packet)) error
}

const (
	providerWait     = 50 * time.Millisecond
	maxPerLoop       = 32
	deviceForgetAge  = time.Hour
	deviceForgetTick = 10 * time.Minute
)

// Provider resolves scanned packets on the writer goroutine of the BT buffer.
// Scanner callbacks only hand packets over through a bounded channel.
type Provider struct {
	buf      *ring.Buffer
	resolver *Resolver
	devices  *Devices
	link     pipeline.Readiness
	scanner  Scanner
	gen      record.Ref
	in       chan Packet
	logger   *slog.Logger

	scanned   atomic.Uint64
	forwarded atomic.Uint64
	dropped   atomic.Uint64
	unknown   atomic.Uint64
	small     atomic.Uint64

	lastReset  time.Duration
	lastForget time.Time
}

func NewProvider(buf *ring.Buffer, reg *pipeline.Registry, resolver *Resolver, devices *Devices,
	link pipeline.Readiness, scanner Scanner, queue int, logger *slog.Logger,
) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		buf:      buf,
		resolver: resolver,
		devices:  devices,
		link:     link,
		scanner:  scanner,
		gen:      reg.AddGenerator(GenerateLink),
		in:       make(chan Packet, queue),
		logger:   logger,
	}
}

func (p *Provider) Name() string { return "bt" }

// Setup starts the scanner. A scanner that fails later only disables BLE.
func (p *Provider) Setup(ctx context.Context) error {
	if p.scanner == nil {
		return nil
	}
	go func() {
		err := p.scanner.Run(ctx, func(pkt Packet) { p.Offer(pkt) })
		if err != nil {
			p.logger.Warn("ble scanner could not be initialized; bridge continues without BLE",
				"error", err,
			)
		}
	}()
	return nil
}

// Offer queues a packet for resolution. It never blocks and reports whether
// the packet was accepted.
func (p *Provider) Offer(pkt Packet) bool {
	p.scanned.Add(1)
	select {
	case p.in <- pkt:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Loop resolves the queued packets while the link is up. Packets that arrive
// while it is down are discarded.
func (p *Provider) Loop(now time.Time) time.Duration {
	ready := p.link.Ready()
	if ready && p.devices.SetReadyTime(p.link.ReadyTime()) {
		p.logger.Debug("ble: discovery reset for new connection", "devices", p.devices.Len())
	}

	for range maxPerLoop {
		select {
		case pkt := <-p.in:
			if ready {
				p.handle(&pkt)
			}
		default:
			return p.housekeeping(now)
		}
	}
	return p.housekeeping(now)
}

func (p *Provider) housekeeping(now time.Time) time.Duration {
	if now.Sub(p.lastForget) >= deviceForgetTick {
		p.lastForget = now
		if n := p.devices.Forget(now.Add(-deviceForgetAge)); n > 0 {
			p.logger.Debug("ble: forgot idle devices", "count", n)
		}
	}
	return providerWait
}

func (p *Provider) handle(pkt *Packet) {
	res, m, vendor := p.resolver.Resolve(p.buf, pkt)
	switch res {
	case Resolved:
	case Unknown:
		p.unknown.Add(1)
		return
	case SmallBuffer:
		p.small.Add(1)
		p.logger.Warn("ble: no buffer for message", "vendor", vendor, "addr", utils.MAC(pkt.Addr[:]))
		return
	default:
		return
	}

	free := p.buf.Free()
	if free >= 1 {
		AddGeneratorRecord(p.buf, p.gen, pkt.RSSI, pkt.TxPower(), m.UUID)
		free--
	}
	if free >= 1 && free >= (len(m.Data)+record.RawCapacity-1)/record.RawCapacity {
		addRawChunks(p.buf, m.Field, m.Data)
	}
	p.buf.CloseLast()
	p.forwarded.Add(1)

	uuid := "none"
	if m.UUID != 0 {
		uuid = utils.Hex4(uint16(m.UUID))
	}
	p.logger.Debug("ble: packet forwarded",
		"vendor", vendor,
		"addr", utils.MAC(pkt.Addr[:]),
		"uuid", uuid,
		"rssi", pkt.RSSI,
		"data", utils.BytesToHex(m.Data),
	)
}

// addRawChunks writes data as RawCapacity sized records, the first under
// field and the rest as continuations. Empty data still gets one record.
func addRawChunks(dst record.Allocator, field record.Field, data []byte) {
	for first := true; first || len(data) > 0; first = false {
		n := min(len(data), record.RawCapacity)
		f := field
		if !first {
			f = record.FieldCont
		}
		dst.Next(f, record.TypeRaw, uint8(n)|record.RawHexLower, 0).SetRaw(data[:n])
		data = data[n:]
	}
}

// ProviderStats are packet counters. Scanned and Forwarded restart at every
// system update.
type ProviderStats struct {
	Scanned     uint64
	Forwarded   uint64
	Dropped     uint64
	Unknown     uint64
	SmallBuffer uint64
}

func (p *Provider) Stats() ProviderStats {
	return ProviderStats{
		Scanned:     p.scanned.Load(),
		Forwarded:   p.forwarded.Load(),
		Dropped:     p.dropped.Load(),
		Unknown:     p.unknown.Load(),
		SmallBuffer: p.small.Load(),
	}
}

// SystemDiscovery lists the entities SystemUpdate reports.
func (p *Provider) SystemDiscovery() []pipeline.Entity {
	return []pipeline.Entity{pipeline.EntityBTScanned, pipeline.EntityBTForwarded}
}

// SystemUpdate writes the scanned and forwarded packet rates since the
// previous update and restarts the counting.
func (p *Provider) SystemUpdate(dst record.Target, uptime time.Duration) int {
	const need = 2
	if free := dst.Free(); free < need {
		return need - free
	}
	elapsed := (uptime - p.lastReset).Seconds()
	if elapsed <= 0 {
		elapsed = 0.1
	}
	scanned := p.scanned.Swap(0)
	forwarded := p.forwarded.Swap(0)
	p.lastReset = uptime

	dst.Next(record.FieldBTScanned, record.TypeFloat, 3, 0).SetFloat(float32(float64(scanned) / elapsed))
	dst.Next(record.FieldBTForwarded, record.TypeFloat, 3, 0).SetFloat(float32(float64(forwarded) / elapsed))
	return 0
}
