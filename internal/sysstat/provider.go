package sysstat

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"cloudpico-bridge/internal/pipeline"
	"cloudpico-bridge/internal/record"
	"cloudpico-bridge/internal/ring"
)

const (
	DefaultInterval = 120 * time.Second
	retryWait       = time.Second
)

// Provider writes the host status to the SYS buffer and gathers the
// statistics of every registered SystemReporter into the same message.
type Provider struct {
	buf       *ring.Buffer
	reg       *pipeline.Registry
	disc      *pipeline.Discovery
	link      pipeline.Readiness
	src       Source
	reporters []pipeline.SystemReporter
	interval  time.Duration
	logger    *slog.Logger

	ctx       context.Context
	entities  record.Ref
	start     time.Time
	readyTime time.Time
	discover  atomic.Bool
	lastSent  time.Time
	forceSend bool
}

func NewProvider(buf *ring.Buffer, reg *pipeline.Registry, disc *pipeline.Discovery, link pipeline.Readiness,
	src Source, interval time.Duration, logger *slog.Logger, reporters ...pipeline.SystemReporter,
) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Provider{
		buf:       buf,
		reg:       reg,
		disc:      disc,
		link:      link,
		src:       src,
		reporters: reporters,
		interval:  interval,
		logger:    logger,
		ctx:       context.Background(),
	}
}

func (p *Provider) Name() string { return "sys" }

func (p *Provider) Setup(ctx context.Context) error {
	p.ctx = ctx
	p.start = time.Now()
	return nil
}

// RequestDiscovery makes the next round announce the host again. Safe to call
// from any goroutine.
func (p *Provider) RequestDiscovery() { p.discover.Store(true) }

// Entities lists everything announced for the host.
func (p *Provider) Entities() []pipeline.Entity {
	list := []pipeline.Entity{
		pipeline.EntityUptimeS,
		pipeline.EntityUptimeD,
		pipeline.EntityFreeMemory,
		pipeline.EntityConnectivity,
		pipeline.EntityDiscovery,
	}
	for _, r := range p.reporters {
		list = append(list, r.SystemDiscovery()...)
	}
	return list
}

func (p *Provider) Loop(now time.Time) time.Duration {
	if !p.link.Ready() {
		return retryWait
	}
	if rt := p.link.ReadyTime(); !rt.Equal(p.readyTime) {
		p.readyTime = rt
		p.discover.Store(true)
	}

	if p.discover.Load() {
		if !p.announce() {
			return retryWait
		}
		p.discover.Store(false)
		p.forceSend = true
	}

	if !p.forceSend && now.Sub(p.lastSent) < p.interval {
		return min(p.interval-now.Sub(p.lastSent), pipeline.MaxWait)
	}
	if !p.update(now.Sub(p.start)) {
		return retryWait
	}
	p.lastSent = now
	p.forceSend = false
	return pipeline.MaxWait
}

func (p *Provider) announce() bool {
	if p.entities == 0 {
		p.entities = p.reg.AddEntities(p.Entities()...)
	}
	host := p.reg.Host().Device
	a := pipeline.Announce{
		Subject:      record.SubjectSYS,
		Entities:     p.entities,
		Device:       record.CacheDeviceMainHost,
		Name:         host.Name,
		Model:        host.Model,
		Manufacturer: host.Manufacturer,
		SWVersion:    host.SWVersion,
	}
	if missing := p.disc.Add(p.buf, a); missing > 0 {
		p.logger.Warn("sys: no buffer for discovery", "missing", missing)
		return false
	}
	p.logger.Info("sys: host discovery queued")
	return true
}

// ownRecords is the number of records update writes before the reporters.
const ownRecords = 6

func (p *Provider) update(uptime time.Duration) bool {
	if free := p.buf.Free(); free < ownRecords {
		p.logger.Warn("sys: no buffer for status", "missing", ownRecords-free)
		return false
	}

	free, err := p.src.FreeMemory(p.ctx)
	if err != nil {
		p.logger.Debug("sys: free memory unavailable", "error", err)
	}
	var ip [4]byte
	if it, err := p.src.Interface(p.ctx); err == nil {
		copy(ip[:], it.IP.To4())
	} else {
		p.logger.Debug("sys: network interface unavailable", "error", err)
	}

	p.buf.Next(record.FieldTopic, record.TypeTopic, record.TopicState|record.SubjectSYS, uint8(record.CacheDeviceMainHost))
	p.buf.Next(record.FieldUptimeS, record.TypeInt64, 0, 0).SetU64(uint64(uptime / time.Second))
	p.buf.Next(record.FieldUptimeD, record.TypeFloat, 3, 0).SetFloat(float32(uptime.Hours() / 24))
	p.buf.Next(record.FieldFreeMemory, record.TypeInt64, 0, 0).SetU64(free)
	p.buf.Next(record.FieldIP, record.TypeRaw, 4|record.RawNumber|record.RawSepDot, 0).SetRaw(ip[:])
	p.buf.Next(record.FieldConnectivity, record.TypeString, record.StringRef, 0).SetRefs(p.reg.Intern("ON"), 0)

	for _, r := range p.reporters {
		if missing := r.SystemUpdate(p.buf, uptime); missing > 0 {
			p.logger.Debug("sys: reporter skipped", "missing", missing)
		}
	}
	p.buf.CloseLast()
	return true
}
