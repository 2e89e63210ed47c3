package sensor

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
	DefaultInterval = 60 * time.Second
	retryWait       = time.Second
	readingRecords  = 4
)

var entities = []pipeline.Entity{pipeline.EntityTempC, pipeline.EntityHum, pipeline.EntityPressure}

// Provider polls the sensor and writes its readings to the ENV buffer under
// the host's identity.
type Provider struct {
	buf      *ring.Buffer
	reg      *pipeline.Registry
	disc     *pipeline.Discovery
	link     pipeline.Readiness
	open     Opener
	addr     uint16
	interval time.Duration
	logger   *slog.Logger

	sensor    Sensor
	entities  record.Ref
	readyTime time.Time
	announced bool
	discover  atomic.Bool
	lastPoll  time.Time
	sequence  uint32
	failures  int
}

func NewProvider(buf *ring.Buffer, reg *pipeline.Registry, disc *pipeline.Discovery, link pipeline.Readiness,
	open Opener, addr uint16, interval time.Duration, logger *slog.Logger,
) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Provider{
		buf:      buf,
		reg:      reg,
		disc:     disc,
		link:     link,
		open:     open,
		addr:     addr,
		interval: interval,
		logger:   logger,
		entities: reg.AddEntities(entities...),
	}
}

func (p *Provider) Name() string { return "env" }

// Setup connects to the sensor and closes it again once ctx is done.
func (p *Provider) Setup(ctx context.Context) error {
	s, err := p.open(p.addr)
	if err != nil {
		return err
	}
	p.sensor = s
	go func() {
		<-ctx.Done()
		if err := s.Close(); err != nil {
			p.logger.Debug("env: sensor close failed", "error", err)
		}
	}()
	return nil
}

// RequestDiscovery makes the next round announce the sensor again. Safe to
// call from any goroutine.
func (p *Provider) RequestDiscovery() { p.discover.Store(true) }

func (p *Provider) Loop(now time.Time) time.Duration {
	if !p.link.Ready() {
		return retryWait
	}
	if rt := p.link.ReadyTime(); !rt.Equal(p.readyTime) {
		p.readyTime = rt
		p.announced = false
	}
	if p.discover.Swap(false) {
		p.announced = false
	}
	if !p.announced {
		if !p.announce() {
			return retryWait
		}
		p.announced = true
	}

	if since := now.Sub(p.lastPoll); !p.lastPoll.IsZero() && since < p.interval {
		return min(p.interval-since, pipeline.MaxWait)
	}
	if free := p.buf.Free(); free < readingRecords {
		p.logger.Warn("env: no buffer for reading", "missing", readingRecords-free)
		return retryWait
	}
	p.lastPoll = now

	rd, err := p.sensor.Sense()
	if err != nil {
		p.failures++
		p.logger.Warn("env: sensor read failed", "error", err, "failures", p.failures)
		return pipeline.MaxWait
	}
	p.failures = 0
	p.sequence++
	p.write(rd)

	p.logger.Debug("env: reading queued",
		"sequence", p.sequence,
		"temperature", rd.Temperature,
		"humidity", rd.Humidity,
		"pressure", rd.Pressure,
	)
	return pipeline.MaxWait
}

func (p *Provider) announce() bool {
	host := p.reg.Host().Device
	a := pipeline.Announce{
		Subject:      record.SubjectENV,
		Entities:     p.entities,
		Device:       record.CacheDeviceMainHost,
		Name:         host.Name,
		Model:        host.Model,
		Manufacturer: host.Manufacturer,
		SWVersion:    host.SWVersion,
	}
	if missing := p.disc.Add(p.buf, a); missing > 0 {
		p.logger.Warn("env: no buffer for discovery", "missing", missing)
		return false
	}
	return true
}

func (p *Provider) write(rd Reading) {
	p.buf.Next(record.FieldTopic, record.TypeTopic, record.TopicState|record.SubjectENV, uint8(record.CacheDeviceMainHost))
	p.buf.Next(record.FieldTempC, record.TypeFloat, record.DoubleField|2, uint8(record.FieldHum)).
		SetFloatPair(float32(rd.Temperature), float32(rd.Humidity))
	p.buf.Next(record.FieldPressure, record.TypeFloat, 1, 0).SetFloat(float32(rd.Pressure))
	p.buf.Next(record.FieldReadingID, record.TypeInt32, 0, 0).SetU32(p.sequence)
	p.buf.CloseLast()
}
