package sysstat

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudpico-bridge/internal/pipeline"
	"cloudpico-bridge/internal/record"
	"cloudpico-bridge/internal/ring"
)

type sentMessage struct {
	topic   string
	payload string
	retain  bool
}

type fakeLink struct {
	ready bool
	at    time.Time
	sent  []sentMessage
}

func (l *fakeLink) Ready() bool          { return l.ready }
func (l *fakeLink) ReadyTime() time.Time { return l.at }

func (l *fakeLink) Send(topic string, payload []byte, retain bool) error {
	l.sent = append(l.sent, sentMessage{topic: topic, payload: string(payload), retain: retain})
	return nil
}

type fakeSource struct {
	free  uint64
	iface Interface
	err   error
}

func (s *fakeSource) FreeMemory(context.Context) (uint64, error)   { return s.free, s.err }
func (s *fakeSource) Interface(context.Context) (Interface, error) { return s.iface, s.err }

type fakeReporter struct {
	calls int
}

func (r *fakeReporter) SystemDiscovery() []pipeline.Entity {
	return []pipeline.Entity{pipeline.EntityBTScanned}
}

func (r *fakeReporter) SystemUpdate(dst record.Target, _ time.Duration) int {
	if dst.Free() < 1 {
		return 1
	}
	r.calls++
	dst.Next(record.FieldBTScanned, record.TypeFloat, 3, 0).SetFloat(1.5)
	return 0
}

type fixture struct {
	buf      *ring.Buffer
	link     *fakeLink
	consumer *pipeline.Consumer
	reporter *fakeReporter
	provider *Provider
}

func newFixture(t *testing.T, size int) *fixture {
	t.Helper()
	reg := pipeline.NewRegistry(pipeline.Host{
		Name: "bridge",
		Device: pipeline.DeviceInfo{
			Name:      "bridge",
			Model:     "cloudpico-bridge",
			SWVersion: "1.0.0",
			MAC:       []byte{0xB8, 0x27, 0xEB, 0xAA, 0xBB, 0xCC},
		},
	})
	link := &fakeLink{ready: true, at: time.Unix(1000, 0)}
	src := &fakeSource{
		free:  123456,
		iface: Interface{Name: "wlan0", IP: net.IPv4(192, 168, 1, 20)},
	}
	f := &fixture{
		buf:      ring.New("sys", size),
		link:     link,
		consumer: pipeline.NewConsumer(link, reg, 2048, nil),
		reporter: &fakeReporter{},
	}
	f.provider = NewProvider(f.buf, reg, pipeline.NewDiscovery(reg), link, src, time.Minute, nil, f.reporter)
	require.NoError(t, f.provider.Setup(context.Background()))
	return f
}

func (f *fixture) configs() int {
	n := 0
	for _, m := range f.link.sent {
		if strings.HasPrefix(m.topic, "homeassistant/") {
			n++
		}
	}
	return n
}

func TestProvider_AnnouncesAndReports(t *testing.T) {
	f := newFixture(t, 32)
	start := time.Unix(5000, 0)
	f.provider.start = start

	now := start.Add(36 * time.Hour)
	f.provider.Loop(now)
	f.consumer.Drain(f.buf)

	require.Len(t, f.link.sent, 7)
	assert.Equal(t, 6, f.configs(), "five own entities and one from the reporter")
	assert.Contains(t, topics(f.link.sent), "homeassistant/button/b827ebaabbcc_discovery_reset/config")
	assert.Contains(t, topics(f.link.sent), "homeassistant/binary_sensor/b827ebaabbcc_connectivity/config")

	state := f.link.sent[6]
	assert.Equal(t, "home/bridge/SYStoMQTT/RPi_AABBCC", state.topic)
	assert.JSONEq(t, `{"uptime_s":129600,"uptime_d":1.500,"free_memory":123456,`+
		`"ip":"192.168.1.20","connectivity":"ON","bt_scanned":1.500}`, state.payload)
	assert.Equal(t, 1, f.reporter.calls)
}

func TestProvider_UpdateInterval(t *testing.T) {
	f := newFixture(t, 32)
	now := time.Now()
	f.provider.Loop(now)
	f.consumer.Drain(f.buf)
	f.link.sent = nil

	wait := f.provider.Loop(now.Add(10 * time.Second))
	assert.Equal(t, pipeline.MaxWait, wait)
	assert.Equal(t, 0, f.buf.Used())

	f.provider.Loop(now.Add(time.Minute))
	f.consumer.Drain(f.buf)
	require.Len(t, f.link.sent, 1)
	assert.Equal(t, "home/bridge/SYStoMQTT/RPi_AABBCC", f.link.sent[0].topic)
}

func TestProvider_RediscoversOnReconnectAndRequest(t *testing.T) {
	f := newFixture(t, 32)
	now := time.Now()
	f.provider.Loop(now)
	f.consumer.Drain(f.buf)
	f.link.sent = nil

	f.link.at = f.link.at.Add(time.Minute)
	f.provider.Loop(now.Add(time.Second))
	f.consumer.Drain(f.buf)
	assert.Equal(t, 6, f.configs())
	assert.Len(t, f.link.sent, 7, "status follows discovery immediately")
	f.link.sent = nil

	f.provider.RequestDiscovery()
	f.provider.Loop(now.Add(2 * time.Second))
	f.consumer.Drain(f.buf)
	assert.Equal(t, 6, f.configs())
}

func TestProvider_WaitsForLinkAndBuffer(t *testing.T) {
	f := newFixture(t, 3)
	f.link.ready = false
	assert.Equal(t, retryWait, f.provider.Loop(time.Now()))
	assert.Equal(t, 0, f.buf.Used())

	f.link.ready = true
	assert.Equal(t, retryWait, f.provider.Loop(time.Now()), "discovery does not fit")
	assert.Equal(t, 3, f.buf.Free())
}

func TestProvider_SourceErrorsStillReport(t *testing.T) {
	f := newFixture(t, 32)
	f.provider.src = &fakeSource{err: errors.New("boom")}
	f.provider.Loop(time.Now())
	f.consumer.Drain(f.buf)

	require.NotEmpty(t, f.link.sent)
	state := f.link.sent[len(f.link.sent)-1]
	assert.Contains(t, state.payload, `"ip":"0.0.0.0"`)
	assert.Contains(t, state.payload, `"free_memory":0`)
}

func topics(msgs []sentMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.topic)
	}
	return out
}
