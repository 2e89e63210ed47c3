package app

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudpico-bridge/internal/ble"
	"cloudpico-bridge/internal/config"
	"cloudpico-bridge/internal/pipeline"
	"cloudpico-bridge/internal/record"
	"cloudpico-bridge/internal/sensor"
	"cloudpico-bridge/internal/sysstat"
)

type sentMessage struct {
	topic   string
	payload string
}

type fakeLink struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (l *fakeLink) Ready() bool          { return true }
func (l *fakeLink) ReadyTime() time.Time { return time.Unix(1000, 0) }

func (l *fakeLink) Send(topic string, payload []byte, _ bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, sentMessage{topic: topic, payload: string(payload)})
	return nil
}

func (l *fakeLink) count(pred func(sentMessage) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.sent {
		if pred(m) {
			n++
		}
	}
	return n
}

type queueSource struct {
	mu   sync.Mutex
	cmds []pipeline.Command
}

func (q *queueSource) push(cmd pipeline.Command) {
	q.mu.Lock()
	q.cmds = append(q.cmds, cmd)
	q.mu.Unlock()
}

func (q *queueSource) PollCommand() (pipeline.Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.cmds) == 0 {
		return pipeline.Command{}, false
	}
	cmd := q.cmds[0]
	q.cmds = q.cmds[1:]
	return cmd, true
}

type fakeStats struct{}

func (fakeStats) FreeMemory(context.Context) (uint64, error) { return 1 << 20, nil }

func (fakeStats) Interface(context.Context) (sysstat.Interface, error) {
	return sysstat.Interface{Name: "eth0", IP: net.IPv4(10, 0, 0, 2)}, nil
}

type fakeScanner struct {
	packets []ble.Packet
}

func (s *fakeScanner) Run(ctx context.Context, onPacket func(ble.Packet)) error {
	for _, p := range s.packets {
		onPacket(p)
	}
	<-ctx.Done()
	return nil
}

type fakeSensor struct{}

func (fakeSensor) Sense() (sensor.Reading, error) {
	return sensor.Reading{Temperature: 20, Humidity: 50, Pressure: 1000}, nil
}

func (fakeSensor) Close() error { return nil }

func pvvxPacket() ble.Packet {
	addr := [6]byte{0xA4, 0xC1, 0x38, 0x01, 0x02, 0x03}
	sd := []byte{0x1A, 0x18, 0x03, 0x02, 0x01, 0x38, 0xC1, 0xA4,
		0x66, 0x08, 0xD9, 0x12, 0x3B, 0x0B, 87, 0x01, 0x04}
	return ble.Packet{Addr: addr, RSSI: -70, Payload: ble.AppendAD(nil, ble.ADServiceData16, sd)}
}

func testConfig() config.Config {
	return config.Config{
		BridgeName:         "bridge",
		BLEQueueSize:       8,
		SensorPollInterval: time.Minute,
		SystemInterval:     time.Minute,
		DrainInterval:      5 * time.Millisecond,
		BTBufferRecords:    64,
		SysBufferRecords:   64,
		EnvBufferRecords:   32,
		JSONBufferSize:     2048,
		BME280Address:      0x76,
	}
}

var testHost = pipeline.Host{
	Name: "bridge",
	Device: pipeline.DeviceInfo{
		Name:  "bridge",
		Model: "cloudpico-bridge",
		MAC:   []byte{0xB8, 0x27, 0xEB, 0xAA, 0xBB, 0xCC},
	},
}

func hasTopic(topic string) func(sentMessage) bool {
	return func(m sentMessage) bool { return m.topic == topic }
}

func isConfig(m sentMessage) bool { return strings.HasPrefix(m.topic, "homeassistant/") }

func TestBridge_EndToEnd(t *testing.T) {
	link := &fakeLink{}
	cmds := &queueSource{}
	b := NewBridge(testConfig(), testHost, Deps{
		Link:       link,
		Commands:   cmds,
		Scanner:    &fakeScanner{packets: []ble.Packet{pvvxPacket()}},
		Stats:      fakeStats{},
		OpenSensor: func(uint16) (sensor.Sensor, error) { return fakeSensor{}, nil },
	}, nil)
	require.NotNil(t, b.BT)
	require.NotNil(t, b.Env)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		return link.count(hasTopic("home/bridge/BTtoMQTT/ATC_010203")) == 1 &&
			link.count(hasTopic("home/bridge/SYStoMQTT/RPi_AABBCC")) == 1 &&
			link.count(hasTopic("home/bridge/ENVtoMQTT/RPi_AABBCC")) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// 4 pvvx entities, 5 host entities plus 2 BT rates, 3 BME280 entities
	assert.Equal(t, 14, link.count(isConfig))

	cmds.push(pipeline.Command{Subject: "SYS", DeviceID: "RPi_AABBCC", Field: record.FieldDiscoveryReset})
	require.Eventually(t, func() bool {
		return link.count(isConfig) == 14+7+3
	}, 3*time.Second, 10*time.Millisecond, "host and sensor are announced again")

	dev, ok := b.Devices.Get([6]byte{0xA4, 0xC1, 0x38, 0x01, 0x02, 0x03})
	require.True(t, ok)
	assert.False(t, dev.Discovered(), "ble devices announce again on their next packet")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestBridge_OptionalSources(t *testing.T) {
	b := NewBridge(testConfig(), testHost, Deps{Link: &fakeLink{}, Stats: fakeStats{}}, nil)
	assert.Nil(t, b.BT)
	assert.Nil(t, b.Env)
	assert.NotNil(t, b.Sys)
	assert.Len(t, b.tasks, 1)
	assert.Equal(t, []string{ble.VendorMiBacon, ble.VendorPVVX, ble.VendorLaica, ble.VendorCloudPico}, b.Resolver.Vendors())
}
