package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloudpico-bridge/internal/record"
)

func TestTopic_Kinds(t *testing.T) {
	id := NewIdentity(testMAC)

	tests := []struct {
		name    string
		kind    uint8
		subject uint8
		entity  record.Field
		want    string
	}{
		{name: "state", kind: record.TopicState, subject: record.SubjectBT, want: "home/bridge/BTtoMQTT/ATC_010203"},
		{name: "retained", kind: record.TopicRetained, subject: record.SubjectSYS, want: "home/bridge/SYSRtoMQTT/ATC_010203"},
		{name: "config", kind: record.TopicConfig, subject: record.ComponentBinarySensor, entity: record.FieldConnectivity, want: "homeassistant/binary_sensor/a4c138010203_connectivity/config"},
		{name: "command", kind: record.TopicCommand, subject: record.SubjectENV, entity: record.FieldDiscoveryReset, want: "home/bridge/MQTTtoENV/ATC_010203/command/a4c138010203_discovery_reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Topic(tt.kind, tt.subject, "bridge", id, tt.entity)
			if err != nil {
				t.Fatalf("Topic() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Topic() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTopic_Errors(t *testing.T) {
	id := NewIdentity(testMAC)
	if _, err := Topic(record.TopicConfig, record.ComponentSensor, "bridge", id, record.FieldNone); err != ErrNoEntity {
		t.Errorf("config without entity: err = %v, want %v", err, ErrNoEntity)
	}
	if _, err := Topic(record.TopicState, 7, "bridge", id, record.FieldNone); err != ErrUnknownTopic {
		t.Errorf("unknown subject: err = %v, want %v", err, ErrUnknownTopic)
	}
}

func TestParseCommandTopic(t *testing.T) {
	tests := []struct {
		topic string
		ok    bool
		field record.Field
	}{
		{topic: "home/bridge/MQTTtoBT/ATC_010203/command/a4c138010203_discovery_reset", ok: true, field: record.FieldDiscoveryReset},
		{topic: "home/bridge/BTtoMQTT/ATC_010203", ok: false},
		{topic: "home/bridge/MQTTto/ATC_010203/command/a4c138010203_batt", ok: false},
		{topic: "home/bridge/MQTTtoBT/ATC_010203/command/a4c138010203_nosuchfield", ok: false},
		{topic: "home/bridge/MQTTtoBT/ATC_010203/command/a4c138010203", ok: false},
	}
	for _, tt := range tests {
		cmd, ok := ParseCommandTopic(tt.topic)
		if ok != tt.ok {
			t.Errorf("ParseCommandTopic(%q) ok = %v, want %v", tt.topic, ok, tt.ok)
			continue
		}
		if ok && cmd.Field != tt.field {
			t.Errorf("ParseCommandTopic(%q).Field = %v, want %v", tt.topic, cmd.Field, tt.field)
		}
	}

	if got := CommandSubscription("bridge", "RPi_AABBCC"); got != "home/bridge/+/RPi_AABBCC/command/#" {
		t.Errorf("CommandSubscription() = %q", got)
	}
}

func TestNewIdentity(t *testing.T) {
	tests := []struct {
		addr   []byte
		strMAC string
		strID  string
	}{
		{addr: testMAC, strMAC: "a4c138010203", strID: "ATC_010203"},
		{addr: []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, strMAC: "112233445566", strID: "BT_445566"},
		{addr: []byte{0x28, 0xCD, 0xC1, 0, 0, 0, 0xAB, 0xCD}, strMAC: "28cdc1000000abcd", strID: "Pico_00ABCD"},
	}
	for _, tt := range tests {
		id := NewIdentity(tt.addr)
		if id.StrMAC != tt.strMAC || id.StrID != tt.strID {
			t.Errorf("NewIdentity(% X) = %q/%q, want %q/%q", tt.addr, id.StrMAC, id.StrID, tt.strMAC, tt.strID)
		}
		if !id.Matches(tt.addr) {
			t.Errorf("Matches(% X) = false", tt.addr)
		}
	}
	if got := NewIdentity(testMAC).ColonMAC(); got != "a4:c1:38:01:02:03" {
		t.Errorf("ColonMAC() = %q", got)
	}
}

type queueSource struct {
	mu   sync.Mutex
	cmds []Command
}

func (q *queueSource) PollCommand() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.cmds) == 0 {
		return Command{}, false
	}
	cmd := q.cmds[0]
	q.cmds = q.cmds[1:]
	return cmd, true
}

func TestConsumer_RunDispatchesCommands(t *testing.T) {
	reg := newTestRegistry()
	consumer := NewConsumer(&fakeLink{}, reg, 128, nil)
	consumer.SetCommandSource(&queueSource{cmds: []Command{
		{Field: record.FieldDiscoveryReset, DeviceID: "RPi_AABBCC"},
		{Field: record.FieldBatt},
	}})

	got := make(chan Command, 2)
	consumer.Handle(record.FieldDiscoveryReset, func(c Command) { got <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx, time.Millisecond) }()

	select {
	case cmd := <-got:
		if cmd.DeviceID != "RPi_AABBCC" {
			t.Errorf("DeviceID = %q", cmd.DeviceID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not dispatched")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run() = %v, want %v", err, context.Canceled)
	}
}

type countingProvider struct {
	mu    sync.Mutex
	loops int
	setup error
}

func (p *countingProvider) Name() string                { return "counting" }
func (p *countingProvider) Setup(context.Context) error { return p.setup }
func (p *countingProvider) Loop(time.Time) time.Duration {
	p.mu.Lock()
	p.loops++
	p.mu.Unlock()
	return time.Millisecond
}

func (p *countingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loops
}

func TestTask_RunsProvidersAndSkipsFailedSetup(t *testing.T) {
	ok := &countingProvider{}
	broken := &countingProvider{setup: ErrNotRenderable}
	task := NewTask("test", nil, ok, broken)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := task.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Run() = %v, want %v", err, context.DeadlineExceeded)
	}
	if ok.count() < 2 {
		t.Errorf("provider looped %d times, want >= 2", ok.count())
	}
	if broken.count() != 0 {
		t.Errorf("provider with failed setup looped %d times", broken.count())
	}
}
