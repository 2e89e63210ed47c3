package pipeline

import (
	"testing"

	"cloudpico-bridge/internal/record"
	"cloudpico-bridge/internal/ring"
)

func TestFeeder_GeneratorInsideMessage(t *testing.T) {
	reg := newTestRegistry()
	calls := 0
	gen := reg.AddGenerator(func(dst record.Allocator, g *record.Record, c *Cache) {
		calls++
		if !c.generatorActive {
			t.Errorf("generator ran without the active flag")
		}
		dst.Next(record.FieldRSSI, record.TypeInt32, record.NumberSigned, 0).SetI32(int32(int8(g.TypeInfo)))
		// nested generators are dropped
		dst.Next(record.FieldDiscList, record.TypeGenerator, 0, 0).SetRefs(1, 0)
		dst.Next(record.FieldTxPower, record.TypeInt32, record.NumberSigned, 0).SetI32(-59)
	})

	link := &fakeLink{ready: true}
	consumer := NewConsumer(link, reg, 512, nil)
	buf := ring.New("bt", 8)

	buf.Next(record.FieldTopic, record.TypeTopic, record.TopicState|record.SubjectBT, uint8(record.CacheDeviceMAC48)).SetMAC48(testMAC)
	buf.Next(record.FieldNone, record.TypeGenerator, uint8(0xB9), 0).SetRefs(gen, 0) // rssi -71
	buf.Next(record.FieldBatt, record.TypeInt32, 0, 0).SetU32(90)
	buf.CloseLast()

	consumer.Drain(buf)

	if calls != 1 {
		t.Fatalf("generator called %d times, want 1", calls)
	}
	if consumer.feeder.dropped != 1 {
		t.Errorf("dropped = %d, want 1", consumer.feeder.dropped)
	}
	if consumer.cache.generatorActive {
		t.Errorf("generator flag left set")
	}
	if len(link.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(link.sent))
	}
	want := `{"rssi":-71,"txpower":-59,"batt":90}`
	if got := link.sent[0].payload; got != want {
		t.Errorf("payload = %s, want %s", got, want)
	}
}

func TestFeeder_ClosedGeneratorClosesLastRecord(t *testing.T) {
	reg := newTestRegistry()
	gen := reg.AddGenerator(func(dst record.Allocator, _ *record.Record, c *Cache) {
		c.UseHost()
		dst.Next(record.FieldTopic, record.TypeTopic, record.TopicState|record.SubjectSYS, 0)
		dst.Next(record.FieldUptimeS, record.TypeInt64, 0, 0).SetU64(42)
	})

	link := &fakeLink{ready: true}
	consumer := NewConsumer(link, reg, 512, nil)
	buf := ring.New("sys", 4)
	buf.Next(record.FieldNone, record.TypeGenerator, 0, 0).SetRefs(gen, 0)
	buf.CloseLast()

	if n := consumer.Drain(buf); n != 1 {
		t.Fatalf("Drain() = %d, want 1", n)
	}
	if len(link.sent) != 1 || link.sent[0].payload != `{"uptime_s":42}` {
		t.Fatalf("sent = %+v", link.sent)
	}
	if link.sent[0].topic != "home/bridge/SYStoMQTT/RPi_AABBCC" {
		t.Errorf("topic = %q", link.sent[0].topic)
	}
}

func TestFeeder_EmptyOrUnknownGenerator(t *testing.T) {
	reg := newTestRegistry()
	link := &fakeLink{ready: true}
	consumer := NewConsumer(link, reg, 256, nil)
	buf := ring.New("sys", 4)

	buf.Next(record.FieldNone, record.TypeGenerator, 0, 0).SetRefs(99, 0)
	buf.CloseLast()

	if n := consumer.Drain(buf); n != 1 {
		t.Fatalf("Drain() = %d, want 1", n)
	}
	if got := consumer.Stats().Invalid; got != 1 {
		t.Errorf("Stats().Invalid = %d, want 1", got)
	}
	if buf.Used() != 0 {
		t.Errorf("generator record not consumed")
	}
}
