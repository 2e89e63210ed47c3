package ble

import (
	"time"

	"cloudpico-bridge/internal/pipeline"
)

var (
	testHostMAC = []byte{0xB8, 0x27, 0xEB, 0xAA, 0xBB, 0xCC}
	testAddr    = [6]byte{0xA4, 0xC1, 0x38, 0x01, 0x02, 0x03}
	otherAddr   = [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
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

type fixture struct {
	reg      *pipeline.Registry
	devices  *Devices
	resolver *Resolver
	link     *fakeLink
	consumer *pipeline.Consumer
}

func newFixture(filter *Filter) *fixture {
	reg := pipeline.NewRegistry(pipeline.Host{
		Name:   "bridge",
		Device: pipeline.DeviceInfo{Name: "bridge", MAC: testHostMAC},
	})
	devices := NewDevices()
	resolver := NewResolver(reg, pipeline.NewDiscovery(reg), devices, filter)
	RegisterDefaults(resolver)
	link := &fakeLink{ready: true, at: time.Unix(1000, 0)}
	return &fixture{
		reg:      reg,
		devices:  devices,
		resolver: resolver,
		link:     link,
		consumer: pipeline.NewConsumer(link, reg, 1024, nil),
	}
}

// pvvxPacket builds a custom-firmware LYWSD03MMC advertisement reporting
// 21.50 °C, 48.25 %, 2875 mV and 87 %.
func pvvxPacket(addr [6]byte) Packet {
	sd := []byte{0x1A, 0x18}
	for i := 5; i >= 0; i-- {
		sd = append(sd, addr[i])
	}
	sd = append(sd,
		0x66, 0x08, // 2150
		0xD9, 0x12, // 4825
		0x3B, 0x0B, // 2875
		87,
		0x01, // counter
		0x04, // flags
	)
	return Packet{
		Addr:    addr,
		RSSI:    -70,
		Payload: AppendAD(AppendAD(nil, ADFlags, []byte{0x06}), ADServiceData16, sd),
	}
}

func miBaconPacket(kind byte, value ...byte) Packet {
	sd := []byte{0x95, 0xFE, // uuid
		0x50, 0x20, 0xAA, 0x01, 0x01, // frame control, type 0x01AA, counter
		0x03, 0x02, 0x01, 0x38, 0xC1, 0xA4, // mac
		kind, 0x10, byte(len(value)),
	}
	sd = append(sd, value...)
	return Packet{Addr: testAddr, RSSI: -60, Payload: AppendAD(nil, ADServiceData16, sd)}
}

func laicaPacket(name string, weight uint16) Packet {
	md := []byte{0x02, 0xA1, 0x09, 0xFF, byte(weight >> 8), byte(weight)}
	payload := AppendAD(nil, ADName, []byte(name))
	payload = AppendAD(payload, ADManufacturer, md)
	return Packet{Addr: otherAddr, RSSI: -50, Payload: payload}
}
