package pipeline

import (
	"errors"
	"testing"
	"time"

	"cloudpico-bridge/internal/record"
)

var testHostMAC = []byte{0xB8, 0x27, 0xEB, 0xAA, 0xBB, 0xCC}

var testMAC = []byte{0xA4, 0xC1, 0x38, 0x01, 0x02, 0x03}

func newTestRegistry() *Registry {
	return NewRegistry(Host{
		Name: "bridge",
		Device: DeviceInfo{
			Name:         "bridge",
			Model:        "cloudpico-bridge",
			Manufacturer: "cloudpico",
			SWVersion:    "dev",
			MAC:          testHostMAC,
		},
	})
}

type sentMessage struct {
	topic   string
	payload string
	retain  bool
}

type fakeLink struct {
	ready bool
	at    time.Time
	err   error
	sent  []sentMessage
}

func (l *fakeLink) Ready() bool          { return l.ready }
func (l *fakeLink) ReadyTime() time.Time { return l.at }

func (l *fakeLink) Send(topic string, payload []byte, retain bool) error {
	if l.err != nil {
		return l.err
	}
	l.sent = append(l.sent, sentMessage{topic: topic, payload: string(payload), retain: retain})
	return nil
}

var errLinkDown = errors.New("link down")

// render runs the formatter of rec in measure mode and then in write mode and
// checks that both agree.
func render(t *testing.T, rec record.Record, c *Cache) string {
	t.Helper()
	ti := Lookup(rec.Type())

	var m Writer
	if err := ti.Format(&m, &rec, c); err != nil {
		t.Fatalf("measure %v: %v", rec.Type(), err)
	}
	buf := make([]byte, m.Len())
	w := newWriter(buf)
	if err := ti.Format(&w, &rec, c); err != nil {
		t.Fatalf("write %v: %v", rec.Type(), err)
	}
	if w.Len() != m.Len() || w.Overflow() {
		t.Fatalf("measure = %d, write = %d", m.Len(), w.Len())
	}
	return string(w.Bytes())
}
