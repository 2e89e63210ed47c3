package mqtt

import (
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"

	"cloudpico-bridge/internal/pipeline"
)

// commandQueue hands inbound commands from paho's callback goroutines to the
// consumer. When full, the oldest command is overwritten.
type commandQueue struct {
	buf         mpmc.RichOverlappedRingBuffer[pipeline.Command]
	overwritten atomic.Uint64
}

func newCommandQueue(size uint32) *commandQueue {
	return &commandQueue{buf: mpmc.NewOverlappedRingBuffer[pipeline.Command](size)}
}

func (q *commandQueue) push(cmd pipeline.Command) error {
	overwrites, err := q.buf.EnqueueM(cmd)
	if err != nil {
		return err
	}
	q.overwritten.Add(uint64(overwrites))
	return nil
}

func (q *commandQueue) pop() (pipeline.Command, bool) {
	if q.buf.IsEmpty() {
		return pipeline.Command{}, false
	}
	cmd, err := q.buf.Dequeue()
	if err != nil {
		return pipeline.Command{}, false
	}
	return cmd, true
}
