package mqtt

import "log"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages while the broker is unreachable, oldest first.
//
// Retained messages are lifecycle state: a newer retained message on the same
// topic supersedes the older one, and when the outbox is full vehicle events
// are evicted before any retained message.
// Not safe for concurrent use; the caller must synchronize.
type outbox struct {
	msgs     []bufferedMsg
	capacity int
	dropped  int // evicted since last drain
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		msgs:     make([]bufferedMsg, 0, capacity),
		capacity: capacity,
	}
}

func (o *outbox) push(msg bufferedMsg) {
	if msg.retained {
		for i, m := range o.msgs {
			if m.retained && m.topic == msg.topic {
				o.remove(i)
				break
			}
		}
	}
	if len(o.msgs) == o.capacity {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest events", o.capacity)
		}
		o.remove(o.evictIndex())
		o.dropped++
	}
	o.msgs = append(o.msgs, msg)
}

// evictIndex picks the oldest non-retained message, or the oldest message if
// everything queued is retained.
func (o *outbox) evictIndex() int {
	for i, m := range o.msgs {
		if !m.retained {
			return i
		}
	}
	return 0
}

func (o *outbox) remove(i int) {
	o.msgs = append(o.msgs[:i], o.msgs[i+1:]...)
}

// drain returns every queued message in order and the number evicted since the
// previous drain, and empties the outbox.
func (o *outbox) drain() ([]bufferedMsg, int) {
	dropped := o.dropped
	o.dropped = 0
	if len(o.msgs) == 0 {
		return nil, dropped
	}
	out := make([]bufferedMsg, len(o.msgs))
	copy(out, o.msgs)
	o.msgs = o.msgs[:0]
	return out, dropped
}

func (o *outbox) len() int {
	return len(o.msgs)
}
