package mqtt

import "log"

// queuedMsg holds a serialized message waiting for the broker to come back.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// sendQueue is a bounded FIFO for messages that could not be published.
// When full, the oldest message is dropped. Callers must synchronize access.
type sendQueue struct {
	msgs    []queuedMsg
	max     int
	dropped int
}

func newSendQueue(max int) *sendQueue {
	return &sendQueue{max: max}
}

func (q *sendQueue) add(msg queuedMsg) {
	if len(q.msgs) >= q.max {
		q.msgs = q.msgs[1:]
		q.dropped++
	}
	q.msgs = append(q.msgs, msg)
}

// takeAll removes and returns all queued messages in FIFO order.
func (q *sendQueue) takeAll() []queuedMsg {
	if len(q.msgs) == 0 {
		return nil
	}
	if q.dropped > 0 {
		log.Printf("mqtt: send queue overflowed, %d oldest messages were dropped", q.dropped)
		q.dropped = 0
	}
	out := q.msgs
	q.msgs = nil
	return out
}

func (q *sendQueue) size() int {
	return len(q.msgs)
}
