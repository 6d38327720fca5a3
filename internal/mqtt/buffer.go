package mqtt

import "log"

// queuedPub holds one serialized publish awaiting broker reconnection.
type queuedPub struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// pubQueue is a fixed-capacity FIFO of publishes made while disconnected.
// When full the oldest publish is dropped: a reconnecting consumer prefers
// fresh dial events over a complete but stale backlog. Not safe for
// concurrent use; the publisher serializes access.
type pubQueue struct {
	buf     []queuedPub
	next    int // next write position
	queued  int
	dropped int // publishes lost since the last flush
}

func newPubQueue(capacity int) *pubQueue {
	return &pubQueue{buf: make([]queuedPub, capacity)}
}

func (q *pubQueue) add(p queuedPub) {
	if q.queued == len(q.buf) {
		if q.dropped == 0 {
			log.Printf("mqtt: offline queue full (%d publishes), dropping oldest", len(q.buf))
		}
		q.dropped++
		q.buf[q.next] = p
		q.next = (q.next + 1) % len(q.buf)
		return
	}
	q.buf[q.next] = p
	q.next = (q.next + 1) % len(q.buf)
	q.queued++
}

// flush returns the queued publishes oldest first and empties the queue.
func (q *pubQueue) flush() []queuedPub {
	if q.queued == 0 {
		return nil
	}
	out := make([]queuedPub, q.queued)
	start := (q.next - q.queued + len(q.buf)) % len(q.buf)
	for i := range out {
		out[i] = q.buf[(start+i)%len(q.buf)]
	}
	if q.dropped > 0 {
		log.Printf("mqtt: replaying %d queued publishes (%d were dropped)", q.queued, q.dropped)
	}
	q.queued = 0
	q.next = 0
	q.dropped = 0
	return out
}

func (q *pubQueue) len() int {
	return q.queued
}
