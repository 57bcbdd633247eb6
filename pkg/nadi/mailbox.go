package nadi

import "sync"

// mailbox is a node's unbounded FIFO of pending deliveries, served by a single
// goroutine. Senders never block on a slow receiver.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Message
	closed bool
}

func newMailbox() *mailbox {
	b := &mailbox{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// put appends a delivery. It reports false once the mailbox is closed; the
// caller keeps the reference in that case.
func (b *mailbox) put(m *Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.queue = append(b.queue, m)
	b.cond.Signal()
	return true
}

// close stops accepting deliveries. With discard set, queued deliveries are
// dropped instead of drained; the number dropped is returned.
func (b *mailbox) close(discard bool) int {
	b.mu.Lock()
	b.closed = true
	var dropped []*Message
	if discard {
		dropped = b.queue
		b.queue = nil
	}
	b.cond.Broadcast()
	b.mu.Unlock()

	for _, m := range dropped {
		m.drop()
	}
	return len(dropped)
}

// len returns the number of queued deliveries.
func (b *mailbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// run hands deliveries to handle in FIFO order until the mailbox is closed and empty.
func (b *mailbox) run(handle func(*Message)) {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		m := b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
		b.mu.Unlock()

		handle(m)
	}
}
