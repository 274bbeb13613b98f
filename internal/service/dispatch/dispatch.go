// Package dispatch delivers text to messaging-platform recipients through
// one FIFO queue per recipient. A queue runs at most one send at a time, so
// the platform receives messages for a recipient in enqueue order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	messaging_repo "github.com/huavcjj/mailbridge/internal/domain/messaging"
)

var ErrUnknownRecipient = errors.New("recipient is not registered")

type Dispatcher struct {
	sender messaging_repo.MessagingRepo
	// queues is built once and never modified afterwards.
	queues map[string]*queue
	// pending counts texts enqueued but not yet attempted. idle is closed
	// whenever it drops to zero, so Wait may run alongside new deliveries.
	pending *pendingCounter
}

type pendingCounter struct {
	mu    sync.Mutex
	count int
	idle  chan struct{}
}

type queue struct {
	recipientID string
	sender      messaging_repo.MessagingRepo
	pending     *pendingCounter

	mu      sync.Mutex
	texts   []string
	running bool
}

func NewDispatcher(sender messaging_repo.MessagingRepo, recipientIDs []string) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		queues:  make(map[string]*queue, len(recipientIDs)),
		pending: &pendingCounter{},
	}
	for _, id := range recipientIDs {
		if id == "" {
			continue
		}
		if _, ok := d.queues[id]; ok {
			continue
		}
		d.queues[id] = &queue{
			recipientID: id,
			sender:      sender,
			pending:     d.pending,
		}
	}
	return d
}

// Recipients returns the registered recipient ids in no particular order.
func (d *Dispatcher) Recipients() []string {
	ids := make([]string, 0, len(d.queues))
	for id := range d.queues {
		ids = append(ids, id)
	}
	return ids
}

// Deliver enqueues one text for the recipient and returns immediately.
func (d *Dispatcher) Deliver(recipientID, text string) error {
	return d.DeliverBatch(recipientID, text)
}

// DeliverBatch enqueues texts as one contiguous run: no other batch for the
// same recipient can be interleaved with it.
func (d *Dispatcher) DeliverBatch(recipientID string, texts ...string) error {
	q, ok := d.queues[recipientID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecipient, recipientID)
	}
	if len(texts) == 0 {
		return nil
	}
	q.push(texts)
	return nil
}

// Wait blocks until every enqueued text has been attempted or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	for {
		d.pending.mu.Lock()
		if d.pending.count == 0 {
			d.pending.mu.Unlock()
			return nil
		}
		idle := d.pending.idle
		d.pending.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *pendingCounter) add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 {
		p.idle = make(chan struct{})
	}
	p.count += n
}

func (p *pendingCounter) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count--
	if p.count == 0 {
		close(p.idle)
	}
}

func (q *queue) push(texts []string) {
	q.pending.add(len(texts))

	q.mu.Lock()
	q.texts = append(q.texts, texts...)
	start := !q.running
	q.running = true
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

func (q *queue) drain() {
	for {
		q.mu.Lock()
		if len(q.texts) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		text := q.texts[0]
		q.texts[0] = ""
		q.texts = q.texts[1:]
		q.mu.Unlock()

		q.send(text)
	}
}

func (q *queue) send(text string) {
	defer q.pending.done()

	err := q.sender.SendText(context.Background(), q.recipientID, text)
	if err == nil {
		slog.Debug("message delivered", "recipient_id", q.recipientID)
		return
	}

	attrs := []any{"recipient_id", q.recipientID, "error", err}
	var derr *messaging_repo.DeliveryError
	if errors.As(err, &derr) {
		attrs = append(attrs, "status_code", derr.StatusCode, "response_body", derr.Body)
	}
	slog.Error("failed to deliver message", attrs...)
}
