// Package transport runs chat messages through a handler, one at a time per
// requester and concurrently across requesters.
package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shineum/mailbot/internal/bot"
)

// shutdownTimeout is the maximum time to wait for in-flight messages
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

// Handler processes one chat message.
type Handler interface {
	Handle(ctx context.Context, msg bot.Message, r bot.Responder)
}

type job struct {
	ctx context.Context
	msg bot.Message
	r   bot.Responder
}

// lane is the FIFO queue of one requester. A lane exists only while it has
// work and is drained by a single goroutine.
type lane struct {
	queue []job
}

// Dispatcher hands messages to a Handler. Messages from the same requester
// are handled in arrival order, never concurrently.
type Dispatcher struct {
	handler Handler
	timeout time.Duration

	mu    sync.Mutex
	lanes map[string]*lane

	// wg tracks queued and running messages for graceful shutdown.
	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher for h.
func NewDispatcher(h Handler) *Dispatcher {
	return &Dispatcher{
		handler: h,
		timeout: shutdownTimeout,
		lanes:   make(map[string]*lane),
	}
}

// Dispatch queues msg behind earlier messages of the same requester and
// returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, msg bot.Message, r bot.Responder) {
	d.wg.Add(1)

	d.mu.Lock()
	l, running := d.lanes[msg.RequesterID]
	if !running {
		l = &lane{}
		d.lanes[msg.RequesterID] = l
	}
	l.queue = append(l.queue, job{ctx: ctx, msg: msg, r: r})
	d.mu.Unlock()

	if !running {
		go d.drain(msg.RequesterID, l)
	}
}

func (d *Dispatcher) drain(requester string, l *lane) {
	for {
		d.mu.Lock()
		if len(l.queue) == 0 {
			delete(d.lanes, requester)
			d.mu.Unlock()
			return
		}
		j := l.queue[0]
		l.queue = l.queue[1:]
		d.mu.Unlock()

		d.handler.Handle(j.ctx, j.msg, j.r)
		d.wg.Done()
	}
}

// Wait blocks until every dispatched message has been handled, or the
// shutdown timeout passes.
func (d *Dispatcher) Wait() {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("all messages handled")
	case <-time.After(d.timeout):
		slog.Warn("shutdown timeout reached, abandoning in-flight messages")
	}
}
