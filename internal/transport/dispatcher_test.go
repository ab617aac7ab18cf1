package transport

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shineum/mailbot/internal/bot"
)

type recordingHandler struct {
	mu    sync.Mutex
	seen  []string
	block chan struct{}
	// started receives the requester of every message as it starts.
	started chan string
}

func (h *recordingHandler) Handle(_ context.Context, msg bot.Message, _ bot.Responder) {
	if h.started != nil {
		h.started <- msg.RequesterID
	}
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.seen = append(h.seen, msg.RequesterID+":"+msg.Text)
	h.mu.Unlock()
}

func (h *recordingHandler) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.seen)
}

type nopResponder struct{}

func (nopResponder) Reply(string) error { return nil }
func (nopResponder) Send(string) error  { return nil }

func TestDispatcher_OrderPerRequester(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	d := NewDispatcher(h)

	var want []string
	for i := range 50 {
		text := strconv.Itoa(i)
		want = append(want, "u1:"+text)
		d.Dispatch(context.Background(), bot.Message{RequesterID: "u1", Text: text}, nopResponder{})
	}
	d.Wait()

	if got := h.messages(); !slices.Equal(got, want) {
		t.Errorf("order: got %v, want %v", got, want)
	}
}

func TestDispatcher_RequestersRunConcurrently(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{block: make(chan struct{}), started: make(chan string, 4)}
	d := NewDispatcher(h)

	d.Dispatch(context.Background(), bot.Message{RequesterID: "u1", Text: "a"}, nopResponder{})
	d.Dispatch(context.Background(), bot.Message{RequesterID: "u2", Text: "b"}, nopResponder{})

	started := map[string]bool{}
	for range 2 {
		select {
		case id := <-h.started:
			started[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %v started while both should run at once", started)
		}
	}
	close(h.block)
	d.Wait()

	if got := len(h.messages()); got != 2 {
		t.Errorf("handled: got %d, want 2", got)
	}
}

func TestDispatcher_WaitTimesOut(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{block: make(chan struct{})}
	defer close(h.block)
	d := NewDispatcher(h)
	d.timeout = 20 * time.Millisecond

	d.Dispatch(context.Background(), bot.Message{RequesterID: "u1", Text: "stuck"}, nopResponder{})

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the shutdown timeout")
	}
}
