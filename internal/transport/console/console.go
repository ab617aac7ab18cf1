// Package console runs the bot on standard input and output for local use.
// Every line is a message from a single requester.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/shineum/mailbot/internal/bot"
	"github.com/shineum/mailbot/internal/transport"
)

// RequesterID identifies the console user.
const RequesterID = "console"

// Transport reads messages from in and writes replies to out.
type Transport struct {
	in  io.Reader
	out *syncWriter
}

// New creates a console Transport.
func New(in io.Reader, out io.Writer) *Transport {
	return &Transport{in: in, out: &syncWriter{w: out}}
}

// Run handles lines until in is exhausted or ctx is cancelled, then waits
// for in-flight messages.
func (t *Transport) Run(ctx context.Context, h transport.Handler) error {
	d := transport.NewDispatcher(h)
	defer d.Wait()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	r := responder{out: t.out}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					if err != nil {
						return fmt.Errorf("failed to read input: %w", err)
					}
				default:
				}
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			d.Dispatch(ctx, bot.Message{RequesterID: RequesterID, Author: RequesterID, Text: line}, r)
		}
	}
}

type responder struct {
	out *syncWriter
}

func (r responder) Reply(text string) error {
	return r.out.printf("bot> %s\n", text)
}

func (r responder) Send(text string) error {
	return r.out.printf("bot* %s\n", text)
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, format, args...)
	return err
}
