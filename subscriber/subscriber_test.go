package subscriber

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"quotestream/feed"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  func(n int) error
}

func (s *recordingSender) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		if err := s.err(len(s.sent)); err != nil {
			return err
		}
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *recordingSender) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func TestBuildRequests(t *testing.T) {
	cases := []struct {
		name     string
		template string
		symbols  []string
		want     []string
	}{
		{
			name:     "per symbol",
			template: `{"type":"subscribe","symbol":"%s"}`,
			symbols:  []string{"AAPL", "MSFT"},
			want: []string{
				`{"type":"subscribe","symbol":"AAPL"}`,
				`{"type":"subscribe","symbol":"MSFT"}`,
			},
		},
		{
			name:     "joined",
			template: "subscribe:",
			symbols:  []string{"AAPL", "MSFT"},
			want:     []string{"subscribe:AAPL,MSFT"},
		},
		{
			name:     "no symbols",
			template: "subscribe:%s",
		},
		{
			name:    "no template",
			symbols: []string{"AAPL"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildRequests(tc.template, tc.symbols)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("BuildRequests mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResubscriberSendsAll(t *testing.T) {
	sender := &recordingSender{}
	r := New(context.Background(), sender, []string{"a", "b", "c"}, 0, 1)

	r.Trigger()
	r.Wait()

	if diff := cmp.Diff([]string{"a", "b", "c"}, sender.requests()); diff != "" {
		t.Fatalf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestResubscriberResendsOnEveryTrigger(t *testing.T) {
	sender := &recordingSender{}
	r := New(context.Background(), sender, []string{"a"}, 0, 1)

	r.Trigger()
	r.Wait()
	r.Trigger()
	r.Wait()

	if diff := cmp.Diff([]string{"a", "a"}, sender.requests()); diff != "" {
		t.Fatalf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestResubscriberStopsWhenDisconnected(t *testing.T) {
	sender := &recordingSender{err: func(n int) error {
		if n == 1 {
			return feed.ErrNotConnected
		}
		return nil
	}}
	r := New(context.Background(), sender, []string{"a", "b", "c"}, 0, 1)

	r.Trigger()
	r.Wait()

	if diff := cmp.Diff([]string{"a"}, sender.requests()); diff != "" {
		t.Fatalf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestResubscriberSkipsFailedRequest(t *testing.T) {
	calls := 0
	sender := &recordingSender{err: func(int) error {
		calls++
		if calls == 1 {
			return errors.New("write timeout")
		}
		return nil
	}}
	r := New(context.Background(), sender, []string{"a", "b"}, 0, 1)

	r.Trigger()
	r.Wait()

	if diff := cmp.Diff([]string{"b"}, sender.requests()); diff != "" {
		t.Fatalf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestResubscriberStopAbandonsPacedRun(t *testing.T) {
	sender := &recordingSender{}
	// One token up front, the next after ten seconds.
	r := New(context.Background(), sender, []string{"a", "b", "c"}, 0.1, 1)

	r.Trigger()
	deadline := time.Now().Add(2 * time.Second)
	for len(sender.requests()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	start := time.Now()
	r.Stop()
	if time.Since(start) > time.Second {
		t.Fatal("Stop waited for the limiter")
	}
	if diff := cmp.Diff([]string{"a"}, sender.requests()); diff != "" {
		t.Fatalf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestResubscriberCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sender := &recordingSender{}
	r := New(ctx, sender, []string{"a"}, 0, 1)

	r.Trigger()
	r.Wait()

	if got := sender.requests(); len(got) != 0 {
		t.Fatalf("sent after cancel: %v", got)
	}
}
