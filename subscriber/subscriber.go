// Package subscriber re-sends the configured symbol subscriptions each time
// the feed connection comes up.
package subscriber

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"quotestream/feed"
	"quotestream/logger"
)

const symbolPlaceholder = "%s"

// Sender writes one text frame to the feed.
type Sender interface {
	Send(text string) error
}

// BuildRequests expands template into subscription requests. A template with a
// %s placeholder yields one request per symbol; otherwise the symbols are
// joined with commas and sent in a single request.
func BuildRequests(template string, symbols []string) []string {
	if template == "" || len(symbols) == 0 {
		return nil
	}
	if !strings.Contains(template, symbolPlaceholder) {
		return []string{template + strings.Join(symbols, ",")}
	}
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, strings.ReplaceAll(template, symbolPlaceholder, s))
	}
	return out
}

// Resubscriber paces subscription requests onto a Sender.
type Resubscriber struct {
	ctx      context.Context
	sender   Sender
	requests []string
	limiter  *rate.Limiter
	log      *logger.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Resubscriber. rps <= 0 disables pacing.
func New(ctx context.Context, sender Sender, requests []string, rps float64, burst int) *Resubscriber {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Resubscriber{
		ctx:      ctx,
		sender:   sender,
		requests: append([]string(nil), requests...),
		limiter:  rate.NewLimiter(limit, burst),
		log:      logger.GetLogger().WithComponent("subscriber"),
	}
}

// Trigger starts sending every request, abandoning a run still in progress.
func (r *Resubscriber) Trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
	if r.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.ctx)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done

	go func() {
		defer close(done)
		r.run(ctx)
	}()
}

// Stop abandons any run in progress and waits for it to exit.
func (r *Resubscriber) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

// Wait blocks until the current run, if any, has finished.
func (r *Resubscriber) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (r *Resubscriber) stopLocked() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
}

func (r *Resubscriber) run(ctx context.Context) {
	sent := 0
	for _, req := range r.requests {
		if err := r.limiter.Wait(ctx); err != nil {
			r.log.WithField("sent", sent).Debug("resubscribe abandoned")
			return
		}
		if err := r.sender.Send(req); err != nil {
			if errors.Is(err, feed.ErrNotConnected) {
				r.log.WithField("sent", sent).Info("feed went down, resubscribe stopped")
				return
			}
			r.log.WithError(err).WithField("request", req).Warn("subscription request failed")
			continue
		}
		sent++
		logger.IncrementCounter("subscriptions_sent")
	}
	r.log.WithField("requests", sent).Info("subscriptions sent")
}
