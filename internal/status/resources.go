package status

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"quotestream/logger"
)

// processSample is one reading of this process's resource usage.
type processSample struct {
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	Threads    int32     `json:"threads"`
	Goroutines int       `json:"goroutines"`
}

// sampleProcessFn is replaced in tests.
var sampleProcessFn = sampleProcess

func sampleProcess(ctx context.Context) (processSample, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return processSample{}, err
	}
	cpuPct, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return processSample{}, err
	}
	memInfo, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return processSample{}, err
	}
	threads, err := p.NumThreadsWithContext(ctx)
	if err != nil {
		return processSample{}, err
	}
	return processSample{
		Timestamp:  time.Now(),
		CPUPercent: cpuPct,
		RSSBytes:   memInfo.RSS,
		Threads:    threads,
		Goroutines: runtime.NumGoroutine(),
	}, nil
}

// processSampler keeps a bounded history of process samples.
type processSampler struct {
	limit    int
	interval time.Duration
	log      *logger.Entry

	mu     sync.RWMutex
	items  []processSample
	cancel context.CancelFunc
	done   chan struct{}
}

func newProcessSampler(limit int, interval time.Duration, log *logger.Log) *processSampler {
	if limit <= 0 {
		limit = 200
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &processSampler{
		limit:    limit,
		interval: interval,
		log:      log.WithComponent("process_sampler"),
	}
}

func (s *processSampler) start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

func (s *processSampler) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *processSampler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sample(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *processSampler) sample(ctx context.Context) {
	snap, err := sampleProcessFn(ctx)
	if err != nil {
		s.log.WithError(err).Debug("failed to sample process usage")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, snap)
	if len(s.items) > s.limit {
		s.items = append([]processSample(nil), s.items[len(s.items)-s.limit:]...)
	}
}

func (s *processSampler) snapshot() []processSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]processSample, len(s.items))
	copy(out, s.items)
	return out
}
