package logger

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	warns    sync.Map // component -> *int64
	errs     sync.Map // component -> *int64
	counters sync.Map // name -> *int64
	channels sync.Map // name -> *channelStat
)

func bump(m *sync.Map, key string) {
	v, _ := m.LoadOrStore(key, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordWarn(component string) {
	bump(&warns, component)
}

func recordError(component string) {
	bump(&errs, component)
}

// IncrementCounter adds one to the named counter shown in the runtime report.
func IncrementCounter(name string) {
	bump(&counters, name)
}

// RecordChannelMessage accounts one message of size bytes on the named channel.
func RecordChannelMessage(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// Counter returns the current value of a counter registered through
// IncrementCounter.
func Counter(name string) int64 {
	v, ok := counters.Load(name)
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v.(*int64))
}

// Counters returns a copy of every counter registered through IncrementCounter.
func Counters() map[string]int64 {
	return snapshot(&counters)
}

// ChannelStats returns the message and byte totals recorded for a channel.
func ChannelStats(name string) (messages, bytes int64) {
	v, ok := channels.Load(name)
	if !ok {
		return 0, 0
	}
	cs := v.(*channelStat)
	return atomic.LoadInt64(&cs.messages), atomic.LoadInt64(&cs.bytes)
}

func snapshot(m *sync.Map) map[string]int64 {
	out := map[string]int64{}
	m.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return out
}

// StartReport begins periodic logging of system and feed statistics until ctx
// is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	netStats, _ := gnet.IOCounters(false)

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memUsedMB := 0.0
	if memStats, err := mem.VirtualMemory(); err == nil {
		memUsedMB = float64(memStats.Used) / 1024 / 1024
	}
	var bytesSent, bytesRecv uint64
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		cs := v.(*channelStat)
		channelData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})
	counterData := snapshot(&counters)

	log.WithComponent("report").WithFields(Fields{
		"warns":          snapshot(&warns),
		"errors":         snapshot(&errs),
		"counters":       counterData,
		"channels":       channelData,
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memUsedMB),
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
	}).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memUsedMB)},
		{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	}
	if text, ok := channelData["feed_text"]; ok {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("FeedTextFrames"),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(text["messages"])),
		})
	}

	names := make([]string, 0, len(counterData))
	for name := range counterData {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("Counter"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Name"), Value: aws.String(name)}},
			Value:      aws.Float64(float64(counterData[name])),
		})
	}

	publishMetrics(ctx, data)
}
