package status

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"quotestream/feed"
	"quotestream/logger"
)

const metricsNamespace = "quotestream"

// feedCounters maps exported counter names to the logger counters backing them.
var feedCounters = map[string]string{
	"feed_connects_total":             "feed_connects",
	"feed_errors_total":               "feed_errors",
	"feed_reconnects_scheduled_total": "feed_reconnects_scheduled",
	"feed_keepalive_frames_total":     "feed_keepalive",
	"subscriptions_sent_total":        "subscriptions_sent",
}

func newRegistry(fs FeedStatus) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for name, counter := range feedCounters {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      "Total " + counter + " events.",
		}, func() float64 {
			return float64(logger.Counter(counter))
		}))
	}

	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "feed_text_frames_total",
			Help:      "Text frames forwarded to the message handler.",
		}, func() float64 {
			messages, _ := logger.ChannelStats("feed_text")
			return float64(messages)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "feed_text_bytes_total",
			Help:      "Bytes of text frames forwarded to the message handler.",
		}, func() float64 {
			_, bytes := logger.ChannelStats("feed_text")
			return float64(bytes)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "feed_connected",
			Help:      "1 while the feed connection is up.",
		}, func() float64 {
			if fs.State() == feed.StateConnected {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "feed_symbols",
			Help:      "Number of subscribed symbols.",
		}, func() float64 {
			return float64(len(fs.Symbols()))
		}),
	)
	return reg
}
