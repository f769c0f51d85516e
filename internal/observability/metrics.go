package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper bot. Metrics are
// organized by subsystem: events, searches, pagination, reminders, rate
// limiting, and downloads. All counters and histograms are registered via
// promauto for automatic registration with the default Prometheus registry.
type Metrics struct {
	// EventsReceived counts inbound events, labeled by event type.
	EventsReceived *prometheus.CounterVec

	// EventsFailed counts events whose handler ended in an error or panic,
	// labeled by event type.
	EventsFailed *prometheus.CounterVec

	// EventDuration observes handler duration in seconds, labeled by event type.
	EventDuration *prometheus.HistogramVec

	// SearchesStarted counts searches sent to the paper index.
	SearchesStarted prometheus.Counter

	// SearchesCompleted counts searches that returned a usable result set.
	SearchesCompleted prometheus.Counter

	// SearchesFailed counts searches that failed, labeled by error kind.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes search round-trip duration in seconds.
	SearchDuration prometheus.Histogram

	// PagesServed counts result pages presented, labeled "first" or "continuation".
	PagesServed *prometheus.CounterVec

	// RemindersArmed counts load-more reminders scheduled.
	RemindersArmed prometheus.Counter

	// RemindersFired counts load-more reminders actually delivered.
	RemindersFired prometheus.Counter

	// RemindersDisarmed counts reminders cancelled before firing.
	RemindersDisarmed prometheus.Counter

	// RateLimitRejections counts requests rejected by admission control.
	RateLimitRejections prometheus.Counter

	// DownloadsStarted counts download requests accepted for processing.
	DownloadsStarted prometheus.Counter

	// DownloadsCompleted counts documents delivered to users.
	DownloadsCompleted prometheus.Counter

	// DownloadsRejected counts downloads refused, labeled by reason
	// ("quota", "file_too_large", "transfer_ceiling", "out_of_range").
	DownloadsRejected *prometheus.CounterVec

	// DownloadBytes counts bytes delivered to users.
	DownloadBytes prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Events
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of inbound events by type",
		}, []string{"type"}),
		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of events whose handler failed by type",
		}, []string{"type"}),
		EventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Duration of event handlers in seconds by type",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"type"}),

		// Searches
		SearchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of paper searches started",
		}),
		SearchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of paper searches completed",
		}),
		SearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of paper searches that failed by error kind",
		}, []string{"kind"}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of paper searches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		// Pagination
		PagesServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_served_total",
			Help:      "Total number of result pages presented by page kind",
		}, []string{"kind"}),

		// Reminders
		RemindersArmed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_armed_total",
			Help:      "Total number of load-more reminders scheduled",
		}),
		RemindersFired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_fired_total",
			Help:      "Total number of load-more reminders delivered",
		}),
		RemindersDisarmed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_disarmed_total",
			Help:      "Total number of load-more reminders cancelled before firing",
		}),

		// Rate limiting
		RateLimitRejections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of requests rejected by admission control",
		}),

		// Downloads
		DownloadsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_started_total",
			Help:      "Total number of download requests accepted",
		}),
		DownloadsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_completed_total",
			Help:      "Total number of documents delivered",
		}),
		DownloadsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_rejected_total",
			Help:      "Total number of downloads refused by reason",
		}, []string{"reason"}),
		DownloadBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Total bytes delivered to users",
		}),
	}
}
