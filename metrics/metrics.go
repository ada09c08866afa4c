// Package metrics exposes Prometheus instrumentation for the acquisition
// pipeline.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	AcquisitionsTotal    *prometheus.CounterVec   // outcome: accepted, exhausted, error
	AcquisitionDuration  *prometheus.HistogramVec // outcome
	CandidatesExtracted  *prometheus.CounterVec   // strategy
	RejectionsTotal      *prometheus.CounterVec   // reason
	ProbeDuration        prometheus.Histogram
	DownloadDuration     prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DedupRecordsInserted prometheus.Counter

	domainVisits *prometheus.CounterVec
}

// New creates pipeline metrics registered on the given registerer. Pass
// prometheus.DefaultRegisterer in production; a fresh registry in tests.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AcquisitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Completed acquisition requests by outcome",
		}, []string{"outcome"}),
		AcquisitionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "acquisition_duration_seconds",
			Help:      "End-to-end acquisition latency by outcome",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"outcome"}),
		CandidatesExtracted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_extracted_total",
			Help:      "Image candidates produced by each extraction strategy",
		}, []string{"strategy"}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_rejections_total",
			Help:      "Candidate rejections during validation by reason",
		}, []string{"reason"}),
		ProbeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Image probe (HEAD/Range) latency",
			Buckets:   prometheus.DefBuckets,
		}),
		DownloadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Image download latency",
			Buckets:   prometheus.DefBuckets,
		}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_hits_total",
			Help:      "Acquisition requests served from the result cache",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_misses_total",
			Help:      "Acquisition requests that missed the result cache",
		}),
		DedupRecordsInserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_records_inserted_total",
			Help:      "Fingerprint records written to the dedup store",
		}),
		domainVisits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_visits_total",
			Help:      "Outbound requests per origin domain",
		}, []string{"domain"}),
	}
}

// CountDomainVisit records one outbound request to the given host. The label
// is lowercased; an empty host is dropped rather than creating a blank
// series.
func (m *Metrics) CountDomainVisit(host string) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return
	}
	m.domainVisits.WithLabelValues(host).Inc()
}

// RejectionReason normalizes free-form rejection reasons into a bounded
// label set.
func RejectionReason(reason string) string {
	switch {
	case strings.HasPrefix(reason, "blocked"):
		return "egress_blocked"
	case strings.HasPrefix(reason, "duplicate"):
		return "duplicate"
	case strings.HasPrefix(reason, "blacklisted"):
		return "blacklisted"
	case strings.HasPrefix(reason, "too small"), strings.HasPrefix(reason, "dimension"):
		return "too_small"
	case strings.HasPrefix(reason, "unsupported"):
		return "unsupported_type"
	case strings.HasPrefix(reason, "oversize"), strings.HasPrefix(reason, "too large"):
		return "oversize"
	case strings.HasPrefix(reason, "fetch"), strings.HasPrefix(reason, "probe"):
		return "fetch_failed"
	default:
		return "other"
	}
}
