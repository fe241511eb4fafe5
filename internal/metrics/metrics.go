// Package metrics provides Prometheus metrics for the kotoba server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kotoba"

var (
	// RequestsTotal counts HTTP requests by route pattern and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration measures handler latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	PostViewsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "post_views_total",
			Help:      "Total number of recorded post views",
		},
	)

	ReactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_total",
			Help:      "Total number of reactions by type",
		},
		[]string{"type"},
	)

	SearchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Total number of search queries",
		},
		[]string{"kind"},
	)

	// RateLimitedTotal counts requests refused by the per-IP limiter.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of rate limited requests",
		},
	)

	// ArticleCacheTotal counts processed-article cache lookups.
	ArticleCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "article_cache_total",
			Help:      "Processed article cache lookups by result",
		},
		[]string{"result"},
	)

	// ImportedPostsTotal counts posts written by the importer.
	ImportedPostsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imported_posts_total",
			Help:      "Total number of imported posts by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records one served request.
func RecordRequest(route, method string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func RecordView() {
	PostViewsTotal.Inc()
}

func RecordReaction(kind string) {
	ReactionsTotal.WithLabelValues(kind).Inc()
}

// RecordSearch records a query; kind is "page" or "suggest".
func RecordSearch(kind string) {
	SearchQueriesTotal.WithLabelValues(kind).Inc()
}

func RecordRateLimited() {
	RateLimitedTotal.Inc()
}

func RecordCache(hit bool) {
	if hit {
		ArticleCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	ArticleCacheTotal.WithLabelValues("miss").Inc()
}

func RecordImport(outcome string) {
	ImportedPostsTotal.WithLabelValues(outcome).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
