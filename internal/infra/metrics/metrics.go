package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	MessagesInbound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_messages_inbound_total",
		Help: "Inbound WhatsApp messages by type",
	}, []string{"type"})

	MessagesOutbound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_messages_outbound_total",
		Help: "Outbound WhatsApp messages by type",
	}, []string{"type"})

	OutboundSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wa_messages_suppressed_total",
		Help: "Outbound messages suppressed as within-session duplicates",
	})

	DealsServed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_served_total",
		Help: "Deals delivered to users by source tier",
	}, []string{"source"})

	DealSearchFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deal_search_fallbacks_total",
		Help: "Deal searches that reached the web-search fallback",
	})

	SessionFallbackWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_fallback_writes_total",
		Help: "Session saves diverted to the fallback table",
	})

	AlertsFired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alerts_fired_total",
		Help: "Daily alerts dispatched",
	})

	AlertsRetired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alerts_retired_total",
		Help: "Alerts auto-deactivated at the message cap",
	})

	GenerationJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_jobs_total",
		Help: "Content generation jobs by outcome",
	}, []string{"outcome"})

	HandlerDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "convo_handle_seconds",
		Help:    "Webhook event handling time",
		Buckets: prometheus.DefBuckets,
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Duration of outbound network requests",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Count of outbound network requests",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "LLM reply generation time",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Tokens consumed by the LLM",
	}, []string{"model", "type"})
)

// MustRegister registers all collectors on the default registerer.
func MustRegister() {
	prometheus.MustRegister(
		MessagesInbound,
		MessagesOutbound,
		OutboundSuppressed,
		DealsServed,
		DealSearchFallbacks,
		SessionFallbackWrites,
		AlertsFired,
		AlertsRetired,
		GenerationJobs,
		HandlerDuration,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer runs an HTTP server with a /metrics endpoint.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest records the duration and status of a network call.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration records LLM latency and token usage.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}
