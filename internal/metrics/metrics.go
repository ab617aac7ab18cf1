// Package metrics exposes Prometheus counters for the bot and the HTTP
// listener that serves them.
package metrics

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// commandsTotal counts handled messages by routed intent.
	// Labels: intent (sendEmail, saveEmail, removeEmail, listEmails, unknown, confirmation)
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mailbot",
		Name:      "commands_total",
		Help:      "Total handled chat messages by intent",
	}, []string{"intent"})

	// confirmationsTotal counts terminal outcomes of pending sends.
	// Labels: outcome (sent, failed, cancelled, expired)
	confirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mailbot",
		Name:      "confirmations_total",
		Help:      "Pending send outcomes",
	}, []string{"outcome"})

	// generationsTotal counts text generation calls.
	// Labels: provider, result (ok, rate_limited, error)
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mailbot",
		Name:      "generations_total",
		Help:      "Text generation calls by provider and result",
	}, []string{"provider", "result"})

	// deliveriesTotal counts delivery attempts by provider and result.
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mailbot",
		Name:      "deliveries_total",
		Help:      "Email deliveries by provider and result",
	}, []string{"provider", "result"})

	// deliveryLatencySeconds measures provider Send latency.
	deliveryLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mailbot",
		Name:      "delivery_latency_seconds",
		Help:      "Email delivery latency by provider",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"})
)

// RecordCommand records one routed message.
func RecordCommand(intent string) {
	commandsTotal.WithLabelValues(intent).Inc()
}

// RecordConfirmation records a pending send reaching a terminal state.
func RecordConfirmation(outcome string) {
	confirmationsTotal.WithLabelValues(outcome).Inc()
}

// RecordGeneration records one text generation attempt.
func RecordGeneration(provider, result string) {
	generationsTotal.WithLabelValues(provider, result).Inc()
}

// RecordDelivery records one delivery attempt and its duration.
func RecordDelivery(provider string, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	deliveriesTotal.WithLabelValues(provider, result).Inc()
	deliveryLatencySeconds.WithLabelValues(provider).Observe(d.Seconds())
}

// NewHandler returns a mux serving /metrics and /health.
func NewHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Serve runs the metrics listener on addr until ctx is cancelled. A
// non-nil tlsConfig serves HTTPS.
func Serve(ctx context.Context, addr string, tlsConfig *tls.Config) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(),
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listener started", "addr", addr, "tls", tlsConfig != nil)
	var err error
	if tlsConfig != nil {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
