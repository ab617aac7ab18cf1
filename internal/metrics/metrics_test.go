package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_Health(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(NewHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body: got %q, want %q", body, "ok")
	}
}

func TestHandler_MetricsExposesCounters(t *testing.T) {
	t.Parallel()

	RecordCommand("listEmails")
	RecordConfirmation("expired")
	RecordGeneration("gemini", "ok")
	RecordDelivery("stdout", nil, 10*time.Millisecond)
	RecordDelivery("smtp", errors.New("boom"), time.Second)

	srv := httptest.NewServer(NewHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := string(body)

	for _, want := range []string{
		`mailbot_commands_total{intent="listEmails"}`,
		`mailbot_confirmations_total{outcome="expired"}`,
		`mailbot_generations_total{provider="gemini",result="ok"}`,
		`mailbot_deliveries_total{provider="smtp",result="error"}`,
		`mailbot_delivery_latency_seconds_bucket{provider="stdout"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
