package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrapeCollector(t *testing.T, c *Collector) string {
	t.Helper()
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want 200", w.Code)
	}
	return w.Body.String()
}

func TestCollectorRecordsAllFamilies(t *testing.T) {
	c := NewCollector("far_chat")

	c.RecordHTTPRequest(http.MethodGet, "/healthz", "200", 5*time.Millisecond)
	c.RecordChatRequest(OutcomeAnswered)
	c.RecordChatRequest(OutcomeRejected)
	c.ObserveStage(StageEmbed, 20*time.Millisecond)
	c.ObserveStage(StageGenerate, 800*time.Millisecond)
	c.RecordRateLimitRejection()
	c.RecordProviderRetry(StageEmbed)
	c.RecordQuestionFlag("instruction_override")

	body := scrapeCollector(t, c)

	expected := []string{
		`far_chat_http_requests_total{method="GET",route="/healthz",status="200"} 1`,
		`far_chat_chat_requests_total{outcome="answered"} 1`,
		`far_chat_chat_requests_total{outcome="rejected"} 1`,
		`far_chat_chat_stage_duration_seconds_count{stage="embed"} 1`,
		`far_chat_chat_stage_duration_seconds_count{stage="generate"} 1`,
		`far_chat_rate_limit_rejections_total 1`,
		`far_chat_provider_retries_total{operation="embed"} 1`,
		`far_chat_question_flags_total{category="instruction_override"} 1`,
	}
	for _, line := range expected {
		if !strings.Contains(body, line) {
			t.Errorf("scrape missing %q", line)
		}
	}
}

func TestCollectorsDoNotShareState(t *testing.T) {
	a := NewCollector("far_chat")
	b := NewCollector("far_chat")

	a.RecordChatRequest(OutcomeAnswered)

	if body := scrapeCollector(t, b); strings.Contains(body, `outcome="answered"`) {
		t.Error("second collector saw the first collector's counts")
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector

	// Every recording method must be a no-op on nil, so services can run
	// without metrics in tests.
	c.RecordHTTPRequest(http.MethodGet, "/", "200", time.Millisecond)
	c.RecordChatRequest(OutcomeAnswered)
	c.ObserveStage(StageRetrieve, time.Millisecond)
	c.RecordRateLimitRejection()
	c.RecordProviderRetry(StageEmbed)
	c.RecordQuestionFlag("delimiter_attack")
}
