package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/MrEthical07/examauth"
)

type fakeSource struct {
	snapshot examauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() examauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func gather(t *testing.T, c *Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	got := gather(t, NewCollectorFromSource(fakeSource{
		snapshot: examauth.MetricsSnapshot{
			Counters:   map[examauth.MetricID]uint64{},
			Histograms: map[examauth.MetricID][]uint64{},
		},
	}))

	if len(got) != 1 {
		t.Fatalf("expected only the audit dropped counter, got %d families", len(got))
	}
	if _, ok := got["examauth_audit_dropped_total"]; !ok {
		t.Fatal("expected examauth_audit_dropped_total")
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	got := gather(t, NewCollectorFromSource(fakeSource{
		snapshot: examauth.MetricsSnapshot{
			Counters: map[examauth.MetricID]uint64{
				examauth.MetricLoginSuccess:          7,
				examauth.MetricRefreshReplayRejected: 2,
			},
			Histograms: map[examauth.MetricID][]uint64{
				examauth.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			LatencySums: map[examauth.MetricID]time.Duration{
				examauth.MetricLoginLatency: 3 * time.Second,
			},
		},
		dropped: 2,
	}))

	if v := got["examauth_login_success_total"].GetMetric()[0].GetCounter().GetValue(); v != 7 {
		t.Fatalf("expected login success 7, got %v", v)
	}
	if v := got["examauth_refresh_replay_rejected_total"].GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Fatalf("expected replay rejected 2, got %v", v)
	}
	if v := got["examauth_audit_dropped_total"].GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Fatalf("expected audit dropped 2, got %v", v)
	}

	h := got["examauth_login_latency_seconds"].GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 36 || h.GetSampleSum() != 3 {
		t.Fatalf("unexpected histogram count=%d sum=%v", h.GetSampleCount(), h.GetSampleSum())
	}
	first := h.GetBucket()[0]
	if first.GetUpperBound() != 0.005 || first.GetCumulativeCount() != 1 {
		t.Fatalf("unexpected first bucket %v", first)
	}
	last := h.GetBucket()[len(h.GetBucket())-1]
	if last.GetUpperBound() != 0.5 || last.GetCumulativeCount() != 28 {
		t.Fatalf("unexpected last finite bucket %v", last)
	}
	if _, ok := got["examauth_authenticate_latency_seconds"]; ok {
		t.Fatal("histograms without a snapshot entry must be skipped")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: examauth.MetricsSnapshot{
			Counters:   map[examauth.MetricID]uint64{examauth.MetricOTPGenerated: 4},
			Histograms: map[examauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "examauth_otp_generated_total 4") {
		t.Fatalf("expected otp counter in output, got:\n%s", body)
	}
}
