package erp

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()
	start := time.Now()

	m.ObserveRequest("stock", start, nil)
	m.ObserveRequest("stock", start, &APIError{Status: 422, Message: "bad"})
	m.ObserveRequest("stock", start, errors.New("timeout"))
	m.StaleDiscarded("batch")
	m.RowsClamped(2)
	m.RowsClamped(0)

	tests := []struct {
		outcome string
		want    float64
	}{
		{"ok", 1},
		{"rejected", 1},
		{"error", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.requests.WithLabelValues("stock", tt.outcome)); got != tt.want {
			t.Errorf("requests{%s} = %v, want %v", tt.outcome, got, tt.want)
		}
	}
	if got := testutil.ToFloat64(m.stale.WithLabelValues("batch")); got != 1 {
		t.Errorf("stale = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.clamped); got != 2 {
		t.Errorf("clamped = %v, want 2", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("stock", time.Now(), nil)
	m.StaleDiscarded("stock")
	m.RowsClamped(3)
}

func TestMetricsServerRoutes(t *testing.T) {
	m := NewMetrics()
	m.StaleDiscarded("stock")
	s := NewMetricsServer(":0", m)

	tests := []struct {
		path string
		want string
	}{
		{"/health", "OK"},
		{"/metrics", `erp_stale_responses_total{lookup="stock"} 1`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			body, _ := io.ReadAll(rec.Body)
			if !strings.Contains(string(body), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
		})
	}
}

func TestLogError(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	LogError(logger, "txn", "ApplyStock", "fetch warehouse stock", "W1", errors.New("boom"))

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("nothing logged")
	}
	if entry.Level != logrus.ErrorLevel || entry.Message != "boom" {
		t.Errorf("entry = %s %q", entry.Level, entry.Message)
	}
	for k, want := range map[string]interface{}{"module": "txn", "funcName": "ApplyStock", "data": "W1"} {
		if entry.Data[k] != want {
			t.Errorf("%s = %v, want %v", k, entry.Data[k], want)
		}
	}
}
