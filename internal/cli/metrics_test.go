package cli

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/taskboard/internal/observability"
)

type metricsMock struct {
	metrics *observability.Metrics
	err     error
	since   time.Time
}

func (m *metricsMock) Calculate(since time.Time) (*observability.Metrics, error) {
	m.since = since
	return m.metrics, m.err
}

func withMetrics(t *testing.T, mc observability.MetricsCalculator) {
	t.Helper()
	orig := MetricsCalc
	t.Cleanup(func() { MetricsCalc = orig })
	MetricsCalc = mc
	resetFlags(t, metricsCmd)
}

func TestMetricsCmd_NilCalculator(t *testing.T) {
	withMetrics(t, nil)

	err := metricsCmd.RunE(metricsCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected not initialized error, got %v", err)
	}
}

func TestMetricsCmd_Table(t *testing.T) {
	mc := &metricsMock{metrics: &observability.Metrics{
		TasksCreated: 4,
		Moves:        3,
		MovesByStage: map[string]int{"code": 2, "audit": 1},
		Conflicts:    1,
		EventCount:   8,
	}}
	withMetrics(t, mc)

	out := captureStdout(t, func() {
		if err := metricsCmd.RunE(metricsCmd, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	for _, want := range []string{"Tasks created:", "4", "Moves by destination:", "code:", "Conflicts:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "audit:") > strings.Index(out, "code:") {
		t.Error("destinations should be sorted")
	}
	if age := time.Since(mc.since); age < 7*24*time.Hour-time.Minute || age > 7*24*time.Hour+time.Minute {
		t.Errorf("default window = %v, want 7d", age)
	}
}

func TestMetricsCmd_JSON(t *testing.T) {
	withMetrics(t, &metricsMock{metrics: &observability.Metrics{TasksCreated: 2}})
	if err := metricsCmd.Flags().Set("json", "true"); err != nil {
		t.Fatal(err)
	}

	out := captureStdout(t, func() {
		if err := metricsCmd.RunE(metricsCmd, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	var got observability.Metrics
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.TasksCreated != 2 {
		t.Errorf("tasks_created = %d", got.TasksCreated)
	}
}

func TestMetricsCmd_Errors(t *testing.T) {
	withMetrics(t, &metricsMock{err: errors.New("boom")})

	err := metricsCmd.RunE(metricsCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "calculating metrics") {
		t.Errorf("expected calculation error, got %v", err)
	}

	if err := metricsCmd.Flags().Set("since", "2w"); err != nil {
		t.Fatal(err)
	}
	err = metricsCmd.RunE(metricsCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "parsing --since") {
		t.Errorf("expected parse error, got %v", err)
	}
}
