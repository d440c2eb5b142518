package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/wiretalk/chatline/internal/metrics"
)

type fakeServer struct {
	roster   int
	handled  uint64
}

func (f *fakeServer) RosterSize() int        { return f.roster }
func (f *fakeServer) MessagesHandled() uint64 { return f.handled }

func TestCollectReportsLiveServerState(t *testing.T) {
	srv := &fakeServer{roster: 3, handled: 42}
	c := metrics.NewCollector(srv)

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register(...); got unexpected error: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather(); got unexpected error: %v", err)
	}

	var gotRoster, gotMessages bool
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch f.GetName() {
			case "chatline_server_roster_size":
				gotRoster = true
				if v := gaugeValue(m); v != 3 {
					t.Errorf("roster gauge = %v, want 3", v)
				}
			case "chatline_server_messages_handled_total":
				gotMessages = true
				if v := counterValue(m); v != 42 {
					t.Errorf("messages counter = %v, want 42", v)
				}
			}
		}
	}
	if !gotRoster || !gotMessages {
		t.Fatalf("Gather() missing expected families: roster=%v messages=%v", gotRoster, gotMessages)
	}
}

func gaugeValue(m *dto.Metric) float64   { return m.GetGauge().GetValue() }
func counterValue(m *dto.Metric) float64 { return m.GetCounter().GetValue() }
