package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/roffe/govehicle"
)

func TestRecorderVehicleType(t *testing.T) {
	r := NewRecorder()
	r.VehicleType("O2")
	r.VehicleType("TR")
	r.VehicleType("")

	tests := []struct {
		typ  string
		want float64
	}{
		{"O2", 0},
		{"TR", 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(r.vehicleInfo.WithLabelValues(tt.typ)); got != tt.want {
			t.Errorf("vehicle_info{type=%q} = %v, want %v", tt.typ, got, tt.want)
		}
	}
	r.VehicleType("O2")
	if got := testutil.ToFloat64(r.vehicleInfo.WithLabelValues("O2")); got != 1 {
		t.Errorf("vehicle_info{type=O2} = %v, want 1", got)
	}
	if r.CurrentType() != "O2" || r.Changes() != 4 {
		t.Errorf("CurrentType() = %q, Changes() = %d", r.CurrentType(), r.Changes())
	}
}

func TestRecorderCounters(t *testing.T) {
	r := NewRecorder()
	r.FrameDropped("vehicle/O2")
	r.FrameDropped("vehicle/O2")
	r.PollSent("can1", govehicle.PollTypeCurrent)
	r.PollReply("can1", govehicle.PollTypeCurrent)
	r.PollReply("can1", govehicle.PollTypeCurrent)

	if got := testutil.ToFloat64(r.framesDrop.WithLabelValues("vehicle/O2")); got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.pollRequests.WithLabelValues("can1", govehicle.PollTypeCurrent.String())); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.pollReplies.WithLabelValues("can1", govehicle.PollTypeCurrent.String())); got != 2 {
		t.Errorf("replies = %v, want 2", got)
	}
}

func TestRouter(t *testing.T) {
	r := NewRecorder()
	r.VehicleType("O2")
	router := NewRouter(r, func() Status {
		return Status{VehicleType: r.CurrentType(), Buses: []string{"can1"}, DroppedFrames: 3}
	})

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		contains string
	}{
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, `govehicle_vehicle_info{type="O2"} 1`},
		{"status", http.MethodGet, "/status", http.StatusOK, `"vehicle_type":"O2"`},
		{"healthz", http.MethodGet, "/healthz", http.StatusOK, "ok"},
		{"status post", http.MethodPost, "/status", http.StatusMethodNotAllowed, ""},
		{"unknown", http.MethodGet, "/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.contains != "" && !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body does not contain %q:\n%s", tt.contains, rec.Body.String())
			}
		})
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.DroppedFrames != 3 || len(st.Buses) != 1 {
		t.Errorf("status = %+v", st)
	}
}
