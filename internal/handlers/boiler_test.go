package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"boilerctl/internal/control"
	"boilerctl/internal/models"
	"boilerctl/internal/service"
)

func authedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	return req
}

func TestBoilerHandlers_StatusAndCommands(t *testing.T) {
	auth := &mockAuth{parseID: 7}
	mon := &mockMonitoring{
		status: models.BoilerStatus{
			Enabled:     true,
			State:       "RUNNING_HIGH",
			Mode:        "BOTH",
			Power:       "AUTO",
			BoilerTempC: 71.5,
		},
		counters: models.RuntimeCounters{IgnitionCount: 9, LockoutCount: 1},
	}
	bo := &mockBoiler{}
	s := &service.Service{
		Authorization: auth,
		Monitoring:    mon,
		Boiler:        bo,
	}
	r := newTestRouter(s)

	// GET status requires auth → 401 without header
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/boiler/status", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", w.Code)
	}

	// With auth → 200 and status body with counters alongside
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(http.MethodGet, "/api/v1/boiler/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var st struct {
		models.BoilerStatus
		Counters models.RuntimeCounters `json:"counters"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if st.State != "RUNNING_HIGH" || st.BoilerTempC != 71.5 || !st.Enabled {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.Counters.IgnitionCount != 9 || st.Counters.LockoutCount != 1 {
		t.Fatalf("counters missing in response: %+v", st.Counters)
	}

	// POST /enable → 200, calls Boiler.Enable and includes state
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(http.MethodPost, "/api/v1/boiler/enable", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("enable status=%d, body=%s", w.Code, w.Body.String())
	}
	if bo.enableCalls != 1 {
		t.Fatalf("expected Enable to be called once, got %d", bo.enableCalls)
	}
	var resp struct {
		Status string              `json:"status"`
		State  models.BoilerStatus `json:"state"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != statusEnabled {
		t.Fatalf("expected status %q, got %q", statusEnabled, resp.Status)
	}
	if resp.State.State != "RUNNING_HIGH" {
		t.Fatalf("state missing/invalid in response: %+v", resp.State)
	}

	// POST /demand → 200, passes parameters and echoes the circuit
	body := bytes.NewBufferString(`{"circuit":"water","enabled":true,"target_c":55,"power":"half"}`)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(http.MethodPost, "/api/v1/boiler/demand", body))
	if w.Code != http.StatusOK {
		t.Fatalf("demand status=%d, body=%s", w.Code, w.Body.String())
	}
	if bo.demandCalls != 1 {
		t.Fatalf("SetDemand calls=%d", bo.demandCalls)
	}
	want := service.DemandParams{Circuit: "water", Enabled: true, TargetC: 55, Power: "half"}
	if bo.lastDemand != want {
		t.Fatalf("wrong demand params: %+v", bo.lastDemand)
	}
	var demandResp struct {
		Status  string `json:"status"`
		Circuit string `json:"circuit"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &demandResp)
	if demandResp.Status != statusDemandSet || demandResp.Circuit != "water" {
		t.Fatalf("bad demand response: %+v", demandResp)
	}

	// POST /disable → 200 and counter
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(http.MethodPost, "/api/v1/boiler/disable", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("disable status=%d, body=%s", w.Code, w.Body.String())
	}
	if bo.disableCalls != 1 {
		t.Fatalf("expected Disable to be called once, got %d", bo.disableCalls)
	}
}

func TestBoilerHandlers_ErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		prep     func(bo *mockBoiler)
		method   string
		path     string
		body     string
		wantCode int
	}{
		{
			name:     "demand missing circuit is 400",
			prep:     func(bo *mockBoiler) {},
			method:   http.MethodPost,
			path:     "/api/v1/boiler/demand",
			body:     `{"enabled":true}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown circuit is 400",
			prep:     func(bo *mockBoiler) { bo.demandErr = service.ErrUnknownCircuit },
			method:   http.MethodPost,
			path:     "/api/v1/boiler/demand",
			body:     `{"circuit":"steam"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown power is 400",
			prep:     func(bo *mockBoiler) { bo.demandErr = service.ErrUnknownPower },
			method:   http.MethodPost,
			path:     "/api/v1/boiler/demand",
			body:     `{"circuit":"heating","power":"turbo"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "demand internal failure is 500",
			prep:     func(bo *mockBoiler) { bo.demandErr = errors.New("db down") },
			method:   http.MethodPost,
			path:     "/api/v1/boiler/demand",
			body:     `{"circuit":"heating"}`,
			wantCode: http.StatusInternalServerError,
		},
		{
			name:     "reset without lockout is 409",
			prep:     func(bo *mockBoiler) { bo.resetErr = control.ErrNotLockedOut },
			method:   http.MethodPost,
			path:     "/api/v1/boiler/reset-lockout",
			wantCode: http.StatusConflict,
		},
		{
			name:     "refused recovery is 409",
			prep:     func(bo *mockBoiler) { bo.recoverErr = errors.New("failsafe: root cause not cleared: boiler over limit") },
			method:   http.MethodPost,
			path:     "/api/v1/boiler/recover",
			wantCode: http.StatusConflict,
		},
		{
			name:     "recovery lock timeout is 500",
			prep:     func(bo *mockBoiler) { bo.recoverErr = control.ErrLockTimeout },
			method:   http.MethodPost,
			path:     "/api/v1/boiler/recover",
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bo := &mockBoiler{}
			tc.prep(bo)
			s := &service.Service{
				Authorization: &mockAuth{parseID: 1},
				Monitoring:    &mockMonitoring{},
				Boiler:        bo,
			}
			r := newTestRouter(s)

			var body io.Reader
			if tc.body != "" {
				body = bytes.NewBufferString(tc.body)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, authedRequest(tc.method, tc.path, body))
			if w.Code != tc.wantCode {
				t.Fatalf("status: got %d, want %d (body=%s)", w.Code, tc.wantCode, w.Body.String())
			}
		})
	}
}
