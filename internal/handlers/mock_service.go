package handlers

import (
	"context"
	"net/http"
	"time"

	"boilerctl/internal/models"
	"boilerctl/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}

func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}

func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockBoiler struct {
	enableErr  error
	disableErr error
	demandErr  error
	resetErr   error
	recoverErr error
	restoreErr error

	lastDemand   service.DemandParams
	enableCalls  int
	disableCalls int
	demandCalls  int
	resetCalls   int
	recoverCalls int
}

func (m *mockBoiler) Enable(ctx context.Context) error {
	m.enableCalls++
	return m.enableErr
}

func (m *mockBoiler) Disable(ctx context.Context) error {
	m.disableCalls++
	return m.disableErr
}

func (m *mockBoiler) SetDemand(ctx context.Context, p service.DemandParams) error {
	m.demandCalls++
	m.lastDemand = p
	return m.demandErr
}

func (m *mockBoiler) ResetLockout(ctx context.Context) error {
	m.resetCalls++
	return m.resetErr
}

func (m *mockBoiler) Recover(ctx context.Context) error {
	m.recoverCalls++
	return m.recoverErr
}

func (m *mockBoiler) RestoreState(ctx context.Context) error {
	return m.restoreErr
}

type mockMonitoring struct {
	status   models.BoilerStatus
	counters models.RuntimeCounters
	records  []models.EmergencyRecord
	listErr  error
	clearErr error

	clearCalls int
}

func (m *mockMonitoring) Status() models.BoilerStatus {
	return m.status
}

func (m *mockMonitoring) Counters() models.RuntimeCounters {
	return m.counters
}

func (m *mockMonitoring) Emergencies(ctx context.Context) ([]models.EmergencyRecord, error) {
	return m.records, m.listErr
}

func (m *mockMonitoring) ClearEmergencies(ctx context.Context) error {
	m.clearCalls++
	return m.clearErr
}

type mockEventLog struct {
	resp     []models.BoilerEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.BoilerEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

type mockSafetyConfig struct {
	view       service.SafetySettings
	updateErr  error
	restoreErr error

	lastUpdate  service.SafetyUpdate
	updateCalls int
}

func (m *mockSafetyConfig) View() service.SafetySettings {
	return m.view
}

func (m *mockSafetyConfig) Update(ctx context.Context, u service.SafetyUpdate) error {
	m.updateCalls++
	m.lastUpdate = u
	return m.updateErr
}

func (m *mockSafetyConfig) Restore(ctx context.Context) error {
	return m.restoreErr
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
