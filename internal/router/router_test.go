package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/carelink/internal/handler/appointment"
	"github.com/jwalitptl/carelink/internal/handler/contact"
	"github.com/jwalitptl/carelink/internal/handler/doctor"
	"github.com/jwalitptl/carelink/internal/handler/health"
	"github.com/jwalitptl/carelink/internal/handler/inquiry"
	"github.com/jwalitptl/carelink/internal/handler/patient"
	"github.com/jwalitptl/carelink/internal/middleware"
	"github.com/jwalitptl/carelink/internal/repository/memory"
	"github.com/jwalitptl/carelink/internal/router"
	"github.com/jwalitptl/carelink/internal/service/relation"
	"github.com/jwalitptl/carelink/pkg/httputil"
	"github.com/jwalitptl/carelink/pkg/logger"
	"github.com/jwalitptl/carelink/pkg/metrics"
	"github.com/jwalitptl/carelink/pkg/security"
)

var fixedNow = time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

type apiResponse struct {
	status  int
	header  http.Header
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *httputil.Error `json:"error"`
}

func (r *apiResponse) object(t *testing.T) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(r.Data, &m))
	return m
}

func (r *apiResponse) list(t *testing.T) []map[string]interface{} {
	t.Helper()
	var l []map[string]interface{}
	require.NoError(t, json.Unmarshal(r.Data, &l))
	return l
}

func (r *apiResponse) GetString(t *testing.T, key string) string {
	t.Helper()
	s, _ := r.object(t)[key].(string)
	return s
}

type server struct {
	engine *gin.Engine
}

func newServer(t *testing.T, cfg router.RouterConfig, checks map[string]health.Pinger) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())

	store := memory.NewStore()
	svc := relation.NewService(store, security.NewBcryptHasher(bcrypt.MinCost), "admin@care.com", logger.Nop(),
		relation.WithClock(func() time.Time { return fixedNow }))

	if checks == nil {
		checks = map[string]health.Pinger{"store": store}
	}
	if cfg.Timeout.Duration == 0 {
		cfg.Timeout = middleware.DefaultTimeoutConfig()
	}

	r := router.NewRouter(
		logger.Nop(),
		metrics.New("test", nil),
		health.NewHandler(checks, prometheus.NewRegistry()),
		cfg,
		patient.NewHandler(svc),
		doctor.NewHandler(svc),
		appointment.NewHandler(svc),
		inquiry.NewHandler(svc),
		contact.NewHandler(svc),
	)
	r.Setup()
	return &server{engine: r.Engine()}
}

func (s *server) do(t *testing.T, method, path string, body interface{}) *apiResponse {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	resp := &apiResponse{status: w.Code, header: w.Header()}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), resp))
	}
	return resp
}

func (s *server) createDoctor(t *testing.T, email string) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/v1/doctors", map[string]interface{}{
		"first_name":     "Gregory",
		"last_name":      "House",
		"email":          email,
		"password":       "password123",
		"specialization": "diagnostics",
	})
	require.Equal(t, http.StatusCreated, resp.status)
	return resp.GetString(t, "id")
}

func (s *server) createPatient(t *testing.T, email string) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/v1/patients", map[string]interface{}{
		"first_name": "Rebecca",
		"last_name":  "Adler",
		"email":      email,
		"password":   "password123",
	})
	require.Equal(t, http.StatusCreated, resp.status)
	return resp.GetString(t, "id")
}

func TestPatientDoctorFlow(t *testing.T) {
	s := newServer(t, router.RouterConfig{}, nil)

	doctorID := s.createDoctor(t, "house@care.com")
	patientID := s.createPatient(t, "adler@care.com")

	// Link
	resp := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/patients/%s/doctors/%s", patientID, doctorID), nil)
	assert.Equal(t, http.StatusNoContent, resp.status)

	resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/patients/%s/doctors", patientID), nil)
	require.Equal(t, http.StatusOK, resp.status)
	doctors := resp.list(t)
	require.Len(t, doctors, 1)
	assert.Equal(t, doctorID, doctors[0]["id"])

	resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/doctors/%s/patients", doctorID), nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.list(t), 1)

	// Appointment, then the same slot again
	booking := map[string]interface{}{
		"patient_id": patientID,
		"doctor_id":  doctorID,
		"date":       fixedNow.Add(48 * time.Hour).Format(time.RFC3339),
	}
	resp = s.do(t, http.MethodPost, "/api/v1/appointments", booking)
	assert.Equal(t, http.StatusCreated, resp.status)

	resp = s.do(t, http.MethodPost, "/api/v1/appointments", booking)
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, "conflict", resp.Error.Code)

	resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/doctors/%s/appointments", doctorID), nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.list(t), 1)

	// Inquiry lifecycle
	resp = s.do(t, http.MethodPost, "/api/v1/inquiries", map[string]interface{}{
		"doctor_id":  doctorID,
		"patient_id": patientID,
		"sender_id":  patientID,
		"symptoms":   "headache",
	})
	require.Equal(t, http.StatusCreated, resp.status)
	inquiryID := resp.GetString(t, "id")

	answer := map[string]interface{}{"answerer_id": doctorID, "answer": "rest"}
	resp = s.do(t, http.MethodPost, "/api/v1/inquiries/"+inquiryID+"/answer", answer)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, true, resp.object(t)["answered"])

	resp = s.do(t, http.MethodPost, "/api/v1/inquiries/"+inquiryID+"/answer", answer)
	assert.Equal(t, http.StatusConflict, resp.status)

	// Roles
	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/patients/%s/roles", patientID), map[string]interface{}{"role": "ADMIN"})
	require.Equal(t, http.StatusOK, resp.status)
	roles, _ := resp.object(t)["roles"].([]interface{})
	assert.Len(t, roles, 2)

	// Delete cascades
	resp = s.do(t, http.MethodDelete, "/api/v1/patients/"+patientID, nil)
	assert.Equal(t, http.StatusNoContent, resp.status)

	resp = s.do(t, http.MethodGet, "/api/v1/patients/"+patientID, nil)
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/doctors/%s/patients", doctorID), nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Empty(t, resp.list(t))
}

func TestUpdateDoctor(t *testing.T) {
	s := newServer(t, router.RouterConfig{}, nil)
	doctorID := s.createDoctor(t, "wilson@care.com")

	resp := s.do(t, http.MethodPut, "/api/v1/doctors/"+doctorID, map[string]interface{}{"specialization": "oncology"})
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "oncology", resp.GetString(t, "specialization"))
	assert.Equal(t, "Gregory", resp.GetString(t, "first_name"))
}

func TestRequestValidation(t *testing.T) {
	s := newServer(t, router.RouterConfig{}, nil)
	patientID := s.createPatient(t, "adler@care.com")

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		field  string
	}{
		{
			name:   "bad email",
			method: http.MethodPost,
			path:   "/api/v1/patients",
			body:   map[string]interface{}{"first_name": "A", "last_name": "B", "email": "nope", "password": "password123"},
			status: http.StatusBadRequest,
			field:  "email",
		},
		{
			name:   "short password",
			method: http.MethodPost,
			path:   "/api/v1/doctors",
			body:   map[string]interface{}{"first_name": "A", "last_name": "B", "email": "a@b.com", "password": "x", "specialization": "gp"},
			status: http.StatusBadRequest,
			field:  "password",
		},
		{
			name:   "lowercase role",
			method: http.MethodPost,
			path:   "/api/v1/patients/" + patientID + "/roles",
			body:   map[string]interface{}{"role": "admin"},
			status: http.StatusBadRequest,
			field:  "role",
		},
		{
			name:   "malformed id",
			method: http.MethodGet,
			path:   "/api/v1/patients/not-a-uuid",
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown doctor",
			method: http.MethodGet,
			path:   "/api/v1/doctors/7f1d3a52-4d4c-4d9e-9f3a-1b2c3d4e5f60",
			status: http.StatusNotFound,
		},
		{
			name:   "duplicate email across roles",
			method: http.MethodPost,
			path:   "/api/v1/doctors",
			body:   map[string]interface{}{"first_name": "A", "last_name": "B", "email": "adler@care.com", "password": "password123", "specialization": "gp"},
			status: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.status)
			require.NotNil(t, resp.Error)
			assert.False(t, resp.Success)
			if tt.field != "" {
				require.NotEmpty(t, resp.Error.Fields)
				assert.Equal(t, tt.field, resp.Error.Fields[0].Field)
			}
		})
	}
}

func TestContactAndLookup(t *testing.T) {
	s := newServer(t, router.RouterConfig{}, nil)
	s.createDoctor(t, "house@care.com")

	resp := s.do(t, http.MethodPost, "/api/v1/contact", map[string]interface{}{
		"email":   "visitor@web.com",
		"message": "Hello there & welcome",
	})
	assert.Equal(t, http.StatusAccepted, resp.status)

	resp = s.do(t, http.MethodGet, "/api/v1/people?email=house@care.com", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "doctor", resp.GetString(t, "kind"))

	resp = s.do(t, http.MethodGet, "/api/v1/people?email=ghost@care.com", nil)
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = s.do(t, http.MethodGet, "/api/v1/people", nil)
	assert.Equal(t, http.StatusBadRequest, resp.status)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t, router.RouterConfig{}, nil)

	resp := s.do(t, http.MethodGet, "/api/v1/health/live", nil)
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "1.0", resp.header.Get("X-API-Version"))
	assert.NotEmpty(t, resp.header.Get(middleware.HeaderXRequestID))

	resp = s.do(t, http.MethodGet, "/api/v1/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.status)

	resp = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.status)

	down := newServer(t, router.RouterConfig{}, map[string]health.Pinger{"broker": failingPinger{}})
	resp = down.do(t, http.MethodGet, "/api/v1/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.status)
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, router.RouterConfig{
		RateLimitEnabled: true,
		RateLimit:        rate.Limit(0.001),
		RateBurst:        1,
	}, nil)

	first := s.do(t, http.MethodGet, "/api/v1/health/live", nil)
	second := s.do(t, http.MethodGet, "/api/v1/health/live", nil)

	assert.Equal(t, http.StatusOK, first.status)
	assert.Equal(t, http.StatusTooManyRequests, second.status)
}

func TestRequestIDIsReusedOnlyWhenValid(t *testing.T) {
	s := newServer(t, router.RouterConfig{}, nil)

	const id = "0b7c1f0e-9f7e-4c55-8d3b-2f1e0c9a8b7d"
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	req.Header.Set(middleware.HeaderXRequestID, id)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get(middleware.HeaderXRequestID))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	req.Header.Set(middleware.HeaderXRequestID, "<script>")
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.NotEqual(t, "<script>", w.Header().Get(middleware.HeaderXRequestID))
}
