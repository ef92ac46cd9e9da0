package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/evtrip/internal/energy"
	"github.com/langchou/evtrip/internal/models"
	"github.com/langchou/evtrip/internal/service"
	"github.com/langchou/evtrip/pkg/ws"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockTrips struct {
	createReq  service.CreateTripRequest
	createErr  error
	searchUser string
	filter     models.TripFilter
	trips      []*models.Trip
	detailErr  error
}

func (m *mockTrips) CreateTrip(_ context.Context, req service.CreateTripRequest) (*service.CreateTripResult, error) {
	m.createReq = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	trip := &models.Trip{
		ID: "trip-1", UserID: req.UserID, CarType: req.CarType,
		StartLat: req.StartLat, StartLng: req.StartLng, EndLat: req.EndLat, EndLng: req.EndLng,
		DistanceMeters: 1000, DurationSeconds: 100, AvgSpeedKph: 36,
		RouteGeometry: models.Geometry{{req.StartLng, req.StartLat}, {req.EndLng, req.EndLat}},
	}
	return &service.CreateTripResult{
		Trip:     trip,
		Energy:   &energy.Estimate{EnergyKwh: 1.5, CostDollars: 0.2, StartBatteryKwh: 40},
		Stations: []models.Station{{ID: "S1", Name: "Depot"}},
	}, nil
}

func (m *mockTrips) ListTrips(_ context.Context, userID string) ([]*models.Trip, error) {
	return m.trips, nil
}

func (m *mockTrips) SearchTrips(_ context.Context, userID string, filter models.TripFilter) ([]*models.Trip, error) {
	m.searchUser = userID
	m.filter = filter
	if filter.MinCost != nil && filter.MaxCost != nil && *filter.MinCost > *filter.MaxCost {
		return nil, &service.ValidationError{Reason: service.ReasonInvalidRange, Message: "bad range"}
	}
	return m.trips, nil
}

func (m *mockTrips) GetTrip(_ context.Context, userID, tripID string) (*service.TripDetail, error) {
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	return &service.TripDetail{Trip: &models.Trip{ID: tripID, UserID: userID}}, nil
}

func (m *mockTrips) Stats(_ context.Context, userID string) (*models.TripStats, error) {
	return &models.TripStats{TotalTrips: 2}, nil
}

func (m *mockTrips) ActivePipelines() map[string]string {
	return map[string]string{"p-1": "route_received"}
}

type mockAuth struct{}

func (mockAuth) ValidateToken(token string) (*service.AuthClaims, error) {
	if token != "valid" {
		return nil, service.ErrInvalidCredentials
	}
	return &service.AuthClaims{UserID: "user-1", Username: "alice"}, nil
}

func (mockAuth) Register(_ context.Context, username, email, password string) (*models.User, error) {
	if username == "taken" {
		return nil, service.ErrUsernameTaken
	}
	return &models.User{ID: "user-2", Username: username, Email: email, PasswordHash: "hash"}, nil
}

func (mockAuth) Login(_ context.Context, username, password string) (*service.TokenPair, error) {
	if password != "right" {
		return nil, service.ErrInvalidCredentials
	}
	return &service.TokenPair{AccessToken: "valid", TokenType: "bearer", ExpiresIn: 3600}, nil
}

type mockStations struct {
	err        error
	lastRadius float64
	lastQuery  service.StationQuery
}

func (m *mockStations) Search(_ context.Context, lat, lng, radiusKm float64, q service.StationQuery) ([]models.Station, error) {
	m.lastRadius = radiusKm
	m.lastQuery = q
	if m.err != nil {
		return nil, m.err
	}
	return []models.Station{{ID: "S1", Operator: q.Operator, Latitude: lat, Longitude: lng}}, nil
}

func (m *mockStations) FindNear(_ context.Context, lat, lng, radiusKm float64) ([]models.Station, error) {
	m.lastRadius = radiusKm
	if m.err != nil {
		return nil, m.err
	}
	return []models.Station{{ID: "N1", Latitude: lat, Longitude: lng}}, nil
}

func (m *mockStations) DefaultRadiusKm() float64 { return 5 }

type mockPinger struct{ err error }

func (m mockPinger) Ping(context.Context) error { return m.err }

type testEnv struct {
	router   *gin.Engine
	trips    *mockTrips
	stations *mockStations
}

func newTestEnv(pingErr error) *testEnv {
	env := &testEnv{trips: &mockTrips{}, stations: &mockStations{}}
	h := NewHandler(zap.NewNop(), env.trips, mockAuth{}, env.stations, mockPinger{err: pingErr}, ws.NewHub(zap.NewNop()))
	env.router = gin.New()
	h.RegisterRoutes(env.router)
	return env
}

func (e *testEnv) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer valid")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

const createBody = `{"start_lat":40.0,"start_lng":"-73.0","end_lat":40.5,"end_lng":-73.5,"car_type":"Tesla Model 3","battery_level_start":80}`

func TestCreateTrip_Created(t *testing.T) {
	env := newTestEnv(nil)

	w := env.do(http.MethodPost, "/api/trips/create", createBody, true)
	require.Equal(t, http.StatusCreated, w.Code)

	body := decode(t, w)
	assert.Equal(t, "trip-1", body["trip_id"])
	assert.Contains(t, body, "route")
	assert.Contains(t, body, "energy")
	assert.Len(t, body["stations"], 1)

	assert.Equal(t, "user-1", env.trips.createReq.UserID)
	assert.Equal(t, -73.0, env.trips.createReq.StartLng)
	assert.Nil(t, env.trips.createReq.ChargingRadiusKm)
}

func TestCreateTrip_RequiresAuth(t *testing.T) {
	env := newTestEnv(nil)

	w := env.do(http.MethodPost, "/api/trips/create", createBody, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateTrip_BadInput(t *testing.T) {
	env := newTestEnv(nil)

	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"malformed json", `{`, "invalid_request"},
		{"non numeric coordinate", `{"start_lat":"north","start_lng":1,"end_lat":1,"end_lng":1,"car_type":"x","battery_level_start":1}`, "invalid_request"},
		{"missing battery", `{"start_lat":1,"start_lng":1,"end_lat":1,"end_lng":1,"car_type":"x"}`, service.ReasonMissingField},
		{"missing car", `{"start_lat":1,"start_lng":1,"end_lat":1,"end_lng":1,"battery_level_start":1}`, service.ReasonMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/trips/create", tt.body, true)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.reason, decode(t, w)["reason"])
		})
	}
}

func TestCreateTrip_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		reason interface{}
	}{
		{"unknown vehicle", fmtWrap(service.ErrUnknownVehicleProfile), http.StatusBadRequest, service.ReasonUnknownVehicle},
		{"validation", &service.ValidationError{Reason: service.ReasonInvalidBattery, Message: "bad"}, http.StatusBadRequest, service.ReasonInvalidBattery},
		{"route unavailable", fmtWrap(service.ErrRouteUnavailable), http.StatusInternalServerError, nil},
		{"storage", fmtWrap(service.ErrStorage), http.StatusInternalServerError, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(nil)
			env.trips.createErr = tt.err

			w := env.do(http.MethodPost, "/api/trips/create", createBody, true)
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.reason, body["reason"])
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "Failed to create trip", body["error"])
				assert.NotContains(t, w.Body.String(), "secret detail")
			}
		})
	}
}

func fmtWrap(err error) error {
	return errors.Join(err, errors.New("secret detail"))
}

func TestListTrips(t *testing.T) {
	env := newTestEnv(nil)
	env.trips.trips = []*models.Trip{{ID: "a"}, {ID: "b"}}

	w := env.do(http.MethodGet, "/api/trips/list", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["trips"], 2)
}

func TestSearchTrips(t *testing.T) {
	env := newTestEnv(nil)
	env.trips.trips = []*models.Trip{{ID: "a"}}

	w := env.do(http.MethodPost, "/api/trips/search",
		`{"min_cost":10,"max_cost":15,"car_types":["Tesla Model 3"],"start_date":"2024-01-01T00:00:00Z"}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, "user-1", env.trips.searchUser)
	require.NotNil(t, env.trips.filter.MinCost)
	assert.Equal(t, 10.0, *env.trips.filter.MinCost)
	assert.Equal(t, []string{"Tesla Model 3"}, env.trips.filter.CarTypes)
	require.NotNil(t, env.trips.filter.StartDate)
}

func TestSearchTrips_EmptyBodyAndInvalidRange(t *testing.T) {
	env := newTestEnv(nil)

	w := env.do(http.MethodPost, "/api/trips/search", "", true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/trips/search", `{"min_cost":20,"max_cost":10}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, service.ReasonInvalidRange, decode(t, w)["reason"])
}

func TestGetTrip(t *testing.T) {
	env := newTestEnv(nil)

	w := env.do(http.MethodGet, "/api/trips/trip-9", "", true)
	assert.Equal(t, http.StatusOK, w.Code)

	env.trips.detailErr = service.ErrTripNotFound
	w = env.do(http.MethodGet, "/api/trips/trip-9", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTripStats(t *testing.T) {
	env := newTestEnv(nil)

	w := env.do(http.MethodGet, "/api/trips/stats", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["data"].(map[string]interface{})["total_trips"])
}

func TestNearbyStations(t *testing.T) {
	env := newTestEnv(nil)

	w := env.do(http.MethodGet, "/api/stations/nearby?lat=40.1&lng=-73.2", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, 5.0, env.stations.lastRadius)

	w = env.do(http.MethodGet, "/api/stations/nearby?lat=40.1&lng=-73.2&radius=12", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 12.0, env.stations.lastRadius)

	w = env.do(http.MethodGet, "/api/stations/nearby?lat=abc&lng=-73.2", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/stations/nearby?lat=1&lng=1&radius=-3", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.stations.err = errors.New("upstream 500")
	w = env.do(http.MethodGet, "/api/stations/nearby?lat=1&lng=1", "", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSearchStations(t *testing.T) {
	env := newTestEnv(nil)

	w := env.do(http.MethodGet, "/api/stations/search?lat=40.1&lng=-73.2&operator=Tesla&connection_type=CCS&min_power_kw=50&available_only=true", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.StationQuery{
		Operator:       "Tesla",
		ConnectionType: "CCS",
		MinPowerKW:     50,
		AvailableOnly:  true,
	}, env.stations.lastQuery)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])
	params := body["search_params"].(map[string]interface{})
	assert.Equal(t, true, params["available_only"])
	assert.Equal(t, 5.0, env.stations.lastRadius)

	// charger_type 作为 connection_type 的别名
	w = env.do(http.MethodGet, "/api/stations/search?lat=40.1&lng=-73.2&charger_type=CHAdeMO&radius=8", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CHAdeMO", env.stations.lastQuery.ConnectionType)
	assert.False(t, env.stations.lastQuery.AvailableOnly)
	assert.Equal(t, 8.0, env.stations.lastRadius)

	for _, path := range []string{
		"/api/stations/search?lat=40.1",
		"/api/stations/search?lat=40.1&lng=-73.2&available_only=maybe",
		"/api/stations/search?lat=40.1&lng=-73.2&min_power_kw=-1",
		"/api/stations/search?lat=40.1&lng=-73.2&radius=80",
	} {
		w = env.do(http.MethodGet, path, "", true)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	w = env.do(http.MethodGet, "/api/stations/search?lat=40.1&lng=-73.2", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	env.stations.err = errors.New("upstream 500")
	w = env.do(http.MethodGet, "/api/stations/search?lat=1&lng=1", "", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "upstream")
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv(nil)

	w := env.do(http.MethodPost, "/api/auth/register", `{"username":"bob","email":"b@example.com","password":"secret1"}`, false)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "hash")

	w = env.do(http.MethodPost, "/api/auth/register", `{"username":"taken","email":"t@example.com","password":"secret1"}`, false)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/api/auth/login", `{"username":"bob","password":"right"}`, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "valid", decode(t, w)["access_token"])

	w = env.do(http.MethodPost, "/api/auth/login", `{"username":"bob","password":"wrong"}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthCheck(t *testing.T) {
	w := newTestEnv(nil).do(http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["ws_clients"])
	assert.Equal(t, map[string]interface{}{"p-1": "route_received"}, body["trips_in_flight"])

	w = newTestEnv(errors.New("db down")).do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
