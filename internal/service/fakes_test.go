package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/evtrip/internal/api/ocm"
	"github.com/langchou/evtrip/internal/api/osrm"
	"github.com/langchou/evtrip/internal/energy"
	"github.com/langchou/evtrip/internal/models"
	"github.com/langchou/evtrip/internal/repository"
)

type fakeRoutes struct {
	route *osrm.Route
	err   error
	calls int
}

func (f *fakeRoutes) GetRoute(_ context.Context, start, end models.LatLng) (*osrm.Route, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.route != nil {
		return f.route, nil
	}
	return &osrm.Route{
		DistanceMeters:  70000,
		DurationSeconds: 3600,
		Geometry: models.Geometry{
			{start.Lng, start.Lat},
			{(start.Lng + end.Lng) / 2, (start.Lat + end.Lat) / 2},
			{end.Lng, end.Lat},
		},
	}, nil
}

type fakeProfiles map[string]*models.VehicleProfile

func (f fakeProfiles) GetProfile(_ context.Context, name string) (*models.VehicleProfile, error) {
	return f[name], nil
}

func testProfiles() fakeProfiles {
	buckets := map[int]float64{}
	for s := energy.MinSpeedBucket; s <= energy.MaxSpeedBucket; s += 10 {
		buckets[s] = 5
	}
	return fakeProfiles{
		"Tesla Model 3": {
			Name: "Tesla Model 3", CoefA: 100, CoefB: 1, CoefC: 0.01,
			CostPerKwh: 0.15, BatteryCapacityKwh: 60, SpeedBuckets: buckets,
		},
	}
}

type fakeSearcher struct {
	stations   []models.Station
	calls      int
	lastRadius float64
	during     func() // 在查询过程中执行，用于模拟请求被取消
}

func (f *fakeSearcher) FindAlongRoute(_ context.Context, _ models.Geometry, radiusKm float64) []models.Station {
	f.calls++
	f.lastRadius = radiusKm
	if f.during != nil {
		f.during()
	}
	return f.stations
}

type fakeTripStore struct {
	mu         sync.Mutex
	trips      []*models.Trip
	createErr  error
	lastFilter models.TripFilter
	clock      time.Time
}

func (f *fakeTripStore) Create(_ context.Context, trip *models.Trip) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.clock.IsZero() {
		f.clock = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	f.clock = f.clock.Add(time.Minute)
	trip.ID = "trip-" + f.clock.Format("150405")
	trip.CreatedAt = f.clock
	stored := *trip
	f.trips = append(f.trips, &stored)
	return trip.ID, nil
}

func (f *fakeTripStore) GetByID(_ context.Context, id string) (*models.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.trips {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTripStore) ListByUserID(ctx context.Context, userID string) ([]*models.Trip, error) {
	return f.Search(ctx, models.TripFilter{UserID: &userID})
}

// Search 在内存中执行 repository.TripPredicates 生成的条件，与 SQL 实现语义一致
func (f *fakeTripStore) Search(_ context.Context, filter models.TripFilter) ([]*models.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	preds := repository.TripPredicates(filter)
	out := make([]*models.Trip, 0)
	for _, t := range f.trips {
		if matchesAll(t, preds) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matchesAll(t *models.Trip, preds []repository.Predicate) bool {
	for _, p := range preds {
		if !matches(t, p) {
			return false
		}
	}
	return true
}

// matches 对单列求值；NULL 列不满足任何比较
func matches(t *models.Trip, p repository.Predicate) bool {
	switch p.Column {
	case "user_id":
		return t.UserID == p.Value.(string)
	case "car_type":
		for _, ct := range p.Value.([]string) {
			if t.CarType == ct {
				return true
			}
		}
		return false
	case "created_at":
		bound := p.Value.(time.Time)
		if p.Op == repository.OpGte {
			return !t.CreatedAt.Before(bound)
		}
		return !t.CreatedAt.After(bound)
	}

	var v *float64
	switch p.Column {
	case "duration_seconds":
		v = &t.DurationSeconds
	case "distance_meters":
		v = &t.DistanceMeters
	case "avg_speed_kph":
		v = &t.AvgSpeedKph
	case "energy_used_kwh":
		v = t.EnergyUsedKwh
	case "cost":
		v = t.Cost
	default:
		panic("unexpected filter column " + p.Column)
	}
	if v == nil {
		return false
	}
	bound := p.Value.(float64)
	switch p.Op {
	case repository.OpGte:
		return *v >= bound
	case repository.OpLte:
		return *v <= bound
	}
	return *v == bound
}

func (f *fakeTripStore) GetStats(_ context.Context, userID string) (*models.TripStats, error) {
	stats := &models.TripStats{}
	for _, t := range f.trips {
		if t.UserID == userID {
			stats.TotalTrips++
		}
	}
	return stats, nil
}

type fakeStationStore struct {
	rows    map[string][]models.TripStation
	saveErr error
	waitCtx bool // 阻塞到 ctx 结束后返回 ctx.Err()
}

func newFakeStationStore() *fakeStationStore {
	return &fakeStationStore{rows: make(map[string][]models.TripStation)}
}

func (f *fakeStationStore) SaveStations(ctx context.Context, tripID string, stations []models.Station) (int, error) {
	if f.waitCtx {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	rows, _ := repository.BuildStationRows(tripID, stations, time.Now())
	f.rows[tripID] = append(f.rows[tripID], rows...)
	return len(rows), nil
}

func (f *fakeStationStore) ListByTripID(_ context.Context, tripID string) ([]*models.TripStation, error) {
	out := make([]*models.TripStation, 0)
	for i := range f.rows[tripID] {
		out = append(out, &f.rows[tripID][i])
	}
	return out, nil
}

func (f *fakeStationStore) count() int {
	n := 0
	for _, r := range f.rows {
		n += len(r)
	}
	return n
}

type sentMessage struct {
	userID  string
	msgType string
}

type fakeNotifier struct {
	sent []sentMessage
}

func (f *fakeNotifier) SendToUser(userID, msgType string, _ interface{}) {
	f.sent = append(f.sent, sentMessage{userID: userID, msgType: msgType})
}

// fakeDirectory 按坐标返回预设结果
type fakeDirectory struct {
	byLat map[float64][]ocm.POI
	fail  map[float64]bool
	calls int
}

func (f *fakeDirectory) NearbyPOIs(_ context.Context, lat, _ float64, _ float64, _ int) ([]ocm.POI, error) {
	f.calls++
	if f.fail[lat] {
		return nil, errors.New("ocm api returned status 500")
	}
	return f.byLat[lat], nil
}

type tripFixture struct {
	svc      *TripService
	routes   *fakeRoutes
	searcher *fakeSearcher
	trips    *fakeTripStore
	annots   *fakeStationStore
	notifier *fakeNotifier
}

func newTripFixture() *tripFixture {
	fx := &tripFixture{
		routes:   &fakeRoutes{},
		searcher: &fakeSearcher{},
		trips:    &fakeTripStore{},
		annots:   newFakeStationStore(),
		notifier: &fakeNotifier{},
	}
	fx.svc = NewTripService(
		zap.NewNop(),
		fx.routes,
		energy.NewModel(testProfiles()),
		fx.searcher,
		fx.trips,
		fx.annots,
		fx.notifier,
		5,
	)
	return fx
}

func strPtr(s string) *string { return &s }

func f64Ptr(v float64) *float64 { return &v }
