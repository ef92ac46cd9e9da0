package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/langchou/evtrip/internal/api/osrm"
	"github.com/langchou/evtrip/internal/energy"
	"github.com/langchou/evtrip/internal/models"
	"github.com/langchou/evtrip/internal/repository"
	"github.com/langchou/evtrip/internal/state"
)

// MaxChargingRadiusKm 沿途搜索半径上限
const MaxChargingRadiusKm = 50

// RouteProvider 路线服务
type RouteProvider interface {
	GetRoute(ctx context.Context, start, end models.LatLng) (*osrm.Route, error)
}

// StationSearcher 沿途充电站搜索
type StationSearcher interface {
	FindAlongRoute(ctx context.Context, geom models.Geometry, radiusKm float64) []models.Station
}

// TripStore 行程存储
type TripStore interface {
	Create(ctx context.Context, trip *models.Trip) (string, error)
	GetByID(ctx context.Context, id string) (*models.Trip, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.Trip, error)
	Search(ctx context.Context, filter models.TripFilter) ([]*models.Trip, error)
	GetStats(ctx context.Context, userID string) (*models.TripStats, error)
}

// StationStore 行程充电站存储
type StationStore interface {
	SaveStations(ctx context.Context, tripID string, stations []models.Station) (int, error)
	ListByTripID(ctx context.Context, tripID string) ([]*models.TripStation, error)
}

// Notifier 推送行程事件
type Notifier interface {
	SendToUser(userID, msgType string, data interface{})
}

// CreateTripRequest 创建行程参数
type CreateTripRequest struct {
	UserID            string
	StartLat          float64
	StartLng          float64
	EndLat            float64
	EndLng            float64
	CarType           string
	BatteryLevelStart float64
	ChargingRadiusKm  *float64
}

// CreateTripResult 创建结果
type CreateTripResult struct {
	Trip          *models.Trip
	Route         *osrm.Route
	Energy        *energy.Estimate
	Stations      []models.Station
	StationsSaved int
	Warnings      []string
	History       []state.Transition
}

// TripDetail 行程及其充电站记录
type TripDetail struct {
	Trip     *models.Trip          `json:"trip"`
	Stations []*models.TripStation `json:"stations"`
}

// TripService 行程编排服务
type TripService struct {
	logger    *zap.Logger
	routes    RouteProvider
	energy    *energy.Model
	stations  StationSearcher
	trips     TripStore
	annots    StationStore
	notifier  Notifier
	pipelines *state.Manager
	radiusKm  float64
}

// NewTripService 创建行程服务；notifier 可以为 nil
func NewTripService(
	logger *zap.Logger,
	routes RouteProvider,
	energyModel *energy.Model,
	stations StationSearcher,
	trips TripStore,
	annots StationStore,
	notifier Notifier,
	defaultRadiusKm float64,
) *TripService {
	if defaultRadiusKm <= 0 {
		defaultRadiusKm = 5
	}
	svc := &TripService{
		logger:   logger,
		routes:   routes,
		energy:   energyModel,
		stations: stations,
		trips:    trips,
		annots:   annots,
		notifier: notifier,
		radiusKm: defaultRadiusKm,
	}
	svc.pipelines = state.NewManager(svc.onStageChange)
	return svc
}

func (s *TripService) onStageChange(id, from, to string) {
	s.logger.Debug("Trip pipeline transition",
		zap.String("pipeline_id", id),
		zap.String("from", from),
		zap.String("to", to))
}

// ActivePipelines 进行中的创建流程及其状态
func (s *TripService) ActivePipelines() map[string]string {
	return s.pipelines.GetAllStates()
}

// Validate 校验创建参数（不访问任何外部服务）
func (req *CreateTripRequest) Validate() error {
	if req.UserID == "" {
		return invalid(ReasonMissingField, "user id is required")
	}
	if req.CarType == "" {
		return invalid(ReasonMissingField, "car_type is required")
	}
	if math.IsNaN(req.BatteryLevelStart) || req.BatteryLevelStart < 0 || req.BatteryLevelStart > 100 {
		return invalid(ReasonInvalidBattery, "battery_level_start must be between 0 and 100")
	}
	start := models.LatLng{Lat: req.StartLat, Lng: req.StartLng}
	end := models.LatLng{Lat: req.EndLat, Lng: req.EndLng}
	if !start.Valid() || !end.Valid() {
		return invalid(ReasonInvalidCoord, "coordinates must be valid latitude/longitude pairs")
	}
	if r := req.ChargingRadiusKm; r != nil {
		if math.IsNaN(*r) || *r <= 0 || *r > MaxChargingRadiusKm {
			return invalid(ReasonInvalidRadius, fmt.Sprintf("charging_radius_km must be in (0, %d]", MaxChargingRadiusKm))
		}
	}
	return nil
}

// CreateTrip 规划路线、估算能耗、搜索沿途充电站并保存行程
// 行程行写入成功之前不会持久化任何数据
func (s *TripService) CreateTrip(ctx context.Context, req CreateTripRequest) (*CreateTripResult, error) {
	p := s.pipelines.Start(uuid.NewString())
	defer s.pipelines.Finish(p.ID())

	result := &CreateTripResult{}
	fail := func(err error) (*CreateTripResult, error) {
		p.Fail(ctx)
		s.logger.Warn("Trip creation failed",
			zap.String("user_id", req.UserID),
			zap.String("stage", p.FailedFrom()),
			zap.Duration("elapsed", p.Elapsed()),
			zap.Error(err))
		result.History = p.History()
		return result, err
	}
	advance := func(event string, since time.Time) error {
		if err := p.Trigger(ctx, event); err != nil {
			return err
		}
		s.logger.Debug("Trip pipeline stage finished",
			zap.String("pipeline_id", p.ID()),
			zap.String("state", p.Current()),
			zap.Duration("elapsed", time.Since(since)))
		return nil
	}

	// validating
	stageStart := time.Now()
	if err := req.Validate(); err != nil {
		return fail(err)
	}
	profile, err := s.energy.Profile(ctx, req.CarType)
	if err != nil {
		if errors.Is(err, ErrUnknownVehicleProfile) {
			return fail(err)
		}
		return fail(fmt.Errorf("%w: %v", ErrStorage, err))
	}
	if err := advance(state.EventValidated, stageStart); err != nil {
		return fail(err)
	}

	// routing
	stageStart = time.Now()
	start := models.LatLng{Lat: req.StartLat, Lng: req.StartLng}
	end := models.LatLng{Lat: req.EndLat, Lng: req.EndLng}
	route, err := s.routes.GetRoute(ctx, start, end)
	if err != nil {
		if !errors.Is(err, ErrRouteUnavailable) {
			err = fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
		}
		return fail(err)
	}
	result.Route = route
	if err := advance(state.EventRouteReceived, stageStart); err != nil {
		return fail(err)
	}

	// energy
	stageStart = time.Now()
	avgSpeed := AverageSpeedKph(route.DistanceMeters, route.DurationSeconds)
	est := energy.EstimateWithProfile(profile, avgSpeed, route.DistanceMeters, req.BatteryLevelStart)
	result.Energy = &est
	if err := advance(state.EventEnergyEstimate, stageStart); err != nil {
		return fail(err)
	}

	// stations
	stageStart = time.Now()
	radius := s.radiusKm
	if req.ChargingRadiusKm != nil {
		radius = *req.ChargingRadiusKm
	}
	result.Stations = s.stations.FindAlongRoute(ctx, route.Geometry, radius)
	if err := advance(state.EventStationsFound, stageStart); err != nil {
		return fail(err)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// persist
	stageStart = time.Now()
	trip := &models.Trip{
		UserID:                 req.UserID,
		CarType:                req.CarType,
		BatteryLevelStart:      req.BatteryLevelStart,
		StartLat:               req.StartLat,
		StartLng:               req.StartLng,
		EndLat:                 req.EndLat,
		EndLng:                 req.EndLng,
		DistanceMeters:         route.DistanceMeters,
		DurationSeconds:        route.DurationSeconds,
		AvgSpeedKph:            avgSpeed,
		RouteGeometry:          route.Geometry,
		EnergyUsedKwh:          &est.EnergyKwh,
		Cost:                   &est.CostDollars,
		StartBatteryKwh:        &est.StartBatteryKwh,
		BatteryDurationSeconds: est.BatteryDurationSeconds,
	}
	if _, err := s.trips.Create(ctx, trip); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrStorage, err))
	}
	result.Trip = trip

	saved, err := s.annots.SaveStations(ctx, trip.ID, result.Stations)
	if err != nil {
		s.logger.Warn("Trip saved without station annotations",
			zap.String("trip_id", trip.ID),
			zap.Int("stations", len(result.Stations)),
			zap.Error(fmt.Errorf("%w: %v", ErrPartialAnnotation, err)))
		result.Warnings = append(result.Warnings, ErrPartialAnnotation.Error())
	}
	result.StationsSaved = saved
	// 行程已写入，状态记录出错只记日志
	for _, ev := range []string{state.EventPersisted, state.EventComplete} {
		if err := advance(ev, stageStart); err != nil {
			s.logger.Warn("Trip pipeline bookkeeping failed", zap.String("trip_id", trip.ID), zap.Error(err))
			break
		}
	}
	if !p.IsTerminal() {
		s.logger.Warn("Trip pipeline left unfinished",
			zap.String("trip_id", trip.ID),
			zap.String("state", p.Current()))
	}
	result.History = p.History()

	s.logger.Info("Trip created",
		zap.String("trip_id", trip.ID),
		zap.String("user_id", trip.UserID),
		zap.String("car_type", trip.CarType),
		zap.Float64("distance_m", trip.DistanceMeters),
		zap.Int("stations", len(result.Stations)),
		zap.Int("station_rows", saved),
		zap.Duration("elapsed", p.Elapsed()))

	if s.notifier != nil {
		s.notifier.SendToUser(trip.UserID, "trip_created", trip)
	}

	return result, nil
}

// AverageSpeedKph 由距离（米）和时长（秒）计算平均速度
func AverageSpeedKph(distanceM, durationS float64) float64 {
	if durationS <= 0 {
		return 0
	}
	return distanceM / durationS * 3.6
}

// ListTrips 获取用户的所有行程，最新的在前
func (s *TripService) ListTrips(ctx context.Context, userID string) ([]*models.Trip, error) {
	trips, err := s.trips.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return trips, nil
}

// SearchTrips 按条件搜索当前用户的行程
func (s *TripService) SearchTrips(ctx context.Context, userID string, filter models.TripFilter) ([]*models.Trip, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	filter.UserID = &userID

	trips, err := s.trips.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return trips, nil
}

func validateFilter(f models.TripFilter) error {
	ranges := []struct {
		name     string
		min, max *float64
	}{
		{"duration", f.MinDuration, f.MaxDuration},
		{"distance", f.MinDistance, f.MaxDistance},
		{"speed", f.MinSpeed, f.MaxSpeed},
		{"energy", f.MinEnergy, f.MaxEnergy},
		{"cost", f.MinCost, f.MaxCost},
	}
	for _, r := range ranges {
		if r.min != nil && r.max != nil && *r.min > *r.max {
			return invalid(ReasonInvalidRange, fmt.Sprintf("min_%s must not exceed max_%s", r.name, r.name))
		}
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return invalid(ReasonInvalidRange, "start_date must not be after end_date")
	}
	return nil
}

// GetTrip 获取行程详情；行程不属于该用户时视为不存在
func (s *TripService) GetTrip(ctx context.Context, userID, tripID string) (*TripDetail, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if trip.UserID != userID {
		return nil, ErrTripNotFound
	}

	stations, err := s.annots.ListByTripID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &TripDetail{Trip: trip, Stations: stations}, nil
}

// Stats 用户行程统计
func (s *TripService) Stats(ctx context.Context, userID string) (*models.TripStats, error) {
	stats, err := s.trips.GetStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return stats, nil
}
