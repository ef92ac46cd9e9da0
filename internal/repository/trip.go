package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/langchou/evtrip/internal/models"
)

// TripRepository 行程数据仓库
type TripRepository struct {
	db *DB
}

// NewTripRepository 创建行程仓库
func NewTripRepository(db *DB) *TripRepository {
	return &TripRepository{db: db}
}

const tripSelectColumns = `
	trip_id, user_id, car_type, battery_level_start, start_lat, start_lng, end_lat, end_lng,
	created_at, distance_meters, duration_seconds, avg_speed_kph, route_geometry,
	energy_used_kwh, cost, start_battery_kwh, battery_duration_seconds
`

// rowScanner pgx.Row 与 pgx.Rows 的共同部分
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*models.Trip, error) {
	trip := &models.Trip{}
	var geometry []byte
	err := row.Scan(
		&trip.ID,
		&trip.UserID,
		&trip.CarType,
		&trip.BatteryLevelStart,
		&trip.StartLat,
		&trip.StartLng,
		&trip.EndLat,
		&trip.EndLng,
		&trip.CreatedAt,
		&trip.DistanceMeters,
		&trip.DurationSeconds,
		&trip.AvgSpeedKph,
		&geometry,
		&trip.EnergyUsedKwh,
		&trip.Cost,
		&trip.StartBatteryKwh,
		&trip.BatteryDurationSeconds,
	)
	if err != nil {
		return nil, err
	}
	if len(geometry) > 0 {
		if err := json.Unmarshal(geometry, &trip.RouteGeometry); err != nil {
			return nil, fmt.Errorf("decode route geometry: %w", err)
		}
	}
	return trip, nil
}

// Create 保存行程，生成新的 trip_id 并写回 trip.ID
func (r *TripRepository) Create(ctx context.Context, trip *models.Trip) (string, error) {
	geometry, err := json.Marshal(trip.RouteGeometry)
	if err != nil {
		return "", fmt.Errorf("encode route geometry: %w", err)
	}

	id := uuid.NewString()
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO trips (
			trip_id, user_id, car_type, battery_level_start, start_lat, start_lng, end_lat, end_lng,
			created_at, distance_meters, duration_seconds, avg_speed_kph, route_geometry,
			energy_used_kwh, cost, start_battery_kwh, battery_duration_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		id,
		trip.UserID,
		trip.CarType,
		trip.BatteryLevelStart,
		trip.StartLat,
		trip.StartLng,
		trip.EndLat,
		trip.EndLng,
		trip.CreatedAt,
		trip.DistanceMeters,
		trip.DurationSeconds,
		trip.AvgSpeedKph,
		geometry,
		trip.EnergyUsedKwh,
		trip.Cost,
		trip.StartBatteryKwh,
		trip.BatteryDurationSeconds,
	)
	if err != nil {
		return "", fmt.Errorf("insert trip: %w", err)
	}

	trip.ID = id
	return id, nil
}

// GetByID 获取行程
func (r *TripRepository) GetByID(ctx context.Context, id string) (*models.Trip, error) {
	query := `SELECT ` + tripSelectColumns + ` FROM trips WHERE trip_id = $1`
	trip, err := scanTrip(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get trip by id: %w", err)
	}
	return trip, nil
}

// ListByUserID 获取用户的行程，最新的在前
func (r *TripRepository) ListByUserID(ctx context.Context, userID string) ([]*models.Trip, error) {
	return r.Search(ctx, models.TripFilter{UserID: &userID})
}

// Search 多条件搜索行程，条件之间为 AND，最新的在前
func (r *TripRepository) Search(ctx context.Context, filter models.TripFilter) ([]*models.Trip, error) {
	where, args, err := CompileWhere(TripPredicates(filter))
	if err != nil {
		return nil, err
	}

	// trip_id 作为第二排序键，保证相同时间戳下顺序稳定
	query := `SELECT ` + tripSelectColumns + ` FROM trips ` + where + ` ORDER BY created_at DESC, trip_id`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search trips: %w", err)
	}
	defer rows.Close()

	trips := make([]*models.Trip, 0)
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, trip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trips: %w", err)
	}

	return trips, nil
}

// GetStats 获取用户行程统计
func (r *TripRepository) GetStats(ctx context.Context, userID string) (*models.TripStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(cost), 0),
			COALESCE(SUM(energy_used_kwh), 0),
			COALESCE(SUM(distance_meters), 0) / 1000.0,
			COALESCE(AVG(cost), 0),
			COALESCE(AVG(energy_used_kwh), 0)
		FROM trips WHERE user_id = $1
	`
	stats := &models.TripStats{}
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&stats.TotalTrips,
		&stats.TotalCost,
		&stats.TotalEnergyKwh,
		&stats.TotalDistanceKm,
		&stats.AvgCostPerTrip,
		&stats.AvgEnergyPerTrip,
	)
	if err != nil {
		return nil, fmt.Errorf("get trip stats: %w", err)
	}
	return stats, nil
}
