package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/evtrip/internal/models"
)

// VehicleRepository 车型参考数据仓库
// 参考数据只读，查询结果缓存在内存中
type VehicleRepository struct {
	db *DB

	cache   map[string]*models.VehicleProfile
	cacheMu sync.RWMutex
}

// NewVehicleRepository 创建车型仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{
		db:    db,
		cache: make(map[string]*models.VehicleProfile),
	}
}

// GetProfile 获取车型参数及速度档位表；车型不存在时返回 (nil, nil)
func (r *VehicleRepository) GetProfile(ctx context.Context, name string) (*models.VehicleProfile, error) {
	r.cacheMu.RLock()
	if p, ok := r.cache[name]; ok {
		r.cacheMu.RUnlock()
		return p, nil
	}
	r.cacheMu.RUnlock()

	profile := &models.VehicleProfile{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT name, coef_a, coef_b, coef_c, cost_per_kwh, battery_capacity_kwh
		FROM vehicle_profiles WHERE name = $1
	`, name).Scan(
		&profile.Name,
		&profile.CoefA,
		&profile.CoefB,
		&profile.CoefC,
		&profile.CostPerKwh,
		&profile.BatteryCapacityKwh,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get vehicle profile: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT speed_kph, full_charge_hours FROM vehicle_battery_speed WHERE vehicle_name = $1
	`, name)
	if err != nil {
		return nil, fmt.Errorf("list battery speed table: %w", err)
	}
	defer rows.Close()

	profile.SpeedBuckets = make(map[int]float64)
	for rows.Next() {
		var speed int
		var hours float64
		if err := rows.Scan(&speed, &hours); err != nil {
			return nil, fmt.Errorf("scan battery speed row: %w", err)
		}
		profile.SpeedBuckets[speed] = hours
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate battery speed table: %w", err)
	}

	r.cacheMu.Lock()
	r.cache[name] = profile
	r.cacheMu.Unlock()

	return profile, nil
}

// ListNames 获取所有车型名称
func (r *VehicleRepository) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT name FROM vehicle_profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list vehicle profiles: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan vehicle name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
