package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Ping 检查连接
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateUsers,
		migrationCreateVehicleProfiles,
		migrationCreateVehicleBatterySpeed,
		migrationCreateTrips,
		migrationCreateTripStations,
		migrationSeedVehicleProfiles,
		migrationSeedVehicleBatterySpeed,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateUsers = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username VARCHAR(50) NOT NULL UNIQUE,
    email VARCHAR(255) NOT NULL,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`

const migrationCreateVehicleProfiles = `
CREATE TABLE IF NOT EXISTS vehicle_profiles (
    name VARCHAR(100) PRIMARY KEY,
    coef_a DOUBLE PRECISION NOT NULL,
    coef_b DOUBLE PRECISION NOT NULL,
    coef_c DOUBLE PRECISION NOT NULL,
    cost_per_kwh DOUBLE PRECISION NOT NULL,
    battery_capacity_kwh DOUBLE PRECISION NOT NULL
);
`

// 速度档位续航表：满电状态下以该速度可行驶的小时数
const migrationCreateVehicleBatterySpeed = `
CREATE TABLE IF NOT EXISTS vehicle_battery_speed (
    vehicle_name VARCHAR(100) NOT NULL REFERENCES vehicle_profiles(name),
    speed_kph INT NOT NULL,
    full_charge_hours DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (vehicle_name, speed_kph)
);
`

const migrationCreateTrips = `
CREATE TABLE IF NOT EXISTS trips (
    trip_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    car_type VARCHAR(100) NOT NULL,
    battery_level_start DOUBLE PRECISION NOT NULL,
    start_lat DOUBLE PRECISION NOT NULL,
    start_lng DOUBLE PRECISION NOT NULL,
    end_lat DOUBLE PRECISION NOT NULL,
    end_lng DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    distance_meters DOUBLE PRECISION NOT NULL,
    duration_seconds DOUBLE PRECISION NOT NULL,
    avg_speed_kph DOUBLE PRECISION NOT NULL,
    route_geometry JSONB NOT NULL,
    energy_used_kwh DOUBLE PRECISION,
    cost DOUBLE PRECISION,
    start_battery_kwh DOUBLE PRECISION,
    battery_duration_seconds DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_trips_user_created ON trips(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_trips_created_at ON trips(created_at);
`

// 每个充电接口一行，id = trip_id_station_id_序号
const migrationCreateTripStations = `
CREATE TABLE IF NOT EXISTS trip_stations (
    id TEXT PRIMARY KEY,
    trip_id TEXT NOT NULL REFERENCES trips(trip_id) ON DELETE CASCADE,
    station_id VARCHAR(64) NOT NULL,
    name VARCHAR(100) NOT NULL,
    latitude DOUBLE PRECISION NOT NULL,
    longitude DOUBLE PRECISION NOT NULL,
    address VARCHAR(200) NOT NULL,
    distance_km DOUBLE PRECISION NOT NULL,
    connection_type VARCHAR(100) NOT NULL,
    power_kw DOUBLE PRECISION NOT NULL,
    status VARCHAR(100) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_trip_stations_trip_id ON trip_stations(trip_id);
`

// 内置常见车型参考数据
const migrationSeedVehicleProfiles = `
INSERT INTO vehicle_profiles (name, coef_a, coef_b, coef_c, cost_per_kwh, battery_capacity_kwh) VALUES
    ('Tesla Model 3', 95.0, 0.55, 0.0105, 0.15, 60.0),
    ('Tesla Model Y', 110.0, 0.60, 0.0120, 0.15, 75.0),
    ('Nissan Leaf', 105.0, 0.70, 0.0125, 0.14, 40.0),
    ('Chevrolet Bolt', 100.0, 0.65, 0.0115, 0.14, 65.0),
    ('Hyundai Kona Electric', 98.0, 0.62, 0.0112, 0.14, 64.0)
ON CONFLICT (name) DO NOTHING;
`

const migrationSeedVehicleBatterySpeed = `
INSERT INTO vehicle_battery_speed (vehicle_name, speed_kph, full_charge_hours)
SELECT p.name, s.speed_kph,
       p.battery_capacity_kwh * 1000.0 / ((p.coef_a + p.coef_b * s.speed_kph + p.coef_c * s.speed_kph * s.speed_kph) * s.speed_kph)
FROM vehicle_profiles p
CROSS JOIN (SELECT generate_series(30, 150, 10) AS speed_kph) s
ON CONFLICT (vehicle_name, speed_kph) DO NOTHING;
`
