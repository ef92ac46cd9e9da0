package repository

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/langchou/evtrip/internal/models"
)

// trip_stations 文本字段最大长度，超出部分截断
const (
	maxStationIDLen      = 64
	maxStationNameLen    = 100
	maxStationAddressLen = 200
	maxConnectionTypeLen = 100
	maxStatusLen         = 100
)

// TripStationRepository 行程充电站仓库
type TripStationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTripStationRepository 创建行程充电站仓库
func NewTripStationRepository(db *DB, logger *zap.Logger) *TripStationRepository {
	return &TripStationRepository{db: db, logger: logger}
}

// SkippedStation 被跳过的充电站及原因
type SkippedStation struct {
	StationID string
	Reason    string
}

// BuildStationRows 将充电站展开为每个接口一行
// 缺少必要数值字段的站点被跳过并返回，不影响其他站点
func BuildStationRows(tripID string, stations []models.Station, now time.Time) ([]models.TripStation, []SkippedStation) {
	rows := make([]models.TripStation, 0, len(stations))
	var skipped []SkippedStation
	ordinal := 0

	for _, st := range stations {
		if reason := invalidStation(st); reason != "" {
			skipped = append(skipped, SkippedStation{StationID: st.ID, Reason: reason})
			continue
		}

		conns := st.Connections
		if len(conns) == 0 {
			conns = []models.Connection{models.DefaultConnection()}
		}

		stationID := truncate(st.ID, maxStationIDLen)
		for _, conn := range conns {
			power := conn.PowerKW
			if math.IsNaN(power) || math.IsInf(power, 0) || power < 0 {
				power = 0
			}
			rows = append(rows, models.TripStation{
				ID:             fmt.Sprintf("%s_%s_%d", tripID, stationID, ordinal),
				TripID:         tripID,
				StationID:      stationID,
				Name:           truncate(orDefault(st.Name, models.DefaultStationName), maxStationNameLen),
				Latitude:       st.Latitude,
				Longitude:      st.Longitude,
				Address:        truncate(orDefault(st.Address, models.DefaultStationAddress), maxStationAddressLen),
				DistanceKm:     st.DistanceKm,
				ConnectionType: truncate(orDefault(conn.Type, models.DefaultConnectionType), maxConnectionTypeLen),
				PowerKW:        power,
				Status:         truncate(orDefault(conn.Status, models.DefaultStatus), maxStatusLen),
				CreatedAt:      now,
			})
			ordinal++
		}
	}

	return rows, skipped
}

func invalidStation(st models.Station) string {
	switch {
	case st.ID == "":
		return "missing station id"
	case !finite(st.Latitude) || !finite(st.Longitude):
		return "invalid coordinates"
	case !finite(st.DistanceKm):
		return "invalid distance"
	}
	return ""
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// truncate 按字符截断
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// SaveStations 保存行程沿途充电站，返回写入的行数
func (r *TripStationRepository) SaveStations(ctx context.Context, tripID string, stations []models.Station) (int, error) {
	rows, skipped := BuildStationRows(tripID, stations, time.Now().UTC())
	for _, s := range skipped {
		r.logger.Warn("Skipping malformed station",
			zap.String("trip_id", tripID),
			zap.String("station_id", s.StationID),
			zap.String("reason", s.Reason))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO trip_stations (
			id, trip_id, station_id, name, latitude, longitude, address,
			distance_km, connection_type, power_kw, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query,
			row.ID,
			row.TripID,
			row.StationID,
			row.Name,
			row.Latitude,
			row.Longitude,
			row.Address,
			row.DistanceKm,
			row.ConnectionType,
			row.PowerKW,
			row.Status,
			row.CreatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("insert trip station: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit trip stations: %w", err)
	}

	return len(rows), nil
}

// ListByTripID 获取行程的充电站记录
func (r *TripStationRepository) ListByTripID(ctx context.Context, tripID string) ([]*models.TripStation, error) {
	query := `
		SELECT id, trip_id, station_id, name, latitude, longitude, address,
			distance_km, connection_type, power_kw, status, created_at
		FROM trip_stations WHERE trip_id = $1 ORDER BY distance_km, station_id, id
	`
	rows, err := r.db.Pool.Query(ctx, query, tripID)
	if err != nil {
		return nil, fmt.Errorf("list trip stations: %w", err)
	}
	defer rows.Close()

	stations := make([]*models.TripStation, 0)
	for rows.Next() {
		s := &models.TripStation{}
		err := rows.Scan(
			&s.ID,
			&s.TripID,
			&s.StationID,
			&s.Name,
			&s.Latitude,
			&s.Longitude,
			&s.Address,
			&s.DistanceKm,
			&s.ConnectionType,
			&s.PowerKW,
			&s.Status,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trip station: %w", err)
		}
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trip stations: %w", err)
	}

	return stations, nil
}
