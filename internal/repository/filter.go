package repository

import (
	"fmt"
	"strings"

	"github.com/langchou/evtrip/internal/models"
)

// Op 比较运算符，只允许白名单内的值出现在 SQL 中
type Op string

const (
	OpEq  Op = "="
	OpGte Op = ">="
	OpLte Op = "<="
	OpAny Op = "= ANY" // 值为切片
)

// Predicate 单个查询条件 (列, 运算符, 值)
type Predicate struct {
	Column string
	Op     Op
	Value  any
}

// tripColumns 可用于过滤的 trips 列
var tripColumns = map[string]bool{
	"user_id":          true,
	"car_type":         true,
	"duration_seconds": true,
	"distance_meters":  true,
	"avg_speed_kph":    true,
	"energy_used_kwh":  true,
	"cost":             true,
	"created_at":       true,
}

// TripPredicates 将搜索条件转换为条件列表，nil 字段不产生条件
func TripPredicates(f models.TripFilter) []Predicate {
	var preds []Predicate

	if f.UserID != nil {
		preds = append(preds, Predicate{"user_id", OpEq, *f.UserID})
	}
	if len(f.CarTypes) > 0 {
		preds = append(preds, Predicate{"car_type", OpAny, f.CarTypes})
	}

	ranges := []struct {
		column   string
		min, max *float64
	}{
		{"duration_seconds", f.MinDuration, f.MaxDuration},
		{"distance_meters", f.MinDistance, f.MaxDistance},
		{"avg_speed_kph", f.MinSpeed, f.MaxSpeed},
		{"energy_used_kwh", f.MinEnergy, f.MaxEnergy},
		{"cost", f.MinCost, f.MaxCost},
	}
	for _, r := range ranges {
		if r.min != nil {
			preds = append(preds, Predicate{r.column, OpGte, *r.min})
		}
		if r.max != nil {
			preds = append(preds, Predicate{r.column, OpLte, *r.max})
		}
	}

	if f.StartDate != nil {
		preds = append(preds, Predicate{"created_at", OpGte, *f.StartDate})
	}
	if f.EndDate != nil {
		preds = append(preds, Predicate{"created_at", OpLte, *f.EndDate})
	}

	return preds
}

// CompileWhere 生成参数化的 WHERE 子句，占位符从 $1 开始
func CompileWhere(preds []Predicate) (string, []any, error) {
	if len(preds) == 0 {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(preds))
	args := make([]any, 0, len(preds))

	for _, p := range preds {
		if !tripColumns[p.Column] {
			return "", nil, fmt.Errorf("unsupported filter column %q", p.Column)
		}
		args = append(args, p.Value)
		switch p.Op {
		case OpEq, OpGte, OpLte:
			clauses = append(clauses, fmt.Sprintf("%s %s $%d", p.Column, p.Op, len(args)))
		case OpAny:
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", p.Column, len(args)))
		default:
			return "", nil, fmt.Errorf("unsupported filter operator %q", p.Op)
		}
	}

	return "WHERE " + strings.Join(clauses, " AND "), args, nil
}
