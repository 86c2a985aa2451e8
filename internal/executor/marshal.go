// internal/executor/marshal.go
package executor

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"insight-engine/internal/catalog"
	inerrors "insight-engine/internal/common/errors"
	"insight-engine/internal/models"
)

// scanRows reads every row into a generic map keyed by column name.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		targets := make([]interface{}, len(cols))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return v
	}
}

// marshal folds raw rows into the entry's output shape.
func marshal(entry *catalog.Entry, raw []map[string]interface{}) (*Fragment, error) {
	frag := &Fragment{Kind: entry.OutputKind, Ref: entry.OutputRef}

	switch entry.OutputKind {
	case catalog.KindKPI:
		if len(raw) == 0 {
			return nil, inerrors.NewEmptyResultError(entry.ID)
		}
		kpis := make(map[string]float64, len(raw[0]))
		for col, v := range raw[0] {
			if f, ok := toFloat(v); ok {
				kpis[col] = f
			}
		}
		frag.KPIs = kpis

	case catalog.KindTimeSeries:
		series := &models.TimeSeries{SeriesName: refSuffix(entry.OutputRef)}
		for _, row := range raw {
			value, _ := toFloat(row["value"])
			point := models.TimeSeriesPoint{
				Date:  toString(row["date"]),
				Value: value,
			}
			if label, ok := row["label"]; ok {
				point.Label = toString(label)
			}
			series.Points = append(series.Points, point)
		}
		frag.Series = series

	case catalog.KindTopItems:
		top := &models.TopItems{
			RankingName: refSuffix(entry.OutputRef),
			Metric:      entry.Metric,
		}
		for i, row := range raw {
			value, _ := toFloat(row["value"])
			item := models.TopItem{
				Rank:  i + 1,
				ID:    toString(row["id"]),
				Title: toString(row["title"]),
				Value: value,
			}
			if r, ok := toFloat(row["rank"]); ok {
				item.Rank = int(r)
			}
			extra := make(map[string]interface{})
			for col, v := range row {
				switch col {
				case "rank", "id", "title", "value":
				default:
					extra[col] = v
				}
			}
			if len(extra) > 0 {
				item.Extra = extra
			}
			top.Items = append(top.Items, item)
		}
		frag.Top = top

	case catalog.KindTable:
		frag.Table = &models.Table{
			Name: refSuffix(entry.OutputRef),
			Rows: raw,
		}

	case catalog.KindComparison:
		if len(raw) < 2 {
			return nil, inerrors.NewEmptyResultError(entry.ID)
		}
		cmp := &comparisonFragment{}
		for _, row := range raw {
			kpis := make(map[string]float64)
			for col, v := range row {
				if col == "period" {
					continue
				}
				if f, ok := toFloat(v); ok {
					kpis[col] = f
				}
			}
			switch toString(row["period"]) {
			case "current":
				cmp.Current = kpis
			case "previous":
				cmp.Previous = kpis
			}
		}
		if cmp.Current == nil || cmp.Previous == nil {
			return nil, inerrors.NewUpstreamError(entry.ID,
				fmt.Errorf("comparison rows missing current or previous period"))
		}
		frag.Comparison = cmp

	default:
		return nil, fmt.Errorf("unknown output kind %q for query %q", entry.OutputKind, entry.ID)
	}

	return frag, nil
}

func refSuffix(ref string) string {
	if i := strings.LastIndex(ref, "."); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
