package models

import "time"

// DatasetMeta records per-query execution metadata.
type DatasetMeta struct {
	QueryID         string    `json:"query_id"`
	RowCount        int       `json:"row_count"`
	ExecutionTimeMS int64     `json:"execution_time_ms"`
	ExecutedAt      time.Time `json:"executed_at"`
}

// TimeSeriesPoint is a single dated value.
type TimeSeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
	Label string  `json:"label,omitempty"`
}

// TimeSeries is an ordered series of dated values.
type TimeSeries struct {
	SeriesName string            `json:"series_name"`
	Points     []TimeSeriesPoint `json:"points"`
}

// TopItem is one entry of a ranking.
type TopItem struct {
	Rank  int                    `json:"rank"`
	ID    string                 `json:"id"`
	Title string                 `json:"title"`
	Value float64                `json:"value"`
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// TopItems is a named ranking over a metric.
type TopItems struct {
	RankingName string    `json:"ranking_name"`
	Metric      string    `json:"metric"`
	Items       []TopItem `json:"items"`
}

// Table is a named list of raw rows.
type Table struct {
	Name string                   `json:"name"`
	Rows []map[string]interface{} `json:"rows"`
}

// ComparisonPeriod holds the KPIs of one side of a period comparison.
type ComparisonPeriod struct {
	Label    string             `json:"label"`
	DateFrom string             `json:"date_from"`
	DateTo   string             `json:"date_to"`
	KPIs     map[string]float64 `json:"kpis"`
}

// Comparison holds both periods plus per-metric deltas. DeltaPct is 0 when
// the previous period value is 0.
type Comparison struct {
	CurrentPeriod  ComparisonPeriod   `json:"current_period"`
	PreviousPeriod ComparisonPeriod   `json:"previous_period"`
	Deltas         map[string]float64 `json:"deltas"`
	DeltaPct       map[string]float64 `json:"delta_pct"`
}

// DataPayload is everything the data agent collected for one request.
// AvailableRefs lists the output refs that received at least one non-empty
// result; the presentation builder may only bind to refs listed there.
type DataPayload struct {
	KPIs          map[string]float64 `json:"kpis,omitempty"`
	TimeSeries    []TimeSeries       `json:"time_series,omitempty"`
	TopItems      []TopItems         `json:"top_items,omitempty"`
	Tables        []Table            `json:"tables,omitempty"`
	Comparison    *Comparison        `json:"comparison,omitempty"`
	AvailableRefs []string           `json:"available_refs"`
	DatasetsMeta  []DatasetMeta      `json:"datasets_meta,omitempty"`
}

// HasRef reports whether ref is in AvailableRefs.
func (p *DataPayload) HasRef(ref string) bool {
	for _, r := range p.AvailableRefs {
		if r == ref {
			return true
		}
	}
	return false
}

// AddRef appends ref once.
func (p *DataPayload) AddRef(ref string) {
	if !p.HasRef(ref) {
		p.AvailableRefs = append(p.AvailableRefs, ref)
	}
}
