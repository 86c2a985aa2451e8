package models

// KPI card value formats.
const (
	FormatCurrency = "currency"
	FormatNumber   = "number"
	FormatPercent  = "percent"
)

// Chart slot types. Line, area, bar and pie bind a dataset ref; table adds a
// column list; the comparison variants span both periods of the payload's
// comparison block.
const (
	ChartLine          = "line"
	ChartArea          = "area"
	ChartBar           = "bar"
	ChartPie           = "pie"
	ChartTable         = "table"
	ChartComparisonBar = "comparison_bar"
	ChartComparisonKPI = "comparison_kpi"
)

// Narrative block kinds.
const (
	NarrativeHeadline = "headline"
	NarrativeSummary  = "summary"
	NarrativeInsight  = "insight"
	NarrativeCallout  = "callout"
)

// KPICard binds one KPI slot to a payload value ref.
type KPICard struct {
	Label    string `json:"label"`
	ValueRef string `json:"value_ref"`
	Format   string `json:"format"`
	DeltaRef string `json:"delta_ref,omitempty"`
	Icon     string `json:"icon,omitempty"`
}

// Chart is the single slot shape for charts, tables and comparisons; the
// Type field decides which of the optional groups is meaningful.
type Chart struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	DatasetRef string `json:"dataset_ref"`

	// line / area / bar / pie
	XAxis string `json:"x_axis,omitempty"`
	YAxis string `json:"y_axis,omitempty"`
	Color string `json:"color,omitempty"`

	// table
	Columns []string `json:"columns,omitempty"`
	MaxRows int      `json:"max_rows,omitempty"`

	// comparison_bar / comparison_kpi
	CurrentLabel  string   `json:"current_label,omitempty"`
	PreviousLabel string   `json:"previous_label,omitempty"`
	Metrics       []string `json:"metrics,omitempty"`
}

// Narrative is one text block of the dashboard.
type Narrative struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
	Icon string `json:"icon,omitempty"`
}

// Filter records an applied filter, typically the date range.
type Filter struct {
	Type  string                 `json:"type"`
	From  string                 `json:"from,omitempty"`
	To    string                 `json:"to,omitempty"`
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Slots is the fixed-shape dashboard content.
type Slots struct {
	Series    []KPICard   `json:"series"`
	Charts    []Chart     `json:"charts"`
	Narrative []Narrative `json:"narrative"`
	Filters   []Filter    `json:"filters"`
}

// DashboardSpec is what the frontend renders. Every value_ref/dataset_ref in
// it must exist in the accompanying payload's AvailableRefs.
type DashboardSpec struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	Conclusion  string `json:"conclusion,omitempty"`
	Slots       Slots  `json:"slots"`
	GeneratedAt string `json:"generated_at,omitempty"`
}
