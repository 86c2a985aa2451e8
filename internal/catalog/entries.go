package catalog

import "time"

func daysAgo(days int) func(now time.Time) interface{} {
	return func(now time.Time) interface{} {
		return now.AddDate(0, 0, -days).Format("2006-01-02")
	}
}

func daysAhead(days int) func(now time.Time) interface{} {
	return func(now time.Time) interface{} {
		return now.AddDate(0, 0, days).Format("2006-01-02")
	}
}

func intDefault(n int) interface{} { return n }

// Default loads the built-in query registry. Only SELECTs, always bounded,
// parameters validated before binding.
func Default() (*Catalog, error) {
	return Load(Entries())
}

// Entries returns the full allowlist.
func Entries() []Entry {
	return []Entry{

		// ============== Sales (ml_orders) ==============

		{
			ID:          "kpi_sales_summary",
			Description: "Sales KPI summary (total, order count, average ticket, units) over paid orders",
			OutputKind:  KindKPI,
			OutputRef:   "kpi.sales_summary",
			SQL: `
				SELECT
					COALESCE(SUM(total_amount), 0) AS total_sales,
					COUNT(*) AS total_orders,
					COALESCE(AVG(total_amount), 0) AS avg_order_value,
					COALESCE(SUM(quantity), 0) AS total_units
				FROM ml_orders
				WHERE status = 'paid'
				  AND date_created >= $1
				  AND date_created < $2`,
			BindOrder: []string{"date_from", "date_to"},
			Params: []ParamSpec{
				{Name: "date_from", Type: ParamDate, Required: true, DefaultFn: daysAgo(30)},
				{Name: "date_to", Type: ParamDate, Required: true, DefaultFn: daysAhead(1)},
			},
		},
		{
			ID:          "ts_sales_by_day",
			Description: "Daily sales totals for a line chart",
			OutputKind:  KindTimeSeries,
			OutputRef:   "ts.sales_by_day",
			SQL: `
				SELECT
					DATE(date_created) AS date,
					SUM(total_amount) AS value,
					COUNT(*) AS order_count
				FROM ml_orders
				WHERE status = 'paid'
				  AND date_created >= $1
				  AND date_created < $2
				GROUP BY DATE(date_created)
				ORDER BY date ASC
				LIMIT $3`,
			BindOrder: []string{"date_from", "date_to", "limit"},
			Params: []ParamSpec{
				{Name: "date_from", Type: ParamDate, Required: true, DefaultFn: daysAgo(30)},
				{Name: "date_to", Type: ParamDate, Required: true, DefaultFn: daysAhead(1)},
				{Name: "limit", Type: ParamInteger, Default: intDefault(31)},
			},
		},
		{
			ID:          "sales_by_month",
			Description: "Monthly sales totals for seasonality analysis",
			OutputKind:  KindTimeSeries,
			OutputRef:   "ts.sales_by_month",
			SQL: `
				SELECT
					TO_CHAR(date_created, 'YYYY-MM') AS date,
					SUM(total_amount) AS value,
					COUNT(*) AS order_count
				FROM ml_orders
				WHERE status = 'paid'
				  AND date_created >= $1
				  AND date_created < $2
				GROUP BY TO_CHAR(date_created, 'YYYY-MM')
				ORDER BY date ASC
				LIMIT $3`,
			BindOrder: []string{"date_from", "date_to", "limit"},
			Params: []ParamSpec{
				{Name: "date_from", Type: ParamDate, Required: true, DefaultFn: daysAgo(395)},
				{Name: "date_to", Type: ParamDate, Required: true, DefaultFn: daysAhead(1)},
				{Name: "limit", Type: ParamInteger, Default: intDefault(13)},
			},
		},
		{
			ID:          "top_products_by_revenue",
			Metric:      "revenue",
			Description: "Top products ranked by revenue within a period",
			OutputKind:  KindTopItems,
			OutputRef:   "top.products_by_revenue",
			SQL: `
				SELECT
					ROW_NUMBER() OVER (ORDER BY SUM(o.total_amount) DESC) AS rank,
					o.item_id AS id,
					i.title,
					SUM(o.total_amount) AS value,
					SUM(o.quantity) AS units_sold
				FROM ml_orders o
				LEFT JOIN ml_items i ON o.item_id = i.item_id
				WHERE o.status = 'paid'
				  AND o.date_created >= $1
				  AND o.date_created < $2
				GROUP BY o.item_id, i.title
				ORDER BY value DESC
				LIMIT $3`,
			BindOrder: []string{"date_from", "date_to", "limit"},
			Params: []ParamSpec{
				{Name: "date_from", Type: ParamDate, Required: true, DefaultFn: daysAgo(30)},
				{Name: "date_to", Type: ParamDate, Required: true, DefaultFn: daysAhead(1)},
				{Name: "limit", Type: ParamInteger, Default: intDefault(10)},
			},
		},
		{
			ID:          "recent_orders",
			Description: "Latest orders for a detail table",
			OutputKind:  KindTable,
			OutputRef:   "table.recent_orders",
			SQL: `
				SELECT
					order_id AS id,
					buyer_nickname,
					item_title,
					total_amount,
					quantity,
					status,
					shipping_status,
					date_created
				FROM ml_orders
				ORDER BY date_created DESC
				LIMIT $1`,
			BindOrder: []string{"limit"},
			Params: []ParamSpec{
				{Name: "limit", Type: ParamInteger, Default: intDefault(20)},
			},
		},
		{
			ID:          "sales_by_channel",
			Metric:      "revenue",
			Description: "Sales grouped by shipping channel",
			OutputKind:  KindTopItems,
			OutputRef:   "top.sales_by_channel",
			SQL: `
				SELECT
					ROW_NUMBER() OVER (ORDER BY SUM(total_amount) DESC) AS rank,
					COALESCE(shipping_type, 'direct') AS id,
					COALESCE(shipping_type, 'direct') AS title,
					SUM(total_amount) AS value,
					COUNT(*) AS order_count
				FROM ml_orders
				WHERE date_created >= $1
				  AND date_created < $2
				GROUP BY shipping_type
				ORDER BY value DESC
				LIMIT $3`,
			BindOrder: []string{"date_from", "date_to", "limit"},
			Params: []ParamSpec{
				{Name: "date_from", Type: ParamDate, Required: true, DefaultFn: daysAgo(30)},
				{Name: "date_to", Type: ParamDate, Required: true, DefaultFn: daysAhead(1)},
				{Name: "limit", Type: ParamInteger, Default: intDefault(10)},
			},
		},
		{
			ID:          "sales_period_comparison",
			Description: "Sales KPIs for two periods side by side (current vs previous)",
			OutputKind:  KindComparison,
			OutputRef:   "comparison.sales_periods",
			SQL: `
				SELECT
					'current' AS period,
					COALESCE(SUM(total_amount), 0) AS total_sales,
					COUNT(*) AS total_orders,
					COALESCE(AVG(total_amount), 0) AS avg_order_value,
					COALESCE(SUM(quantity), 0) AS total_units
				FROM ml_orders
				WHERE status = 'paid'
				  AND date_created >= $1
				  AND date_created < $2
				UNION ALL
				SELECT
					'previous' AS period,
					COALESCE(SUM(total_amount), 0) AS total_sales,
					COUNT(*) AS total_orders,
					COALESCE(AVG(total_amount), 0) AS avg_order_value,
					COALESCE(SUM(quantity), 0) AS total_units
				FROM ml_orders
				WHERE status = 'paid'
				  AND date_created >= $3
				  AND date_created < $4`,
			BindOrder: []string{"date_from", "date_to", "prev_date_from", "prev_date_to"},
			Params: []ParamSpec{
				{Name: "date_from", Type: ParamDate, Required: true, DefaultFn: daysAgo(30)},
				{Name: "date_to", Type: ParamDate, Required: true, DefaultFn: daysAhead(1)},
				{Name: "prev_date_from", Type: ParamDate, Required: true, DefaultFn: daysAgo(60)},
				{Name: "prev_date_to", Type: ParamDate, Required: true, DefaultFn: daysAgo(30)},
			},
		},

		// ============== Inventory (ml_items, v_stock_dashboard) ==============

		{
			ID:          "products_inventory",
			Description: "Product inventory with stock and prices",
			OutputKind:  KindTable,
			OutputRef:   "table.products_inventory",
			SQL: `
				SELECT
					item_id AS id,
					title,
					sku,
					price,
					available_quantity AS stock,
					status,
					total_sold
				FROM ml_items
				ORDER BY available_quantity DESC
				LIMIT $1`,
			BindOrder: []string{"limit"},
			Params: []ParamSpec{
				{Name: "limit", Type: ParamInteger, Default: intDefault(50)},
			},
		},
		{
			ID:          "products_low_stock",
			Description: "Active products with critical stock (under 10 units)",
			OutputKind:  KindTable,
			OutputRef:   "table.products_low_stock",
			SQL: `
				SELECT
					item_id AS id,
					title,
					sku,
					price,
					available_quantity AS stock,
					status
				FROM ml_items
				WHERE available_quantity < 10
				  AND status = 'active'
				ORDER BY available_quantity ASC
				LIMIT $1`,
			BindOrder: []string{"limit"},
			Params: []ParamSpec{
				{Name: "limit", Type: ParamInteger, Default: intDefault(20)},
			},
		},
		{
			ID:          "top_products_by_sales",
			Metric:      "units",
			Description: "Top products ranked by lifetime units sold",
			OutputKind:  KindTopItems,
			OutputRef:   "top.products_by_sales",
			SQL: `
				SELECT
					ROW_NUMBER() OVER (ORDER BY total_sold DESC NULLS LAST) AS rank,
					item_id AS id,
					title,
					total_sold AS value,
					total_sold AS units_sold
				FROM ml_items
				ORDER BY total_sold DESC NULLS LAST
				LIMIT $1`,
			BindOrder: []string{"limit"},
			Params: []ParamSpec{
				{Name: "limit", Type: ParamInteger, Default: intDefault(10)},
			},
		},
		{
			ID:          "kpi_inventory_summary",
			Description: "Inventory KPI summary (critical, warning, ok counts and coverage days)",
			OutputKind:  KindKPI,
			OutputRef:   "kpi.inventory_summary",
			SQL: `
				SELECT
					COUNT(*) FILTER (WHERE severity = 'critical') AS critical_count,
					COUNT(*) FILTER (WHERE severity = 'warning') AS warning_count,
					COUNT(*) FILTER (WHERE severity = 'ok') AS ok_count,
					COUNT(*) AS total_products,
					COALESCE(AVG(days_cover), 0) AS avg_days_cover
				FROM v_stock_dashboard`,
		},
		{
			ID:          "stock_reorder_analysis",
			Description: "Stock alerts and reorder recommendations (critical and warning items)",
			OutputKind:  KindTable,
			OutputRef:   "table.stock_alerts",
			SQL: `
				SELECT
					item_id AS id,
					title,
					available_quantity AS stock,
					days_cover,
					severity,
					reorder_date
				FROM v_stock_dashboard
				WHERE severity IN ('critical', 'warning')
				ORDER BY severity DESC, days_cover ASC
				LIMIT $1`,
			BindOrder: []string{"limit"},
			Params: []ParamSpec{
				{Name: "limit", Type: ParamInteger, Default: intDefault(20)},
			},
		},

		// ============== AI agent (conversations, escalations) ==============

		{
			ID:          "ai_interactions_summary",
			Description: "AI agent interaction KPIs (totals, escalations, auto-response rate)",
			OutputKind:  KindKPI,
			OutputRef:   "kpi.ai_interactions",
			SQL: `
				SELECT
					COALESCE(conv.total_interactions, 0) AS total_interactions,
					COALESCE(esc.escalated_count, 0) AS escalated_count,
					COALESCE(ROUND(esc.escalated_count::numeric / NULLIF(conv.total_interactions, 0) * 100, 1), 0) AS escalation_rate,
					COALESCE(conv.total_interactions, 0) - COALESCE(esc.escalated_count, 0) AS auto_responded,
					COALESCE(
						ROUND(
							(COALESCE(conv.total_interactions, 0) - COALESCE(esc.escalated_count, 0))::numeric
							/ NULLIF(conv.total_interactions, 0) * 100,
							1
						),
						0
					) AS auto_response_rate
				FROM
					(SELECT COUNT(*) AS total_interactions FROM conversations) conv,
					(SELECT COUNT(*) AS escalated_count FROM escalations) esc`,
		},
		{
			ID:          "recent_ai_interactions",
			Description: "Latest AI agent interactions with buyers",
			OutputKind:  KindTable,
			OutputRef:   "table.recent_ai_interactions",
			SQL: `
				SELECT
					id,
					buyer_nickname,
					status,
					case_type,
					last_message_at
				FROM conversations
				WHERE ($1 = '' OR buyer_nickname = $1)
				ORDER BY last_message_at DESC
				LIMIT $2`,
			BindOrder: []string{"buyer_nickname", "limit"},
			Params: []ParamSpec{
				{Name: "buyer_nickname", Type: ParamString, Default: "", Sensitive: true},
				{Name: "limit", Type: ParamInteger, Default: intDefault(20)},
			},
		},
		{
			ID:          "escalated_cases",
			Description: "Cases escalated to a human with reason and priority",
			OutputKind:  KindTable,
			OutputRef:   "table.escalated_cases",
			SQL: `
				SELECT
					id,
					buyer_nickname,
					reason,
					case_type,
					status,
					priority,
					source,
					created_at
				FROM escalations
				ORDER BY created_at DESC
				LIMIT $1`,
			BindOrder: []string{"limit"},
			Params: []ParamSpec{
				{Name: "limit", Type: ParamInteger, Default: intDefault(20)},
			},
		},
		{
			ID:          "interactions_by_case_type",
			Metric:      "count",
			Description: "Escalations grouped by case type",
			OutputKind:  KindTopItems,
			OutputRef:   "top.interactions_by_case_type",
			SQL: `
				SELECT
					ROW_NUMBER() OVER (ORDER BY COUNT(*) DESC) AS rank,
					COALESCE(case_type, 'sin_tipo') AS id,
					INITCAP(REPLACE(COALESCE(case_type, 'sin_tipo'), '_', ' ')) AS title,
					COUNT(*) AS value
				FROM escalations
				GROUP BY case_type
				ORDER BY value DESC
				LIMIT $1`,
			BindOrder: []string{"limit"},
			Params: []ParamSpec{
				{Name: "limit", Type: ParamInteger, Default: intDefault(10)},
			},
		},
	}
}
