package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/deasyyulanda-debug/a-kp-mcp-project"
)

var toolList = mcp.ListToolsResult{
	Tools: []mcp.Tool{
		{
			Name: toolQueryDatabase,
			Description: `
Execute a read-only SQL query against the e-commerce database. Only SELECT statements are accepted.
      `,
			InputSchema: queryDatabaseSchema,
		},
		{
			Name: toolGetCustomerOrders,
			Description: `
Retrieve a customer's profile and order history by customer_id or email.
      `,
			InputSchema: getCustomerOrdersSchema,
		},
		{
			Name: toolAnalyzeProductSales,
			Description: `
Rank products by revenue, optionally filtered by category and order date range.
      `,
			InputSchema: analyzeProductSalesSchema,
		},
	},
}

// ListTools implements mcp.ToolServer interface.
func (s *Server) ListTools(
	_ context.Context,
	_ mcp.ListToolsParams,
) (mcp.ListToolsResult, error) {
	return toolList, nil
}

// CallTool implements mcp.ToolServer interface.
//
// Argument validation and query-policy rejections come back as in-band error
// results so the caller can adjust and retry. Pool exhaustion and execution
// faults are returned as errors for the dispatcher to log and sanitize.
func (s *Server) CallTool(
	ctx context.Context,
	params mcp.CallToolParams,
) (mcp.CallToolResult, error) {
	if _, ok := toolArgSpecs[params.Name]; !ok {
		return mcp.CallToolResult{}, unknownTool(params.Name)
	}

	args, err := validateToolArgs(params.Name, params.Arguments)
	if err != nil {
		return errorResult(err), nil
	}

	switch params.Name {
	case toolQueryDatabase:
		return s.queryDatabase(ctx, args)
	case toolGetCustomerOrders:
		return s.getCustomerOrders(ctx, args)
	case toolAnalyzeProductSales:
		return s.analyzeProductSales(ctx, args)
	default:
		return mcp.CallToolResult{}, unknownTool(params.Name)
	}
}

func (s *Server) queryDatabase(ctx context.Context, args map[string]any) (mcp.CallToolResult, error) {
	sqlText, _ := stringArg(args, "sql")
	requested, _ := intArg(args, "limit")
	limit, clamped := s.guard.ClampLimit(requested)

	if err := s.guard.Validate(sqlText); err != nil {
		s.logger.Warn("Rejected query.", "tool", toolQueryDatabase, "error", err)
		return errorResult(err), nil
	}

	conn, err := s.store.Acquire(ctx)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	defer conn.Close()

	rows, err := s.store.Execute(ctx, conn, QueryPlan{Scope: toolQueryDatabase, Raw: sqlText}, limit)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	return jsonResult(map[string]any{
		"rows":         emptyIfNil(rows),
		"rowCount":     len(rows),
		"limit":        limit,
		"limitClamped": clamped,
		"truncated":    len(rows) == limit,
	})
}

func (s *Server) getCustomerOrders(ctx context.Context, args map[string]any) (mcp.CallToolResult, error) {
	customerID, hasID := intArg(args, "customer_id")
	email, hasEmail := stringArg(args, "email")
	if !hasID && !hasEmail {
		return errorResult(missingArgument("customer_id")), nil
	}
	requested, _ := intArg(args, "limit")
	limit, clamped := s.guard.ClampLimit(requested)

	conn, err := s.store.Acquire(ctx)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	defer conn.Close()

	lookup := QueryPlan{
		Scope: toolGetCustomerOrders,
		Raw: `SELECT id, email, first_name, last_name, country
		      FROM customers WHERE id = ?`,
		Args: []any{customerID},
	}
	if !hasID {
		lookup.Raw = `SELECT id, email, first_name, last_name, country
		              FROM customers WHERE email = ?`
		lookup.Args = []any{email}
		lookup.Sensitive = true
	}

	customers, err := s.store.Execute(ctx, conn, lookup, 1)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	if len(customers) == 0 {
		return errorResult(invalidArguments(lookupField(hasID), "no matching customer")), nil
	}
	customer := customers[0]

	orders, err := s.store.Execute(ctx, conn, QueryPlan{
		Scope: toolGetCustomerOrders,
		Raw: `SELECT o.id, o.order_date, o.status, o.total_amount,
		             COUNT(oi.id) AS item_count
		      FROM orders o
		      LEFT JOIN order_items oi ON oi.order_id = o.id
		      WHERE o.customer_id = ?
		      GROUP BY o.id
		      ORDER BY o.order_date DESC`,
		Args: []any{customer["id"]},
	}, limit)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	totalSpent := 0.0
	for _, order := range orders {
		if amount, ok := order["total_amount"].(float64); ok {
			totalSpent += amount
		}
	}

	return jsonResult(map[string]any{
		"customer":     customer,
		"orders":       emptyIfNil(orders),
		"orderCount":   len(orders),
		"totalSpent":   roundCents(totalSpent),
		"limit":        limit,
		"limitClamped": clamped,
	})
}

func lookupField(hasID bool) string {
	if hasID {
		return "customer_id"
	}
	return "email"
}

func (s *Server) analyzeProductSales(ctx context.Context, args map[string]any) (mcp.CallToolResult, error) {
	topN, ok := intArg(args, "top_n")
	if !ok {
		topN = 10
	}
	topN, clamped := s.guard.ClampLimit(topN)

	fromDate, hasFrom := stringArg(args, "from_date")
	toDate, hasTo := stringArg(args, "to_date")
	if hasFrom && hasTo && fromDate > toDate {
		return errorResult(invalidArguments("from_date", "must not be after to_date")), nil
	}

	var (
		where    []string
		planArgs []any
	)
	if category, ok := stringArg(args, "category"); ok {
		where = append(where, "p.category = ?")
		planArgs = append(planArgs, category)
	}
	if hasFrom {
		where = append(where, "date(o.order_date) >= date(?)")
		planArgs = append(planArgs, fromDate)
	}
	if hasTo {
		where = append(where, "date(o.order_date) <= date(?)")
		planArgs = append(planArgs, toDate)
	}

	query := `SELECT p.id AS product_id, p.name, p.category, p.price,
	                 SUM(oi.quantity) AS units_sold,
	                 ROUND(SUM(oi.subtotal), 2) AS total_revenue,
	                 COUNT(DISTINCT o.id) AS order_count
	          FROM products p
	          JOIN order_items oi ON oi.product_id = p.id
	          JOIN orders o ON o.id = oi.order_id
	          WHERE o.status <> 'cancelled'`
	if len(where) > 0 {
		query += " AND " + strings.Join(where, " AND ")
	}
	query += `
	          GROUP BY p.id
	          ORDER BY SUM(oi.subtotal) DESC`

	conn, err := s.store.Acquire(ctx)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	defer conn.Close()

	rows, err := s.store.Execute(ctx, conn, QueryPlan{
		Scope: toolAnalyzeProductSales,
		Raw:   query,
		Args:  planArgs,
	}, topN)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	rollup := `SELECT p.category,
	                  SUM(oi.quantity) AS units_sold,
	                  ROUND(SUM(oi.subtotal), 2) AS total_revenue
	           FROM products p
	           JOIN order_items oi ON oi.product_id = p.id
	           JOIN orders o ON o.id = oi.order_id
	           WHERE o.status <> 'cancelled'`
	if len(where) > 0 {
		rollup += " AND " + strings.Join(where, " AND ")
	}
	rollup += `
	           GROUP BY p.category
	           ORDER BY SUM(oi.subtotal) DESC`

	categoryTotals, err := s.store.Execute(ctx, conn, QueryPlan{
		Scope: toolAnalyzeProductSales,
		Raw:   rollup,
		Args:  planArgs,
	}, 0)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	payload := map[string]any{
		"products":       emptyIfNil(rows),
		"productCount":   len(rows),
		"categoryTotals": emptyIfNil(categoryTotals),
		"topN":           topN,
		"topNClamped":    clamped,
	}
	if category, ok := stringArg(args, "category"); ok {
		payload["category"] = category
	}
	if hasFrom {
		payload["fromDate"] = fromDate
	}
	if hasTo {
		payload["toDate"] = toDate
	}
	return jsonResult(payload)
}

func jsonResult(payload any) (mcp.CallToolResult, error) {
	text, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.CallToolResult{}, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return mcp.CallToolResult{
		Content: []mcp.Content{
			{
				Type: mcp.ContentTypeText,
				Text: string(text),
			},
		},
		IsError: false,
	}, nil
}

func errorResult(err error) mcp.CallToolResult {
	text := err.Error()
	var reqErr mcp.RequestError
	if errors.As(err, &reqErr) {
		text = reqErr.RequestErrorMessage()
	}
	return mcp.CallToolResult{
		Content: []mcp.Content{
			{
				Type: mcp.ContentTypeText,
				Text: text,
			},
		},
		IsError: true,
	}
}

func emptyIfNil(rows []map[string]any) []map[string]any {
	if rows == nil {
		return []map[string]any{}
	}
	return rows
}
