package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deasyyulanda-debug/a-kp-mcp-project"
)

const (
	uriSchemaPrefix = "db://schema/"
	uriStatsSummary = "db://stats/summary"

	mimeJSON = "application/json"
)

// schemaTables is the fixed set of tables published as schema resources, in
// catalog order.
var schemaTables = []string{"customers", "products", "orders", "order_items"}

var resourceList = mcp.ListResourcesResult{
	Resources: []mcp.Resource{
		{
			URI:         uriSchemaPrefix + "customers",
			Name:        "Customers table schema",
			Description: "Column definitions for the customers table",
			MimeType:    mimeJSON,
		},
		{
			URI:         uriSchemaPrefix + "products",
			Name:        "Products table schema",
			Description: "Column definitions for the products table",
			MimeType:    mimeJSON,
		},
		{
			URI:         uriSchemaPrefix + "orders",
			Name:        "Orders table schema",
			Description: "Column definitions for the orders table",
			MimeType:    mimeJSON,
		},
		{
			URI:         uriSchemaPrefix + "order_items",
			Name:        "Order items table schema",
			Description: "Column definitions for the order_items table",
			MimeType:    mimeJSON,
		},
		{
			URI:         uriStatsSummary,
			Name:        "Database statistics",
			Description: "Row counts, order status distribution, product categories, and order date range",
			MimeType:    mimeJSON,
		},
	},
}

// normalizeURI maps a requested URI to canonical form before any catalog
// comparison. It is idempotent: normalizeURI(normalizeURI(u)) == normalizeURI(u).
func normalizeURI(uri string) string {
	u := strings.TrimSpace(uri)
	u = strings.ToLower(u)
	for strings.HasSuffix(u, "/") && u != "" {
		u = strings.TrimSuffix(u, "/")
	}
	return u
}

// ListResources implements mcp.ResourceServer interface.
func (s *Server) ListResources(
	_ context.Context,
	_ mcp.ListResourcesParams,
) (mcp.ListResourcesResult, error) {
	return resourceList, nil
}

// ReadResource implements mcp.ResourceServer interface. Reads are computed
// from live database state on every call.
func (s *Server) ReadResource(
	ctx context.Context,
	params mcp.ReadResourceParams,
) (mcp.ReadResourceResult, error) {
	uri := normalizeURI(params.URI)

	switch {
	case uri == uriStatsSummary:
		return s.readStatsSummary(ctx, uri)
	case strings.HasPrefix(uri, uriSchemaPrefix):
		return s.readTableSchema(ctx, uri)
	default:
		return mcp.ReadResourceResult{}, unknownResource(params.URI)
	}
}

func (s *Server) readTableSchema(ctx context.Context, uri string) (mcp.ReadResourceResult, error) {
	table := strings.TrimPrefix(uri, uriSchemaPrefix)
	if !isSchemaTable(table) {
		return mcp.ReadResourceResult{}, unknownResource(uri)
	}

	columns, err := s.store.IntrospectSchema(ctx, table)
	if err != nil {
		return mcp.ReadResourceResult{}, err
	}

	payload := struct {
		Table   string   `json:"table"`
		Columns []Column `json:"columns"`
	}{Table: table, Columns: columns}

	return resourceResult(uri, payload)
}

func isSchemaTable(table string) bool {
	for _, t := range schemaTables {
		if t == table {
			return true
		}
	}
	return false
}

func (s *Server) readStatsSummary(ctx context.Context, uri string) (mcp.ReadResourceResult, error) {
	conn, err := s.store.Acquire(ctx)
	if err != nil {
		return mcp.ReadResourceResult{}, err
	}
	defer conn.Close()

	counts := map[string]int64{}
	for _, table := range schemaTables {
		rows, err := s.store.Execute(ctx, conn, QueryPlan{
			Scope: "stats_summary",
			Raw:   fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", table),
		}, 1)
		if err != nil {
			return mcp.ReadResourceResult{}, err
		}
		counts[table] = asInt64(rows[0]["n"])
	}

	statusRows, err := s.store.Execute(ctx, conn, QueryPlan{
		Scope: "stats_summary",
		Raw:   "SELECT status, COUNT(*) AS n FROM orders GROUP BY status ORDER BY status",
	}, 0)
	if err != nil {
		return mcp.ReadResourceResult{}, err
	}
	statuses := map[string]int64{}
	for _, row := range statusRows {
		if status, ok := row["status"].(string); ok {
			statuses[status] = asInt64(row["n"])
		}
	}

	categoryRows, err := s.store.Execute(ctx, conn, QueryPlan{
		Scope: "stats_summary",
		Raw:   "SELECT DISTINCT category FROM products ORDER BY category",
	}, 0)
	if err != nil {
		return mcp.ReadResourceResult{}, err
	}
	categories := []string{}
	for _, row := range categoryRows {
		if category, ok := row["category"].(string); ok {
			categories = append(categories, category)
		}
	}

	rangeRows, err := s.store.Execute(ctx, conn, QueryPlan{
		Scope: "stats_summary",
		Raw:   "SELECT MIN(order_date) AS earliest, MAX(order_date) AS latest FROM orders",
	}, 1)
	if err != nil {
		return mcp.ReadResourceResult{}, err
	}
	dateRange := map[string]any{"earliestOrder": nil, "latestOrder": nil}
	if len(rangeRows) > 0 {
		dateRange["earliestOrder"] = rangeRows[0]["earliest"]
		dateRange["latestOrder"] = rangeRows[0]["latest"]
	}

	return resourceResult(uri, map[string]any{
		"recordCounts":            counts,
		"orderStatusDistribution": statuses,
		"productCategories":       categories,
		"orderDateRange":          dateRange,
	})
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func resourceResult(uri string, payload any) (mcp.ReadResourceResult, error) {
	text, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.ReadResourceResult{}, fmt.Errorf("failed to marshal resource %s: %w", uri, err)
	}
	return mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			{
				URI:      uri,
				MimeType: mimeJSON,
				Text:     string(text),
			},
		},
	}, nil
}
