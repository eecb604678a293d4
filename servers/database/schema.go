package database

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Tool names.
const (
	toolQueryDatabase       = "query_database"
	toolGetCustomerOrders   = "get_customer_orders"
	toolAnalyzeProductSales = "analyze_product_sales"
)

// Prompt names.
const (
	promptAnalyzeCustomer     = "analyze_customer"
	promptCategoryPerformance = "category_performance"
)

var queryDatabaseSchema = []byte(`{
  "type": "object",
  "properties": {
    "sql": {
      "type": "string",
      "description": "SELECT statement to execute"
    },
    "limit": {
      "type": "integer",
      "description": "Maximum rows to return (default 100, capped at 1000)"
    }
  },
  "required": ["sql"]
}`)

var getCustomerOrdersSchema = []byte(`{
  "type": "object",
  "properties": {
    "customer_id": {
      "type": "integer",
      "description": "Customer ID to look up"
    },
    "email": {
      "type": "string",
      "description": "Customer email, used when customer_id is absent"
    },
    "limit": {
      "type": "integer",
      "description": "Maximum orders to return (default 100, capped at 1000)"
    }
  }
}`)

var analyzeProductSalesSchema = []byte(`{
  "type": "object",
  "properties": {
    "category": {
      "type": "string",
      "description": "Restrict the analysis to one product category"
    },
    "top_n": {
      "type": "integer",
      "description": "Number of top products to return (default 10)"
    },
    "from_date": {
      "type": "string",
      "description": "Include orders placed on or after this date (YYYY-MM-DD)"
    },
    "to_date": {
      "type": "string",
      "description": "Include orders placed on or before this date (YYYY-MM-DD)"
    }
  }
}`)

// argKind is the declared type of one tool parameter. Raw arguments are
// checked against these declarations before any handler logic runs.
type argKind int

const (
	argString argKind = iota
	argInteger
	argDate
)

func (k argKind) String() string {
	switch k {
	case argString:
		return "string"
	case argInteger:
		return "integer"
	case argDate:
		return "date (YYYY-MM-DD)"
	default:
		return "unknown"
	}
}

type argSpec struct {
	kind     argKind
	required bool
}

// toolArgSpecs mirrors the published input schemas. A tool accepts exactly
// the parameters listed here.
var toolArgSpecs = map[string]map[string]argSpec{
	toolQueryDatabase: {
		"sql":   {kind: argString, required: true},
		"limit": {kind: argInteger},
	},
	toolGetCustomerOrders: {
		"customer_id": {kind: argInteger},
		"email":       {kind: argString},
		"limit":       {kind: argInteger},
	},
	toolAnalyzeProductSales: {
		"category":  {kind: argString},
		"top_n":     {kind: argInteger},
		"from_date": {kind: argDate},
		"to_date":   {kind: argDate},
	},
}

// validateToolArgs checks raw against the tool's declared parameters and
// returns the decoded values. Missing required fields, unknown fields, and
// type mismatches each fail naming the offending field.
func validateToolArgs(tool string, raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, invalidArguments("arguments", "not a JSON object")
		}
	}

	specs := toolArgSpecs[tool]
	for field := range args {
		if _, ok := specs[field]; !ok {
			return nil, invalidArguments(field, "unknown parameter")
		}
	}
	for field, spec := range specs {
		value, present := args[field]
		if !present {
			if spec.required {
				return nil, missingArgument(field)
			}
			continue
		}
		decoded, err := decodeArg(field, spec.kind, value)
		if err != nil {
			return nil, err
		}
		args[field] = decoded
	}
	return args, nil
}

func decodeArg(field string, kind argKind, value any) (any, error) {
	switch kind {
	case argString:
		s, ok := value.(string)
		if !ok {
			return nil, invalidArguments(field, fmt.Sprintf("expected %s", kind))
		}
		return s, nil

	case argInteger:
		f, ok := value.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, invalidArguments(field, fmt.Sprintf("expected %s", kind))
		}
		return int(f), nil

	case argDate:
		s, ok := value.(string)
		if !ok {
			return nil, invalidArguments(field, fmt.Sprintf("expected %s", kind))
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return nil, invalidArguments(field, fmt.Sprintf("expected %s", kind))
		}
		return s, nil

	default:
		return nil, invalidArguments(field, "unsupported parameter type")
	}
}

func intArg(args map[string]any, field string) (int, bool) {
	v, ok := args[field].(int)
	return v, ok
}

func stringArg(args map[string]any, field string) (string, bool) {
	v, ok := args[field].(string)
	return v, ok
}
