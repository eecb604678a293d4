package database

import (
	"context"
	"fmt"

	"github.com/deasyyulanda-debug/a-kp-mcp-project"
)

var promptList = mcp.ListPromptsResult{
	Prompts: []mcp.Prompt{
		{
			Name:        promptAnalyzeCustomer,
			Description: "Analyze a customer's purchase history and behavior",
			Arguments: []mcp.PromptArgument{
				{
					Name:        "customer_id",
					Description: "Customer ID to analyze",
					Required:    true,
				},
			},
		},
		{
			Name:        promptCategoryPerformance,
			Description: "Generate a performance report for a product category",
			Arguments: []mcp.PromptArgument{
				{
					Name:        "category",
					Description: "Product category name",
					Required:    true,
				},
				{
					Name:        "period_days",
					Description: "Analysis period in days (default: 30)",
					Required:    false,
				},
			},
		},
	},
}

// ListPrompts implements mcp.PromptServer interface.
func (s *Server) ListPrompts(
	_ context.Context,
	_ mcp.ListPromptsParams,
) (mcp.ListPromptsResult, error) {
	return promptList, nil
}

// GetPrompt implements mcp.PromptServer interface. Rendering is pure
// argument substitution; no database access happens here.
func (s *Server) GetPrompt(
	_ context.Context,
	params mcp.GetPromptParams,
) (mcp.GetPromptResult, error) {
	switch params.Name {
	case promptAnalyzeCustomer:
		customerID, ok := params.Arguments["customer_id"]
		if !ok || customerID == "" {
			return mcp.GetPromptResult{}, missingArgument("customer_id")
		}
		return promptResult(
			fmt.Sprintf("Analyze customer %s", customerID),
			analyzeCustomerTemplate(customerID),
		), nil

	case promptCategoryPerformance:
		category, ok := params.Arguments["category"]
		if !ok || category == "" {
			return mcp.GetPromptResult{}, missingArgument("category")
		}
		periodDays := params.Arguments["period_days"]
		if periodDays == "" {
			periodDays = "30"
		}
		return promptResult(
			fmt.Sprintf("Analyze performance for %s category", category),
			categoryPerformanceTemplate(category, periodDays),
		), nil

	default:
		return mcp.GetPromptResult{}, unknownPrompt(params.Name)
	}
}

func promptResult(description, text string) mcp.GetPromptResult {
	return mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.Content{
					Type: mcp.ContentTypeText,
					Text: text,
				},
			},
		},
	}
}

func analyzeCustomerTemplate(customerID string) string {
	return fmt.Sprintf(`Please analyze customer %[1]s using the following steps:

1. Use the `+"`get_customer_orders`"+` tool to retrieve all orders for customer_id=%[1]s
2. Analyze their purchase patterns:
   - Total orders and spend
   - Favorite product categories
   - Average order value
   - Order frequency
3. Provide insights and recommendations:
   - Customer segment (high-value, occasional, at-risk)
   - Product recommendations based on purchase history
   - Potential upsell opportunities

Format the analysis professionally with clear sections and actionable insights.`, customerID)
}

func categoryPerformanceTemplate(category, periodDays string) string {
	return fmt.Sprintf(`Generate a performance report for the '%[1]s' product category:

1. Use `+"`analyze_product_sales`"+` tool with category='%[1]s' to get top products
2. Use `+"`query_database`"+` to find:
   - Total orders containing %[1]s products in last %[2]s days
   - Average order value for %[1]s items
   - Inventory levels (stock_quantity)
3. Provide analysis:
   - Best-performing products and why
   - Revenue trends
   - Inventory recommendations (restock alerts)
   - Pricing optimization opportunities

Present findings in an executive summary format suitable for leadership.`, category, periodDays)
}
