package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

const (
	ToolInventorySummary = "getInventorySummary"
	ToolLowStockAlerts   = "getLowStockAlerts"
	ToolSalesPerformance = "getSalesPerformance"
	ToolSearchProducts   = "searchProducts"
	ToolCustomerBalance  = "getCustomerBalance"
)

func floatPtr(v float64) *float64 { return &v }

// toolManifest is the fixed capability set declared to the remote model
func toolManifest() []repositories.ToolDeclaration {
	return []repositories.ToolDeclaration{
		{
			Name:        ToolInventorySummary,
			Description: "Get the current stock levels and prices of all products in the store.",
		},
		{
			Name:        ToolLowStockAlerts,
			Description: "Get the products whose stock is below the reorder threshold.",
			Parameters: []repositories.ToolParameter{
				{
					Name:        "threshold",
					Type:        repositories.ParamNumber,
					Description: "Stock level below which a product counts as low. Defaults to 50.",
					Min:         floatPtr(0),
					Max:         floatPtr(1000000),
				},
			},
		},
		{
			Name:        ToolSalesPerformance,
			Description: "Get total revenue, number of transactions, average sale and best selling items for a period.",
			Parameters: []repositories.ToolParameter{
				{
					Name:        "period",
					Type:        repositories.ParamString,
					Description: "Reporting period. Defaults to all.",
					Enum:        []string{"today", "week", "month", "all"},
				},
			},
		},
		{
			Name:        ToolSearchProducts,
			Description: "Search products by part of their name and return price and stock.",
			Parameters: []repositories.ToolParameter{
				{
					Name:        "query",
					Type:        repositories.ParamString,
					Description: "Part of the product name, e.g. cement or plywood.",
					Required:    true,
					MaxLength:   64,
				},
			},
		},
		{
			Name:        ToolCustomerBalance,
			Description: "Look up a customer's outstanding balance (utang) from the ledger.",
			Parameters: []repositories.ToolParameter{
				{
					Name:        "customerName",
					Type:        repositories.ParamString,
					Description: "Full or partial customer name.",
					Required:    true,
					MaxLength:   64,
				},
			},
		},
	}
}

// validateArgs checks args against params and returns a copy with strings
// trimmed and numbers normalised to float64. Unknown arguments are ignored.
func validateArgs(args map[string]any, params []repositories.ToolParameter) (map[string]any, error) {
	clean := make(map[string]any, len(params))

	for _, p := range params {
		raw, ok := args[p.Name]
		if !ok || raw == nil {
			if p.Required {
				return nil, fmt.Errorf("missing required field: %s", p.Name)
			}
			continue
		}

		switch p.Type {
		case repositories.ParamString:
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("field %s: expected string but got %T", p.Name, raw)
			}
			s = strings.TrimSpace(s)
			if s == "" {
				if p.Required {
					return nil, fmt.Errorf("field %s: must not be empty", p.Name)
				}
				continue
			}
			if p.MaxLength > 0 && len([]rune(s)) > p.MaxLength {
				return nil, fmt.Errorf("field %s: longer than %d characters", p.Name, p.MaxLength)
			}
			if len(p.Enum) > 0 && !containsFold(p.Enum, s) {
				return nil, fmt.Errorf("field %s: must be one of %s", p.Name, strings.Join(p.Enum, ", "))
			}
			clean[p.Name] = s

		case repositories.ParamNumber, repositories.ParamInteger:
			n, ok := toFloat(raw)
			if !ok {
				return nil, fmt.Errorf("field %s: expected %s but got %T", p.Name, p.Type, raw)
			}
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return nil, fmt.Errorf("field %s: must be finite", p.Name)
			}
			if p.Type == repositories.ParamInteger && math.Trunc(n) != n {
				return nil, fmt.Errorf("field %s: expected integer", p.Name)
			}
			if p.Min != nil && n < *p.Min {
				return nil, fmt.Errorf("field %s: must be at least %v", p.Name, *p.Min)
			}
			if p.Max != nil && n > *p.Max {
				return nil, fmt.Errorf("field %s: must be at most %v", p.Name, *p.Max)
			}
			clean[p.Name] = n

		case repositories.ParamBoolean:
			b, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("field %s: expected boolean but got %T", p.Name, raw)
			}
			clean[p.Name] = b

		default:
			return nil, fmt.Errorf("unsupported schema type %q", p.Type)
		}
	}

	return clean, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
