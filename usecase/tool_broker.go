package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

const (
	defaultLowStockThreshold = 50
	defaultQueryTimeout      = 5 * time.Second
	topItemsLimit            = 5
)

// ToolBrokerConfig tunes the business queries
type ToolBrokerConfig struct {
	LowStockThreshold float64
	QueryTimeout      time.Duration
	// Now is overridable for tests
	Now func() time.Time
}

type toolHandler func(ctx context.Context, args map[string]any) (map[string]any, error)

// ToolBroker executes model tool calls against the store
type ToolBroker struct {
	store    repositories.StoreReader
	config   ToolBrokerConfig
	logger   *zap.Logger
	manifest []repositories.ToolDeclaration
	handlers map[string]toolHandler
}

// NewToolBroker creates a new tool broker
func NewToolBroker(store repositories.StoreReader, config ToolBrokerConfig, logger *zap.Logger) *ToolBroker {
	if config.LowStockThreshold <= 0 {
		config.LowStockThreshold = defaultLowStockThreshold
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = defaultQueryTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	b := &ToolBroker{
		store:    store,
		config:   config,
		logger:   logger,
		manifest: toolManifest(),
	}
	b.handlers = map[string]toolHandler{
		ToolInventorySummary: b.inventorySummary,
		ToolLowStockAlerts:   b.lowStockAlerts,
		ToolSalesPerformance: b.salesPerformance,
		ToolSearchProducts:   b.searchProducts,
		ToolCustomerBalance:  b.customerBalance,
	}
	return b
}

// Declarations returns the capability manifest sent when a session opens
func (b *ToolBroker) Declarations() []repositories.ToolDeclaration {
	return b.manifest
}

// Execute runs one tool call. It always returns exactly one result carrying
// the call's ID; failures are reported in the result's error field.
func (b *ToolBroker) Execute(ctx context.Context, call entities.ToolCall) (result entities.ToolResult) {
	result = entities.ToolResult{CallID: call.ID, Name: call.Name}
	logger := b.logger.With(zap.String("tool", call.Name), zap.String("callID", call.ID))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Tool handler panicked", zap.Any("panic", r))
			result.Fields = errorFields(fmt.Sprintf("internal error running %s", call.Name))
		}
	}()

	handler, ok := b.handlers[call.Name]
	if !ok {
		logger.Warn("Unknown tool requested")
		result.Fields = errorFields(fmt.Sprintf("unknown tool: %s", call.Name))
		return result
	}

	args, err := validateArgs(call.Args, b.paramsFor(call.Name))
	if err != nil {
		logger.Warn("Rejected tool arguments", zap.Error(err))
		result.Fields = errorFields(fmt.Sprintf("invalid arguments: %v", err))
		return result
	}

	queryCtx, cancel := context.WithTimeout(ctx, b.config.QueryTimeout)
	defer cancel()

	fields, err := handler(queryCtx, args)
	if err != nil {
		logger.Error("Tool query failed", zap.Error(err))
		result.Fields = errorFields(err.Error())
		return result
	}

	logger.Info("Tool call completed", zap.Duration("elapsed", time.Since(start)))
	result.Fields = fields
	return result
}

func (b *ToolBroker) paramsFor(name string) []repositories.ToolParameter {
	for _, decl := range b.manifest {
		if decl.Name == name {
			return decl.Parameters
		}
	}
	return nil
}

func errorFields(msg string) map[string]any {
	return map[string]any{"error": msg}
}

func (b *ToolBroker) inventorySummary(ctx context.Context, _ map[string]any) (map[string]any, error) {
	products, err := b.store.ListProducts(ctx)
	if err != nil {
		return nil, domain.NewQueryError("list products", err)
	}

	lines := make([]string, 0, len(products))
	items := make([]map[string]any, 0, len(products))
	for _, p := range products {
		lines = append(lines, fmt.Sprintf("%s: %s %s", p.Name, formatQty(p.Stock), p.Unit))
		items = append(items, productFields(p))
	}

	return map[string]any{
		"summary": strings.Join(lines, ", "),
		"items":   items,
		"count":   len(products),
	}, nil
}

func (b *ToolBroker) lowStockAlerts(ctx context.Context, args map[string]any) (map[string]any, error) {
	threshold := b.config.LowStockThreshold
	if v, ok := args["threshold"].(float64); ok {
		threshold = v
	}

	products, err := b.store.ListLowStockProducts(ctx, threshold)
	if err != nil {
		return nil, domain.NewQueryError("list low stock products", err)
	}

	names := make([]string, 0, len(products))
	items := make([]map[string]any, 0, len(products))
	for _, p := range products {
		// strictly below
		if p.Stock >= threshold {
			continue
		}
		names = append(names, p.Name)
		items = append(items, productFields(p))
	}

	lowStock := "None"
	if len(names) > 0 {
		lowStock = strings.Join(names, ", ")
	}

	return map[string]any{
		"lowStockItems": lowStock,
		"items":         items,
		"threshold":     threshold,
		"count":         len(items),
	}, nil
}

func (b *ToolBroker) salesPerformance(ctx context.Context, args map[string]any) (map[string]any, error) {
	period := "all"
	if v, ok := args["period"].(string); ok {
		period = strings.ToLower(v)
	}

	since := periodStart(period, b.config.Now())
	sales, err := b.store.ListSales(ctx, since)
	if err != nil {
		return nil, domain.NewQueryError("list sales", err)
	}

	type itemTotal struct {
		name     string
		quantity float64
		revenue  float64
	}
	totals := make(map[string]*itemTotal)

	var revenue float64
	for _, sale := range sales {
		revenue += sale.Total
		for _, item := range sale.Items {
			t, ok := totals[item.Name]
			if !ok {
				t = &itemTotal{name: item.Name}
				totals[item.Name] = t
			}
			t.quantity += item.Quantity
			t.revenue += item.Subtotal
		}
	}

	ranked := make([]*itemTotal, 0, len(totals))
	for _, t := range totals {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].revenue != ranked[j].revenue {
			return ranked[i].revenue > ranked[j].revenue
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > topItemsLimit {
		ranked = ranked[:topItemsLimit]
	}

	topItems := make([]map[string]any, 0, len(ranked))
	for _, t := range ranked {
		topItems = append(topItems, map[string]any{
			"name":     t.name,
			"quantity": t.quantity,
			"revenue":  round2(t.revenue),
		})
	}

	var average float64
	if len(sales) > 0 {
		average = revenue / float64(len(sales))
	}

	return map[string]any{
		"period":           period,
		"totalRevenue":     round2(revenue),
		"transactionCount": len(sales),
		"averageSale":      round2(average),
		"topItems":         topItems,
	}, nil
}

func (b *ToolBroker) searchProducts(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)

	products, err := b.store.SearchProducts(ctx, query)
	if err != nil {
		return nil, domain.NewQueryError("search products", err)
	}

	matches := make([]map[string]any, 0, len(products))
	lines := make([]string, 0, len(products))
	for _, p := range products {
		matches = append(matches, productFields(p))
		lines = append(lines, fmt.Sprintf("%s: PHP %s per %s, %s in stock", p.Name, formatQty(p.Price), p.Unit, formatQty(p.Stock)))
	}

	summary := fmt.Sprintf("No products match %q", query)
	if len(lines) > 0 {
		summary = strings.Join(lines, "; ")
	}

	return map[string]any{
		"query":   query,
		"matches": matches,
		"count":   len(matches),
		"summary": summary,
	}, nil
}

func (b *ToolBroker) customerBalance(ctx context.Context, args map[string]any) (map[string]any, error) {
	name, _ := args["customerName"].(string)

	customers, err := b.store.SearchCustomers(ctx, name)
	if err != nil {
		return nil, domain.NewQueryError("search customers", err)
	}
	if len(customers) == 0 {
		return map[string]any{"error": fmt.Sprintf("no customer found matching %q", name)}, nil
	}

	customer := customers[0]
	for _, c := range customers {
		if strings.EqualFold(c.Name, name) {
			customer = c
			break
		}
	}

	txs, err := b.store.ListTransactions(ctx, customer.ID)
	if err != nil {
		return nil, domain.NewQueryError("list transactions", err)
	}

	var charges, deposits float64
	for _, tx := range txs {
		switch tx.Type {
		case entities.TransactionCharge:
			charges += tx.Amount
		case entities.TransactionDeposit:
			deposits += tx.Amount
		}
	}

	balance := round2(charges - deposits)
	fields := map[string]any{
		"customer":      customer.Name,
		"balance":       balance,
		"status":        balanceStatus(balance),
		"totalCharges":  round2(charges),
		"totalDeposits": round2(deposits),
	}

	if len(customers) > 1 {
		others := make([]string, 0, len(customers)-1)
		for _, c := range customers {
			if c.ID != customer.ID {
				others = append(others, c.Name)
			}
		}
		fields["otherMatches"] = others
	}

	return fields, nil
}

func balanceStatus(balance float64) string {
	switch {
	case balance > 0:
		return "debt"
	case balance < 0:
		return "credit"
	default:
		return "settled"
	}
}

func periodStart(period string, now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch period {
	case "today":
		return midnight
	case "week":
		return midnight.AddDate(0, 0, -6)
	case "month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	default:
		return time.Time{}
	}
}

func productFields(p entities.Product) map[string]any {
	return map[string]any{
		"name":     p.Name,
		"category": p.Category,
		"price":    p.Price,
		"stock":    p.Stock,
		"unit":     p.Unit,
	}
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
