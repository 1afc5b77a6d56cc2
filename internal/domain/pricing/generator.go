package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"listino/internal/core/apperror"
	"listino/internal/core/id"
	"listino/internal/core/tx"
	"listino/pkg/logger"
)

// CalculationStrategy selects how a generated price is derived from the
// observed purchase history of a product.
type CalculationStrategy string

const (
	StrategyLastPurchasePrice CalculationStrategy = "last_purchase_price"
	StrategyAveragePrice      CalculationStrategy = "average_price"
	StrategyLowestPrice       CalculationStrategy = "lowest_price"
	StrategyHighestPrice      CalculationStrategy = "highest_price"
	StrategyMostFrequentPrice CalculationStrategy = "most_frequent_price"
)

// Valid reports whether the strategy is a supported kind.
func (s CalculationStrategy) Valid() bool {
	switch s {
	case StrategyLastPurchasePrice, StrategyAveragePrice, StrategyLowestPrice,
		StrategyHighestPrice, StrategyMostFrequentPrice:
		return true
	}
	return false
}

// GenerationSource selects where generated prices come from.
type GenerationSource string

const (
	SourceDefaultPrices     GenerationSource = "default_prices"
	SourcePurchaseDocuments GenerationSource = "purchase_documents"
)

// GenerateRequest describes one price list generation run.
type GenerateRequest struct {
	Source GenerationSource

	// List describes the list to create. Code, Name, Currency, Priority,
	// Type, Direction, validity window and EventID are honored; status is
	// always active on creation.
	List PriceList

	// Default-price path.
	Filter ProductFilter

	// Purchase-document path.
	SupplierID *id.ID
	From       time.Time
	To         time.Time
	Strategy   CalculationStrategy

	// Shared transformation, applied after the source price is selected.
	MarkupPercentage decimal.Decimal
	Rounding         RoundingStrategy

	GeneratedBy string
}

// Validate checks the request per source path.
func (r *GenerateRequest) Validate() error {
	switch r.Source {
	case SourceDefaultPrices:
	case SourcePurchaseDocuments:
		if r.SupplierID == nil || id.IsNil(*r.SupplierID) {
			return apperror.NewValidation("supplier is required when generating from purchase documents")
		}
		if !r.Strategy.Valid() {
			return apperror.NewValidation(fmt.Sprintf("unknown calculation strategy %q", r.Strategy))
		}
		if !r.To.IsZero() && !r.From.IsZero() && r.To.Before(r.From) {
			return apperror.NewValidation("analysis window end precedes its start")
		}
	default:
		return apperror.NewValidation(fmt.Sprintf("unknown generation source %q", r.Source))
	}
	if r.MarkupPercentage.LessThan(decimal.NewFromInt(-100)) ||
		r.MarkupPercentage.GreaterThan(decimal.NewFromInt(1000)) {
		return apperror.NewValidation("markup percentage must be between -100 and 1000")
	}
	if r.Rounding != "" {
		if err := r.Rounding.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GeneratedLine is one product's computed price plus the statistics that
// produced it. On the default-price path the statistics describe the single
// observation.
type GeneratedLine struct {
	ProductID        id.ID           `json:"productId"`
	Occurrences      int             `json:"occurrences"`
	MinPrice         decimal.Decimal `json:"minPrice"`
	MaxPrice         decimal.Decimal `json:"maxPrice"`
	AveragePrice     decimal.Decimal `json:"averagePrice"`
	LastPurchaseDate *time.Time      `json:"lastPurchaseDate,omitempty"`
	SelectedPrice    decimal.Decimal `json:"selectedPrice"`
	FinalPrice       decimal.Decimal `json:"finalPrice"`
}

// GenerationPreview is the dry-run outcome of a generation request.
type GenerationPreview struct {
	Lines              []GeneratedLine `json:"lines"`
	DocumentsProcessed int             `json:"documentsProcessed"`
	ProductsProcessed  int             `json:"productsProcessed"`
}

// GenerationResult reports a persisted generation run.
type GenerationResult struct {
	List     *PriceList          `json:"list"`
	Entries  int                 `json:"entries"`
	Metadata *GenerationMetadata `json:"metadata"`
}

// productStats accumulates streaming purchase observations for one product.
// The stream is never materialized; only these aggregates are held.
type productStats struct {
	count     int
	min       decimal.Decimal
	max       decimal.Decimal
	sum       decimal.Decimal
	last      decimal.Decimal
	lastDate  time.Time
	freq      map[string]int
	freqLast  map[string]time.Time
	freqPrice map[string]decimal.Decimal
}

func newProductStats() *productStats {
	return &productStats{
		freq:      make(map[string]int),
		freqLast:  make(map[string]time.Time),
		freqPrice: make(map[string]decimal.Decimal),
	}
}

func (s *productStats) observe(line PurchaseLine) {
	if s.count == 0 || line.Price.LessThan(s.min) {
		s.min = line.Price
	}
	if s.count == 0 || line.Price.GreaterThan(s.max) {
		s.max = line.Price
	}
	s.sum = s.sum.Add(line.Price)
	s.count++
	if !line.Date.Before(s.lastDate) {
		s.lastDate = line.Date
		s.last = line.Price
	}
	key := line.Price.String()
	s.freq[key]++
	s.freqPrice[key] = line.Price
	if line.Date.After(s.freqLast[key]) {
		s.freqLast[key] = line.Date
	}
}

func (s *productStats) average() decimal.Decimal {
	if s.count == 0 {
		return decimal.Zero
	}
	return s.sum.Div(decimal.NewFromInt(int64(s.count)))
}

// mostFrequent returns the price observed most often; on a tie the most
// recently observed price wins.
func (s *productStats) mostFrequent() decimal.Decimal {
	var best decimal.Decimal
	bestCount := 0
	var bestDate time.Time
	for key, n := range s.freq {
		if n > bestCount || (n == bestCount && s.freqLast[key].After(bestDate)) {
			bestCount = n
			bestDate = s.freqLast[key]
			best = s.freqPrice[key]
		}
	}
	return best
}

func (s *productStats) selectPrice(strategy CalculationStrategy) decimal.Decimal {
	switch strategy {
	case StrategyLastPurchasePrice:
		return s.last
	case StrategyAveragePrice:
		return s.average()
	case StrategyLowestPrice:
		return s.min
	case StrategyHighestPrice:
		return s.max
	case StrategyMostFrequentPrice:
		return s.mostFrequent()
	}
	return s.last
}

// Generator builds price lists from catalog default prices or from purchase
// document history.
type Generator struct {
	repo    Repository
	catalog CatalogFacts
	history DocumentHistory
	txm     tx.Manager
}

// NewGenerator creates a price list generator. history may be nil when the
// purchase-document path is not wired.
func NewGenerator(repo Repository, catalog CatalogFacts, history DocumentHistory, txm tx.Manager) *Generator {
	return &Generator{repo: repo, catalog: catalog, history: history, txm: txm}
}

// Preview computes the generated lines without creating anything. An empty
// analysis window yields an empty preview, not an error.
func (g *Generator) Preview(ctx context.Context, req GenerateRequest) (*GenerationPreview, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return g.computeLines(ctx, req)
}

// Generate runs the same computation as Preview and persists the list, its
// entries and the generation metadata in one transaction. A request carrying
// an existing list ID regenerates that list: its entries are replaced and
// the metadata record is upserted.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	preview, err := g.computeLines(ctx, req)
	if err != nil {
		return nil, err
	}

	list := req.List
	replacing := list.ID != id.Nil()
	if replacing {
		// Regenerating into an existing list keeps the list itself and
		// replaces its entries.
		current, err := g.repo.GetList(ctx, list.ID)
		if err != nil {
			return nil, err
		}
		list = *current
	} else {
		created := NewPriceList(list.Code, list.Name, list.Currency)
		created.ValidFrom = list.ValidFrom
		created.ValidTo = list.ValidTo
		created.Priority = list.Priority
		created.EventID = list.EventID
		if list.Type != "" {
			created.Type = list.Type
		}
		if list.Direction != "" {
			created.Direction = list.Direction
		}
		list = *created
		list.Status = StatusActive
		if err := list.Validate(ctx); err != nil {
			return nil, err
		}
	}

	entries := make([]PriceListEntry, 0, len(preview.Lines))
	for _, line := range preview.Lines {
		e := NewPriceListEntry(list.ID, line.ProductID, line.FinalPrice, list.Currency)
		entries = append(entries, *e)
	}

	meta := &GenerationMetadata{
		PriceListID:         list.ID,
		CalculationStrategy: req.Strategy,
		RoundingStrategy:    req.Rounding,
		MarkupPercentage:    req.MarkupPercentage,
		DocumentsProcessed:  preview.DocumentsProcessed,
		ProductsProcessed:   preview.ProductsProcessed,
		GeneratedBy:         req.GeneratedBy,
		GeneratedAt:         time.Now().UTC(),
	}
	if req.Source == SourcePurchaseDocuments {
		from, to := req.From, req.To
		meta.AnalysisFrom = &from
		meta.AnalysisTo = &to
	}

	err = g.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if replacing {
			if err := g.repo.DeleteEntriesForList(ctx, list.ID); err != nil {
				return err
			}
		} else if err := g.repo.CreateList(ctx, &list); err != nil {
			return err
		}
		if len(entries) > 0 {
			if err := g.repo.CreateEntries(ctx, entries); err != nil {
				return err
			}
		}
		return g.repo.SaveGenerationMetadata(ctx, meta)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "price list generated",
		"priceListId", list.ID,
		"source", string(req.Source),
		"entries", len(entries))

	return &GenerationResult{List: &list, Entries: len(entries), Metadata: meta}, nil
}

func (g *Generator) computeLines(ctx context.Context, req GenerateRequest) (*GenerationPreview, error) {
	switch req.Source {
	case SourcePurchaseDocuments:
		return g.linesFromHistory(ctx, req)
	default:
		return g.linesFromDefaults(ctx, req)
	}
}

func (g *Generator) linesFromDefaults(ctx context.Context, req GenerateRequest) (*GenerationPreview, error) {
	products, err := g.catalog.ListProducts(ctx, req.Filter)
	if err != nil {
		return nil, err
	}
	preview := &GenerationPreview{Lines: make([]GeneratedLine, 0, len(products))}
	for _, p := range products {
		final := finishPrice(p.DefaultPrice, req.MarkupPercentage, req.Rounding)
		preview.Lines = append(preview.Lines, GeneratedLine{
			ProductID:     p.ID,
			Occurrences:   1,
			MinPrice:      p.DefaultPrice,
			MaxPrice:      p.DefaultPrice,
			AveragePrice:  p.DefaultPrice,
			SelectedPrice: p.DefaultPrice,
			FinalPrice:    final,
		})
	}
	preview.ProductsProcessed = len(preview.Lines)
	return preview, nil
}

func (g *Generator) linesFromHistory(ctx context.Context, req GenerateRequest) (*GenerationPreview, error) {
	if g.history == nil {
		return nil, apperror.NewValidation("purchase document history is not available")
	}

	stats := make(map[id.ID]*productStats)
	order := make([]id.ID, 0)
	documents := 0

	err := g.history.StreamPurchaseLines(ctx, *req.SupplierID, req.From, req.To, func(line PurchaseLine) error {
		s, ok := stats[line.ProductID]
		if !ok {
			s = newProductStats()
			stats[line.ProductID] = s
			order = append(order, line.ProductID)
		}
		s.observe(line)
		documents++
		return nil
	})
	if err != nil {
		return nil, err
	}

	preview := &GenerationPreview{
		Lines:              make([]GeneratedLine, 0, len(order)),
		DocumentsProcessed: documents,
	}
	for _, productID := range order {
		s := stats[productID]
		selected := s.selectPrice(req.Strategy)
		lastDate := s.lastDate
		preview.Lines = append(preview.Lines, GeneratedLine{
			ProductID:        productID,
			Occurrences:      s.count,
			MinPrice:         s.min,
			MaxPrice:         s.max,
			AveragePrice:     s.average(),
			LastPurchaseDate: &lastDate,
			SelectedPrice:    selected,
			FinalPrice:       finishPrice(selected, req.MarkupPercentage, req.Rounding),
		})
	}
	preview.ProductsProcessed = len(preview.Lines)
	return preview, nil
}

// finishPrice applies markup then rounding, the shared tail of both
// generation paths.
func finishPrice(price, markupPct decimal.Decimal, rounding RoundingStrategy) decimal.Decimal {
	out := price
	if !markupPct.IsZero() {
		out = applyMarkup(out, markupPct)
	}
	if rounding != "" {
		out = rounding.Apply(out)
	}
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}
