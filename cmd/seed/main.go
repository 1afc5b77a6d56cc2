// Package main provides a CLI tool for seeding the database with demo data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"listino/internal/core/id"
	"listino/internal/domain/pricing"
	"listino/internal/infrastructure/storage/postgres"
	"listino/internal/infrastructure/storage/postgres/pricing_repo"
	"listino/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	poolCfg := postgres.DefaultPoolConfig(dbURL)
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	productIDs, err := seedCatalog(ctx, pool, log)
	if err != nil {
		log.Fatalw("failed to seed catalog", "error", err)
	}

	if os.Getenv("SEED_DEMO_DATA") == "true" {
		if err := seedPurchaseHistory(ctx, pool, log, productIDs); err != nil {
			log.Fatalw("failed to seed purchase history", "error", err)
		}
		if err := seedPriceLists(ctx, pool, log, productIDs); err != nil {
			log.Fatalw("failed to seed price lists", "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

// seedCatalog inserts VAT rates, products and unit conversions. Re-runs are
// safe: existing rows are left alone and their IDs reused.
func seedCatalog(ctx context.Context, pool *postgres.Pool, log *logger.Logger) (map[string]id.ID, error) {
	vatRates := []struct {
		id         string
		name       string
		percentage string
	}{
		{"vat-standard", "IVA ordinaria", "22"},
		{"vat-reduced", "IVA ridotta", "10"},
		{"vat-zero", "Esente", "0"},
	}

	for _, v := range vatRates {
		_, err := pool.Exec(ctx, `
			INSERT INTO vat_rates (id, name, percentage)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, v.id, v.name, v.percentage)
		if err != nil {
			log.Warnw("failed to seed vat rate", "id", v.id, "error", err)
		}
	}

	products := []struct {
		code         string
		name         string
		category     string
		brand        string
		defaultPrice string
		vatRateID    string
		baseUnitID   string
	}{
		{"ESP-1000", "Espresso blend 1kg", "coffee", "Caffe Nord", "14.90", "vat-reduced", "PCS"},
		{"ESP-0250", "Espresso blend 250g", "coffee", "Caffe Nord", "4.50", "vat-reduced", "PCS"},
		{"GRN-2000", "Green beans 2kg", "coffee", "Caffe Nord", "21.00", "vat-reduced", "PCS"},
		{"CUP-0090", "Ceramic cup 90ml", "accessories", "Tazza", "6.80", "vat-standard", "PCS"},
		{"CUP-0180", "Ceramic cup 180ml", "accessories", "Tazza", "7.90", "vat-standard", "PCS"},
		{"MCH-LEV1", "Lever machine compact", "machines", "Breva", "449.00", "vat-standard", "PCS"},
		{"FLT-0058", "Filter basket 58mm", "spares", "Breva", "12.40", "vat-standard", "PCS"},
		{"SRV-INST", "On-site installation", "services", "", "80.00", "vat-standard", "PCS"},
	}

	productIDs := make(map[string]id.ID, len(products))
	for _, p := range products {
		prodID := id.New()
		tag, err := pool.Exec(ctx, `
			INSERT INTO products (id, code, name, category, brand, default_price, currency, vat_rate_id, base_unit_id)
			VALUES ($1, $2, $3, $4, $5, $6, 'EUR', $7, $8)
			ON CONFLICT (code) DO NOTHING
		`, prodID, p.code, p.name, p.category, p.brand, p.defaultPrice, p.vatRateID, p.baseUnitID)
		if err != nil {
			log.Warnw("failed to seed product", "code", p.code, "error", err)
			continue
		}
		if tag.RowsAffected() == 0 {
			err = pool.QueryRow(ctx,
				`SELECT id FROM products WHERE code = $1`, p.code,
			).Scan(&prodID)
			if err != nil {
				log.Warnw("failed to fetch existing product", "code", p.code, "error", err)
				continue
			}
		}
		productIDs[p.code] = prodID
	}

	// Case packs for the items that ship boxed.
	conversions := []struct {
		productCode string
		fromUnit    string
		toUnit      string
		factor      string
	}{
		{"ESP-0250", "BOX", "PCS", "24"},
		{"CUP-0090", "BOX", "PCS", "6"},
		{"CUP-0180", "BOX", "PCS", "6"},
		{"FLT-0058", "BOX", "PCS", "10"},
	}

	for _, c := range conversions {
		prodID, ok := productIDs[c.productCode]
		if !ok {
			continue
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO unit_conversions (id, product_id, from_unit_id, to_unit_id, factor)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (product_id, from_unit_id, to_unit_id) DO NOTHING
		`, id.New(), prodID, c.fromUnit, c.toUnit, c.factor)
		if err != nil {
			log.Warnw("failed to seed unit conversion", "product", c.productCode, "error", err)
		}
	}

	log.Infow("catalog seeded", "products", len(productIDs))
	return productIDs, nil
}

// seedPurchaseHistory inserts a posted purchase document per month for the
// last quarter so price list generation has supplier history to average over.
func seedPurchaseHistory(ctx context.Context, pool *postgres.Pool, log *logger.Logger, productIDs map[string]id.ID) error {
	supplierID := id.MustParse("019791f0-0000-7000-8000-000000000001")

	purchases := []struct {
		productCode string
		price       string
		quantity    string
	}{
		{"ESP-1000", "9.20", "40"},
		{"ESP-0250", "2.70", "120"},
		{"GRN-2000", "13.50", "25"},
		{"CUP-0090", "3.40", "60"},
	}

	for month := 0; month < 3; month++ {
		docDate := time.Now().UTC().AddDate(0, -month, 0)
		docID := id.New()

		tag, err := pool.Exec(ctx, `
			INSERT INTO purchase_documents (id, supplier_id, document_date, posted)
			SELECT $1, $2, $3, true
			WHERE NOT EXISTS (
				SELECT 1 FROM purchase_documents
				WHERE supplier_id = $2 AND document_date::date = $3::date
			)
		`, docID, supplierID, docDate)
		if err != nil {
			return fmt.Errorf("insert purchase document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			continue
		}

		for i, p := range purchases {
			prodID, ok := productIDs[p.productCode]
			if !ok {
				continue
			}
			_, err := pool.Exec(ctx, `
				INSERT INTO purchase_document_lines (id, document_id, line_number, product_id, price, quantity)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, id.New(), docID, i+1, prodID, p.price, p.quantity)
			if err != nil {
				return fmt.Errorf("insert purchase line: %w", err)
			}
		}
	}

	log.Info("purchase history seeded")
	return nil
}

// seedPriceLists creates a default retail list with entries and one party
// assignment, using the repositories so the rows match what the API writes.
func seedPriceLists(ctx context.Context, pool *postgres.Pool, log *logger.Logger, productIDs map[string]id.ID) error {
	var existing id.ID
	err := pool.QueryRow(ctx,
		`SELECT id FROM price_lists WHERE code = $1`, "PL-RETAIL",
	).Scan(&existing)
	if err == nil {
		log.Infow("demo price list already exists", "price_list_id", existing)
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check price list exists: %w", err)
	}

	txm := postgres.NewTxManager(pool)
	repo := pricing_repo.NewPriceListRepo(txm)

	list := pricing.NewPriceList("PL-RETAIL", "Listino al dettaglio", "EUR")
	list.Priority = 10
	list.IsDefault = true
	if err := repo.CreateList(ctx, list); err != nil {
		return fmt.Errorf("create price list: %w", err)
	}

	retailPrices := map[string]string{
		"ESP-1000": "14.90",
		"ESP-0250": "4.50",
		"GRN-2000": "21.00",
		"CUP-0090": "6.80",
		"CUP-0180": "7.90",
		"MCH-LEV1": "449.00",
		"FLT-0058": "12.40",
		"SRV-INST": "80.00",
	}

	entries := make([]pricing.PriceListEntry, 0, len(retailPrices))
	for code, price := range retailPrices {
		prodID, ok := productIDs[code]
		if !ok {
			continue
		}
		entries = append(entries, *pricing.NewPriceListEntry(
			list.ID, prodID, decimal.RequireFromString(price), "EUR",
		))
	}
	if err := repo.CreateEntries(ctx, entries); err != nil {
		return fmt.Errorf("create entries: %w", err)
	}

	// One wholesale customer with a flat discount on the retail list.
	partyID := id.MustParse("019791f0-0000-7000-8000-000000000002")
	assignment := pricing.NewPartyAssignment(list.ID, partyID)
	assignment.IsPrimary = true
	assignment.GlobalDiscountPercentage = decimal.NewFromInt(5)
	if err := repo.CreateAssignment(ctx, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}

	log.Infow("demo price list seeded",
		"price_list_id", list.ID,
		"entries", len(entries),
	)
	return nil
}
