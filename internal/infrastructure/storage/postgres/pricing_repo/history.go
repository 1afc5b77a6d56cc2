package pricing_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"listino/internal/core/apperror"
	"listino/internal/core/id"
	"listino/internal/domain/pricing"
	"listino/internal/infrastructure/storage/postgres"
)

const (
	purchaseDocsTable  = "purchase_documents"
	purchaseLinesTable = "purchase_document_lines"
)

var _ pricing.DocumentHistory = (*DocumentHistoryRepo)(nil)

// DocumentHistoryRepo reads posted purchase document lines for price list
// generation. Lines are streamed row by row so a wide analysis window never
// materializes in memory.
type DocumentHistoryRepo struct {
	txm *postgres.TxManager
}

// NewDocumentHistoryRepo creates the purchase history repository.
func NewDocumentHistoryRepo(txm *postgres.TxManager) *DocumentHistoryRepo {
	return &DocumentHistoryRepo{txm: txm}
}

// StreamPurchaseLines walks the supplier's posted purchase lines inside the
// window in document-date order and invokes fn per line. An fn error aborts
// the stream and is returned unchanged.
func (r *DocumentHistoryRepo) StreamPurchaseLines(ctx context.Context, supplierID id.ID, from, to time.Time, fn func(pricing.PurchaseLine) error) error {
	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("l.product_id", "l.price", "l.quantity", "d.document_date").
		From(purchaseLinesTable + " l").
		Join(purchaseDocsTable + " d ON d.id = l.document_id").
		Where(squirrel.Eq{"d.supplier_id": supplierID}).
		Where(squirrel.Eq{"d.posted": true}).
		Where(squirrel.GtOrEq{"d.document_date": from}).
		Where(squirrel.LtOrEq{"d.document_date": to}).
		OrderBy("d.document_date ASC", "l.line_number ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	rows, err := r.txm.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return apperror.NewPersistence("stream purchase lines", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line pricing.PurchaseLine
		if err := rows.Scan(&line.ProductID, &line.Price, &line.Quantity, &line.Date); err != nil {
			return apperror.NewPersistence("scan purchase line", err)
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return apperror.NewPersistence("stream purchase lines", err)
	}
	return nil
}
