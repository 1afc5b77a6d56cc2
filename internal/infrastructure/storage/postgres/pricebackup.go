package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "listino/internal/core/context"
	"listino/internal/core/id"
	"listino/internal/domain/pricing"
)

// CompressionAlgo specifies the compression algorithm used for a backup row.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// PriceBackupEntry is one stored snapshot of prices as they were before a
// mass overwrite (bulk update or apply-to-products).
type PriceBackupEntry struct {
	ID                id.ID           `db:"id"`
	Reason            string          `db:"reason"`
	UserID            string          `db:"user_id"`
	ChangeCount       int             `db:"change_count"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// Compile-time check that the service implements the domain port.
var _ pricing.BackupLog = (*PriceBackupService)(nil)

// PriceBackupService persists prior prices before mass overwrites so they can
// be inspected or restored. Large change sets are zstd-compressed.
type PriceBackupService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewPriceBackupService creates a price backup service.
func NewPriceBackupService(txManager *TxManager) (*PriceBackupService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &PriceBackupService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024, // 10KB
	}, nil
}

// LogPriceChanges records the before/after prices of one overwrite run.
// Callers invoke it inside the same transaction as the overwrite, so the
// backup and the new prices commit or roll back together.
func (s *PriceBackupService) LogPriceChanges(ctx context.Context, reason string, changes []pricing.PriceChange) error {
	if len(changes) == 0 {
		return nil
	}

	payload, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal price changes: %w", err)
	}

	entry := PriceBackupEntry{
		ID:              id.New(),
		Reason:          reason,
		UserID:          appctx.GetUserID(ctx),
		ChangeCount:     len(changes),
		Changes:         payload,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}
	if len(payload) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(payload, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO price_backup (
			id, reason, user_id, change_count,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, sql,
		entry.ID, entry.Reason, entry.UserID, entry.ChangeCount,
		entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo,
		entry.CreatedAt,
	)
	return err
}

// History returns the most recent backup runs, newest first, with their
// change payloads decompressed.
func (s *PriceBackupService) History(ctx context.Context, limit int) ([]PriceBackupEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	sql := `
		SELECT id, reason, user_id, change_count,
			   changes, changes_compressed, compression_algo, created_at
		FROM price_backup
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("query price backup history: %w", err)
	}
	defer rows.Close()

	var entries []PriceBackupEntry
	for rows.Next() {
		var e PriceBackupEntry
		err := rows.Scan(
			&e.ID, &e.Reason, &e.UserID, &e.ChangeCount,
			&e.Changes, &e.ChangesCompressed, &e.CompressionAlgo, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan backup entry: %w", err)
		}
		if err := s.decompress(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ProductHistory returns the recorded price changes of one product, newest
// first. Each element is the change that one backup run captured.
func (s *PriceBackupService) ProductHistory(ctx context.Context, productID id.ID, limit int) ([]pricing.PriceChange, error) {
	entries, err := s.History(ctx, limit)
	if err != nil {
		return nil, err
	}

	var out []pricing.PriceChange
	for _, e := range entries {
		var changes []pricing.PriceChange
		if err := json.Unmarshal(e.Changes, &changes); err != nil {
			return nil, fmt.Errorf("unmarshal backup changes: %w", err)
		}
		for _, c := range changes {
			if c.ProductID == productID {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (s *PriceBackupService) decompress(e *PriceBackupEntry) error {
	if e.CompressionAlgo != CompressionZstd || len(e.ChangesCompressed) == 0 {
		return nil
	}
	decompressed, err := s.decoder.DecodeAll(e.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress backup changes: %w", err)
	}
	e.Changes = decompressed
	e.ChangesCompressed = nil
	return nil
}
