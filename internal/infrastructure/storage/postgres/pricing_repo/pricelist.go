// Package pricing_repo provides the PostgreSQL implementation of the pricing
// domain's persistence contracts.
package pricing_repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"listino/internal/core/apperror"
	"listino/internal/core/id"
	"listino/internal/domain/pricing"
	"listino/internal/infrastructure/storage/postgres"
)

const (
	listsTable       = "price_lists"
	entriesTable     = "price_list_entries"
	assignmentsTable = "price_party_assignments"
	generationsTable = "price_list_generations"
)

// Compile-time check against the domain contract.
var _ pricing.Repository = (*PriceListRepo)(nil)

// PriceListRepo persists price lists, entries and party assignments.
// All methods route through the TxManager so they join any transaction
// already open in the context.
type PriceListRepo struct {
	txm   *postgres.TxManager
	batch *postgres.BatchInserter

	listCols       []string
	entryCols      []string
	assignmentCols []string
	generationCols []string
}

// NewPriceListRepo creates the repository. Column lists are derived from the
// entities' db tags once, at construction.
func NewPriceListRepo(txm *postgres.TxManager) *PriceListRepo {
	return &PriceListRepo{
		txm:            txm,
		batch:          postgres.NewBatchInserter(txm),
		listCols:       postgres.ExtractDBColumns[pricing.PriceList](),
		entryCols:      postgres.ExtractDBColumns[pricing.PriceListEntry](),
		assignmentCols: postgres.ExtractDBColumns[pricing.PartyAssignment](),
		generationCols: postgres.ExtractDBColumns[pricing.GenerationMetadata](),
	}
}

func (r *PriceListRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// CreateList inserts a new price list using its db tags.
func (r *PriceListRepo) CreateList(ctx context.Context, list *pricing.PriceList) error {
	q := r.builder().
		Insert(listsTable).
		SetMap(postgres.StructToMap(list))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewPersistence("insert price list", err)
	}
	return nil
}

// UpdateList persists list changes with optimistic locking: the stored
// version must match the entity's previous version or the update is lost to
// a concurrent writer.
func (r *PriceListRepo) UpdateList(ctx context.Context, list *pricing.PriceList) error {
	data := postgres.StructToMap(list)
	delete(data, "id")
	delete(data, "version")
	delete(data, "created_at")
	delete(data, "created_by")

	// The entity was touched before the call, so the stored row still
	// carries version-1.
	expectedVersion := list.Version - 1

	q := r.builder().
		Update(listsTable).
		SetMap(data).
		Set("version", list.Version).
		Where(squirrel.Eq{"id": list.ID}).
		Where(squirrel.Eq{"version": expectedVersion})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewPersistence("update price list", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("price list", list.ID.String())
	}
	return nil
}

// GetList retrieves one list by ID.
func (r *PriceListRepo) GetList(ctx context.Context, listID id.ID) (*pricing.PriceList, error) {
	q := r.builder().
		Select(r.listCols...).
		From(listsTable).
		Where(squirrel.Eq{"id": listID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var list pricing.PriceList
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &list, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewPriceListNotFound(listID.String())
		}
		return nil, apperror.NewPersistence("get price list", err)
	}
	return &list, nil
}

// ListLists retrieves lists matching the query, newest first.
func (r *PriceListRepo) ListLists(ctx context.Context, query pricing.ListQuery) ([]pricing.PriceList, error) {
	q := r.builder().
		Select(r.listCols...).
		From(listsTable)

	q = r.applyScope(q, query.Scope)
	if len(query.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": query.Statuses})
	}
	if query.Type != "" {
		q = q.Where(squirrel.Eq{"type": query.Type})
	}
	if !query.IncludeExpired {
		q = q.Where(squirrel.NotEq{"status": pricing.StatusExpired})
		q = q.Where(squirrel.Or{
			squirrel.Eq{"valid_to": nil},
			squirrel.GtOrEq{"valid_to": time.Now().UTC()},
		})
	}
	if query.Search != "" {
		pattern := "%" + query.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"code": pattern},
		})
	}

	q = q.OrderBy("priority ASC", "created_at ASC")
	if query.Limit > 0 {
		q = q.Limit(uint64(query.Limit))
	}
	if query.Offset > 0 {
		q = q.Offset(uint64(query.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lists []pricing.PriceList
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &lists, sql, args...); err != nil {
		return nil, apperror.NewPersistence("list price lists", err)
	}
	return lists, nil
}

// GeneralLists returns active lists with no party assignment whose window
// contains the instant, in resolution order.
func (r *PriceListRepo) GeneralLists(ctx context.Context, scope pricing.Scope, at time.Time) ([]pricing.PriceList, error) {
	q := r.builder().
		Select(r.listCols...).
		From(listsTable).
		Where(squirrel.Eq{"status": pricing.StatusActive}).
		Where(squirrel.Expr(
			"NOT EXISTS (SELECT 1 FROM "+assignmentsTable+" a WHERE a.price_list_id = "+listsTable+".id)",
		)).
		Where(squirrel.Or{squirrel.Eq{"valid_from": nil}, squirrel.LtOrEq{"valid_from": at}}).
		Where(squirrel.Or{squirrel.Eq{"valid_to": nil}, squirrel.GtOrEq{"valid_to": at}}).
		OrderBy("priority ASC", "created_at ASC")

	q = r.applyScope(q, scope)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lists []pricing.PriceList
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &lists, sql, args...); err != nil {
		return nil, apperror.NewPersistence("general price lists", err)
	}
	return lists, nil
}

// ListsForParty returns the lists assigned to a party where both the list
// window and the assignment window contain the instant. Two queries instead
// of a join: both tables carry id/version/valid_from columns and the row
// volume per party is small. Ordering is left to the resolver, which knows
// about priority overrides.
func (r *PriceListRepo) ListsForParty(ctx context.Context, partyID id.ID, at time.Time) ([]pricing.PartyList, error) {
	aq := r.builder().
		Select(r.assignmentCols...).
		From(assignmentsTable).
		Where(squirrel.Eq{"business_party_id": partyID}).
		Where(squirrel.Or{squirrel.Eq{"valid_from": nil}, squirrel.LtOrEq{"valid_from": at}}).
		Where(squirrel.Or{squirrel.Eq{"valid_to": nil}, squirrel.GtOrEq{"valid_to": at}})

	sql, args, err := aq.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var assignments []pricing.PartyAssignment
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &assignments, sql, args...); err != nil {
		return nil, apperror.NewPersistence("assignments for party", err)
	}
	if len(assignments) == 0 {
		return nil, nil
	}

	listIDs := make([]id.ID, 0, len(assignments))
	for _, a := range assignments {
		listIDs = append(listIDs, a.PriceListID)
	}

	lq := r.builder().
		Select(r.listCols...).
		From(listsTable).
		Where(squirrel.Eq{"id": listIDs}).
		Where(squirrel.Eq{"status": pricing.StatusActive}).
		Where(squirrel.Or{squirrel.Eq{"valid_from": nil}, squirrel.LtOrEq{"valid_from": at}}).
		Where(squirrel.Or{squirrel.Eq{"valid_to": nil}, squirrel.GtOrEq{"valid_to": at}})

	sql, args, err = lq.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var lists []pricing.PriceList
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &lists, sql, args...); err != nil {
		return nil, apperror.NewPersistence("lists for party", err)
	}

	byID := make(map[id.ID]pricing.PriceList, len(lists))
	for _, l := range lists {
		byID[l.ID] = l
	}
	out := make([]pricing.PartyList, 0, len(assignments))
	for _, a := range assignments {
		list, ok := byID[a.PriceListID]
		if !ok {
			continue
		}
		out = append(out, pricing.PartyList{List: list, Assignment: a})
	}
	return out, nil
}

// copyThreshold is the entry count above which CreateEntries switches from a
// multi-row INSERT to the COPY protocol. Squirrel placeholders cap out at
// 65535 parameters, and generated or duplicated lists routinely carry
// thousands of entries.
const copyThreshold = 500

// CreateEntries inserts entries in one multi-row statement, or via COPY when
// the batch is large and a transaction is open.
func (r *PriceListRepo) CreateEntries(ctx context.Context, entries []pricing.PriceListEntry) error {
	if len(entries) == 0 {
		return nil
	}

	if len(entries) >= copyThreshold && r.txm.GetTx(ctx) != nil {
		rows := make([][]any, len(entries))
		for i := range entries {
			data := postgres.StructToMap(&entries[i])
			values := make([]any, len(r.entryCols))
			for j, col := range r.entryCols {
				values[j] = data[col]
			}
			rows[i] = values
		}
		if _, err := r.batch.CopyFromSlice(ctx, entriesTable, r.entryCols, rows); err != nil {
			return apperror.NewPersistence("copy price list entries", err)
		}
		return nil
	}

	q := r.builder().
		Insert(entriesTable).
		Columns(r.entryCols...)
	for i := range entries {
		data := postgres.StructToMap(&entries[i])
		values := make([]any, len(r.entryCols))
		for j, col := range r.entryCols {
			values[j] = data[col]
		}
		q = q.Values(values...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewPersistence("insert price list entries", err)
	}
	return nil
}

// UpdateEntry persists one entry with optimistic locking.
func (r *PriceListRepo) UpdateEntry(ctx context.Context, entry *pricing.PriceListEntry) error {
	data := postgres.StructToMap(entry)
	delete(data, "id")
	delete(data, "version")

	q := r.builder().
		Update(entriesTable).
		SetMap(data).
		Set("version", entry.Version).
		Where(squirrel.Eq{"id": entry.ID}).
		Where(squirrel.Eq{"version": entry.Version - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewPersistence("update price list entry", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("price list entry", entry.ID.String())
	}
	return nil
}

// DeleteEntriesForList removes every entry of one list. Deleting from an
// empty list is not an error.
func (r *PriceListRepo) DeleteEntriesForList(ctx context.Context, listID id.ID) error {
	q := r.builder().
		Delete(entriesTable).
		Where(squirrel.Eq{"price_list_id": listID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewPersistence("delete price list entries", err)
	}
	return nil
}

// EntriesForList retrieves every entry of one list.
func (r *PriceListRepo) EntriesForList(ctx context.Context, listID id.ID) ([]pricing.PriceListEntry, error) {
	q := r.builder().
		Select(r.entryCols...).
		From(entriesTable).
		Where(squirrel.Eq{"price_list_id": listID}).
		OrderBy("product_id", "min_quantity")

	return r.selectEntries(ctx, q)
}

// EntriesForProduct retrieves one product's entries within a list. The
// resolver filters by status and quantity tier itself; all rows come back.
func (r *PriceListRepo) EntriesForProduct(ctx context.Context, listID, productID id.ID) ([]pricing.PriceListEntry, error) {
	q := r.builder().
		Select(r.entryCols...).
		From(entriesTable).
		Where(squirrel.Eq{"price_list_id": listID}).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("min_quantity")

	return r.selectEntries(ctx, q)
}

func (r *PriceListRepo) selectEntries(ctx context.Context, q squirrel.SelectBuilder) ([]pricing.PriceListEntry, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var entries []pricing.PriceListEntry
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, apperror.NewPersistence("select entries", err)
	}
	return entries, nil
}

// CreateAssignment inserts a party assignment.
func (r *PriceListRepo) CreateAssignment(ctx context.Context, a *pricing.PartyAssignment) error {
	q := r.builder().
		Insert(assignmentsTable).
		SetMap(postgres.StructToMap(a))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewPersistence("insert party assignment", err)
	}
	return nil
}

// RemoveAssignment deletes one assignment.
func (r *PriceListRepo) RemoveAssignment(ctx context.Context, assignmentID id.ID) error {
	q := r.builder().
		Delete(assignmentsTable).
		Where(squirrel.Eq{"id": assignmentID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewPersistence("delete party assignment", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("party assignment", assignmentID.String())
	}
	return nil
}

// AssignmentsForList retrieves the assignments of one list.
func (r *PriceListRepo) AssignmentsForList(ctx context.Context, listID id.ID) ([]pricing.PartyAssignment, error) {
	q := r.builder().
		Select(r.assignmentCols...).
		From(assignmentsTable).
		Where(squirrel.Eq{"price_list_id": listID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []pricing.PartyAssignment
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, apperror.NewPersistence("assignments for list", err)
	}
	return out, nil
}

// AssignmentsForLists retrieves assignments for many lists in one query.
func (r *PriceListRepo) AssignmentsForLists(ctx context.Context, listIDs []id.ID) (map[id.ID][]pricing.PartyAssignment, error) {
	out := make(map[id.ID][]pricing.PartyAssignment, len(listIDs))
	if len(listIDs) == 0 {
		return out, nil
	}

	q := r.builder().
		Select(r.assignmentCols...).
		From(assignmentsTable).
		Where(squirrel.Eq{"price_list_id": listIDs})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []pricing.PartyAssignment
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, apperror.NewPersistence("assignments for lists", err)
	}
	for _, a := range rows {
		out[a.PriceListID] = append(out[a.PriceListID], a)
	}
	return out, nil
}

// SaveGenerationMetadata stores the generation record of a list. A list
// carries at most one record; regeneration overwrites it.
func (r *PriceListRepo) SaveGenerationMetadata(ctx context.Context, meta *pricing.GenerationMetadata) error {
	data := postgres.StructToMap(meta)

	cols := make([]string, 0, len(data))
	for col := range data {
		if col != "price_list_id" {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = EXCLUDED." + col
	}

	q := r.builder().
		Insert(generationsTable).
		SetMap(data).
		Suffix("ON CONFLICT (price_list_id) DO UPDATE SET " + strings.Join(sets, ", "))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewPersistence("save generation metadata", err)
	}
	return nil
}

// GetGenerationMetadata retrieves a list's generation record.
func (r *PriceListRepo) GetGenerationMetadata(ctx context.Context, listID id.ID) (*pricing.GenerationMetadata, error) {
	q := r.builder().
		Select(r.generationCols...).
		From(generationsTable).
		Where(squirrel.Eq{"price_list_id": listID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var meta pricing.GenerationMetadata
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &meta, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("generation metadata", listID.String())
		}
		return nil, apperror.NewPersistence("get generation metadata", err)
	}
	return &meta, nil
}

func (r *PriceListRepo) applyScope(q squirrel.SelectBuilder, scope pricing.Scope) squirrel.SelectBuilder {
	if scope.EventID != nil {
		q = q.Where(squirrel.Eq{"event_id": *scope.EventID})
	} else {
		q = q.Where(squirrel.Eq{"event_id": nil})
	}
	if scope.Direction != "" {
		q = q.Where(squirrel.Eq{"direction": scope.Direction})
	}
	return q
}
