package pricing

import (
	"context"
	"time"

	"listino/internal/core/id"
)

// Scope narrows validation and fallback lookups. A nil EventID means the
// tenant-wide scope; Direction limits lists to one price flow.
type Scope struct {
	EventID   *id.ID
	Direction Direction
}

// ListQuery filters price-list listings.
type ListQuery struct {
	Scope          Scope
	Statuses       []Status
	Type           ListType
	IncludeExpired bool
	Search         string
	Limit          int
	Offset         int
}

// PartyList pairs a price list with the assignment that links it to a party.
type PartyList struct {
	List       PriceList
	Assignment PartyAssignment
}

// Repository is the persistence contract for price lists, entries and
// party assignments. The Postgres implementation lives in
// infrastructure/storage/postgres/pricing_repo.
type Repository interface {
	// --- price lists ---

	CreateList(ctx context.Context, list *PriceList) error
	// UpdateList persists list changes with optimistic locking.
	UpdateList(ctx context.Context, list *PriceList) error
	GetList(ctx context.Context, listID id.ID) (*PriceList, error)
	ListLists(ctx context.Context, q ListQuery) ([]PriceList, error)

	// GeneralLists returns lists valid at the given instant that carry no
	// party assignment, ordered by priority then creation time.
	GeneralLists(ctx context.Context, scope Scope, at time.Time) ([]PriceList, error)

	// ListsForParty returns lists assigned to the party whose list window
	// and assignment window both contain the instant.
	ListsForParty(ctx context.Context, partyID id.ID, at time.Time) ([]PartyList, error)

	// --- entries ---

	CreateEntries(ctx context.Context, entries []PriceListEntry) error
	UpdateEntry(ctx context.Context, entry *PriceListEntry) error
	// DeleteEntriesForList removes every entry of a list; regeneration
	// replaces the lines in place.
	DeleteEntriesForList(ctx context.Context, listID id.ID) error
	EntriesForList(ctx context.Context, listID id.ID) ([]PriceListEntry, error)
	// EntriesForProduct returns active entries of one list for one product.
	EntriesForProduct(ctx context.Context, listID, productID id.ID) ([]PriceListEntry, error)

	// --- party assignments ---

	CreateAssignment(ctx context.Context, a *PartyAssignment) error
	RemoveAssignment(ctx context.Context, assignmentID id.ID) error
	AssignmentsForList(ctx context.Context, listID id.ID) ([]PartyAssignment, error)
	// AssignmentsForLists is the bulk variant used by the precedence
	// validator; the result maps list ID to its assignments.
	AssignmentsForLists(ctx context.Context, listIDs []id.ID) (map[id.ID][]PartyAssignment, error)

	// --- generation metadata ---

	SaveGenerationMetadata(ctx context.Context, meta *GenerationMetadata) error
	GetGenerationMetadata(ctx context.Context, listID id.ID) (*GenerationMetadata, error)
}
