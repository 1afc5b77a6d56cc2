package pricing

import (
	"context"
	"fmt"
	"time"

	"listino/internal/core/apperror"
	"listino/internal/core/id"
	"listino/internal/core/numerator"
	"listino/internal/core/tx"
	"listino/internal/domain/audit"
	"listino/pkg/logger"
)

// Service owns price list lifecycle and entry/assignment maintenance.
// Resolution, validation, bulk updates and generation live in their own
// components; the service is the write boundary they all invalidate through.
type Service struct {
	repo    Repository
	txm     tx.Manager
	cache   *ResolutionCache
	numbers numerator.Generator
}

// NewService creates the price list service. cache and numbers may be nil;
// without a numerator, lists must carry an explicit code.
func NewService(repo Repository, txm tx.Manager, cache *ResolutionCache, numbers numerator.Generator) *Service {
	return &Service{repo: repo, txm: txm, cache: cache, numbers: numbers}
}

// CreateList validates and persists a new price list.
func (s *Service) CreateList(ctx context.Context, list *PriceList) error {
	// Generate code if not provided
	if list.Code == "" && s.numbers != nil {
		code, err := s.numbers.GetNextNumber(ctx, numerator.DefaultConfig("PL"), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		list.Code = code
	}
	if err := list.Validate(ctx); err != nil {
		return err
	}
	audit.EnrichCreatedBy(ctx, list)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.CreateList(ctx, list)
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "price list created", "priceListId", list.ID, "code", list.Code)
	return nil
}

// UpdateList validates and persists changes to an existing list. The stored
// status must allow the requested one; expired lists reject every change.
func (s *Service) UpdateList(ctx context.Context, list *PriceList) error {
	if err := list.Validate(ctx); err != nil {
		return err
	}
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetList(ctx, list.ID)
		if err != nil {
			return err
		}
		if err := current.CanTransition(list.Status); err != nil {
			return err
		}
		audit.EnrichUpdatedBy(ctx, list)
		list.Touch()
		return s.repo.UpdateList(ctx, list)
	})
	if err != nil {
		return err
	}
	s.invalidateList(ctx, list.ID)
	return nil
}

// GetList loads one price list with its generation metadata, when present.
func (s *Service) GetList(ctx context.Context, listID id.ID) (*PriceList, error) {
	list, err := s.repo.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	meta, err := s.repo.GetGenerationMetadata(ctx, listID)
	if err != nil && !apperror.IsNotFound(err) {
		return nil, err
	}
	list.Generation = meta
	return list, nil
}

// ListLists returns price lists matching the query.
func (s *Service) ListLists(ctx context.Context, q ListQuery) ([]PriceList, error) {
	return s.repo.ListLists(ctx, q)
}

// ChangeStatus moves a list through its lifecycle. Expired is terminal.
func (s *Service) ChangeStatus(ctx context.Context, listID id.ID, to Status) (*PriceList, error) {
	var updated *PriceList
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		list, err := s.repo.GetList(ctx, listID)
		if err != nil {
			return err
		}
		if list.Status == to {
			updated = list
			return nil
		}
		if err := list.CanTransition(to); err != nil {
			return err
		}
		list.Status = to
		audit.EnrichUpdatedBy(ctx, list)
		list.Touch()
		if err := s.repo.UpdateList(ctx, list); err != nil {
			return err
		}
		updated = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateList(ctx, listID)
	logger.Info(ctx, "price list status changed", "priceListId", listID, "status", string(to))
	return updated, nil
}

// AddEntries validates and persists new entries for a list.
func (s *Service) AddEntries(ctx context.Context, listID id.ID, entries []PriceListEntry) error {
	if len(entries) == 0 {
		return apperror.NewValidation("at least one entry is required")
	}
	for i := range entries {
		entries[i].PriceListID = listID
		if err := entries[i].Validate(ctx); err != nil {
			return err
		}
	}
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetList(ctx, listID); err != nil {
			return err
		}
		return s.repo.CreateEntries(ctx, entries)
	})
	if err != nil {
		return err
	}
	for _, e := range entries {
		s.invalidateProduct(e.ProductID)
	}
	return nil
}

// UpdateEntry validates and persists one entry.
func (s *Service) UpdateEntry(ctx context.Context, entry *PriceListEntry) error {
	if err := entry.Validate(ctx); err != nil {
		return err
	}
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		entry.Touch()
		return s.repo.UpdateEntry(ctx, entry)
	})
	if err != nil {
		return err
	}
	s.invalidateProduct(entry.ProductID)
	return nil
}

// EntriesForList returns every entry of a list.
func (s *Service) EntriesForList(ctx context.Context, listID id.ID) ([]PriceListEntry, error) {
	return s.repo.EntriesForList(ctx, listID)
}

// AssignParty attaches a business party to a list.
func (s *Service) AssignParty(ctx context.Context, a *PartyAssignment) error {
	if err := a.Validate(ctx); err != nil {
		return err
	}
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetList(ctx, a.PriceListID); err != nil {
			return err
		}
		return s.repo.CreateAssignment(ctx, a)
	})
	if err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

// RemoveAssignment detaches a party from a list.
func (s *Service) RemoveAssignment(ctx context.Context, assignmentID id.ID) error {
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.RemoveAssignment(ctx, assignmentID)
	})
	if err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

// AssignmentsForList returns the party assignments of a list.
func (s *Service) AssignmentsForList(ctx context.Context, listID id.ID) ([]PartyAssignment, error) {
	return s.repo.AssignmentsForList(ctx, listID)
}

// invalidateList drops every cached resolution that could involve the list.
// Entries are not loaded for precision; a list-level write is rare enough
// that a full flush is acceptable.
func (s *Service) invalidateList(ctx context.Context, listID id.ID) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateAll()
	logger.Debug(ctx, "resolution cache flushed", "priceListId", listID)
}

func (s *Service) invalidateProduct(productID id.ID) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateProduct(productID)
}

func (s *Service) invalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateAll()
	logger.Debug(ctx, "resolution cache flushed")
}
