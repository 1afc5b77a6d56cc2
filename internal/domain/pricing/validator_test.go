package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listino/internal/core/id"
)

func TestValidateEmptyScopeIsCritical(t *testing.T) {
	v := NewValidator(newFakeRepo())

	report, err := v.ValidatePrecedence(context.Background(), Scope{})
	require.NoError(t, err)

	assert.Equal(t, 0, report.ListsChecked)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, IssueNoPriceListsFound, report.Issues[0].Code)
	assert.Equal(t, SeverityCritical, report.Issues[0].Severity)
	assert.Nil(t, report.RecommendedDefaultID)
}

func TestValidateExpiredOnlyScope(t *testing.T) {
	repo := newFakeRepo()
	now := time.Now().UTC()

	old := NewPriceList("PL-OLD", "Last season", "EUR")
	old.ValidFrom = ptrTime(now.Add(-60 * 24 * time.Hour))
	old.ValidTo = ptrTime(now.Add(-30 * 24 * time.Hour))
	repo.addList(old)

	v := NewValidator(repo)
	report, err := v.ValidatePrecedence(context.Background(), Scope{})
	require.NoError(t, err)

	assert.True(t, report.HasIssue(IssueNoPriceListsFound))
	assert.True(t, report.HasIssue(IssueExpiredPriceListsOnly))
}

func TestValidateMultipleDefaults(t *testing.T) {
	repo := newFakeRepo()

	for i, name := range []string{"Winter", "Summer"} {
		l := NewPriceList("PL-"+name, name, "EUR")
		l.IsDefault = true
		l.Priority = i
		repo.addList(l)
	}

	v := NewValidator(repo)
	report, err := v.ValidatePrecedence(context.Background(), Scope{})
	require.NoError(t, err)

	require.True(t, report.HasIssue(IssueMultipleDefaultPriceLists))
	for _, issue := range report.Issues {
		if issue.Code == IssueMultipleDefaultPriceLists {
			assert.Equal(t, SeverityHigh, issue.Severity)
			assert.Len(t, issue.PriceListIDs, 2)
			assert.Len(t, issue.PriceListNames, 2)
		}
	}
}

func TestValidateNoDefaultRecommendsOne(t *testing.T) {
	repo := newFakeRepo()
	now := time.Now().UTC()

	second := NewPriceList("PL-B", "Backup", "EUR")
	second.Priority = 10
	second.CreatedAt = now.Add(-time.Hour)
	repo.addList(second)

	best := NewPriceList("PL-A", "Primary", "EUR")
	best.Priority = 1
	best.CreatedAt = now
	stored := repo.addList(best)

	v := NewValidator(repo)
	report, err := v.ValidatePrecedence(context.Background(), Scope{})
	require.NoError(t, err)

	assert.True(t, report.HasIssue(IssueNoDefaultPriceList))
	require.NotNil(t, report.RecommendedDefaultID)
	assert.Equal(t, stored.ID, *report.RecommendedDefaultID)
	assert.Equal(t, "Primary", report.RecommendedDefaultName)
}

func TestValidateDuplicatePriorities(t *testing.T) {
	repo := newFakeRepo()

	a := NewPriceList("PL-A", "Alfa", "EUR")
	a.Priority = 5
	a.IsDefault = true
	repo.addList(a)
	b := NewPriceList("PL-B", "Bravo", "EUR")
	b.Priority = 5
	repo.addList(b)

	v := NewValidator(repo)
	report, err := v.ValidatePrecedence(context.Background(), Scope{})
	require.NoError(t, err)

	assert.True(t, report.HasIssue(IssueDuplicatePriorities))
	// Equal priorities with open windows also overlap.
	assert.True(t, report.HasIssue(IssueOverlappingValidity))
}

func TestValidateOverridePriorityCollision(t *testing.T) {
	repo := newFakeRepo()

	a := NewPriceList("PL-A", "Alfa", "EUR")
	a.Priority = 1
	a.IsDefault = true
	repo.addList(a)

	b := NewPriceList("PL-B", "Bravo", "EUR")
	b.Priority = 20
	storedB := repo.addList(b)

	// The assignment drags Bravo onto Alfa's priority for one party.
	as := NewPartyAssignment(storedB.ID, id.New())
	as.OverridePriority = ptrInt(1)
	repo.assignments[storedB.ID] = []PartyAssignment{*as}

	v := NewValidator(repo)
	report, err := v.ValidatePrecedence(context.Background(), Scope{})
	require.NoError(t, err)

	assert.True(t, report.HasIssue(IssueDuplicatePriorities))
}

func TestValidateDisjointWindowsDoNotOverlap(t *testing.T) {
	repo := newFakeRepo()
	now := time.Now().UTC()

	a := NewPriceList("PL-A", "Current", "EUR")
	a.Priority = 5
	a.IsDefault = true
	a.ValidFrom = ptrTime(now.Add(-24 * time.Hour))
	a.ValidTo = ptrTime(now.Add(24 * time.Hour))
	repo.addList(a)

	b := NewPriceList("PL-B", "Next", "EUR")
	b.Priority = 5
	b.ValidFrom = ptrTime(now.Add(48 * time.Hour))
	repo.addList(b)

	v := NewValidator(repo)
	report, err := v.ValidatePrecedence(context.Background(), Scope{})
	require.NoError(t, err)

	// Only the current list is active now, so neither duplicate nor
	// overlap issues can fire.
	assert.False(t, report.HasIssue(IssueDuplicatePriorities))
	assert.False(t, report.HasIssue(IssueOverlappingValidity))
}

func TestWindowsOverlap(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)
	later := now.Add(time.Hour)

	assert.True(t, windowsOverlap(nil, nil, nil, nil))
	assert.True(t, windowsOverlap(&earlier, nil, nil, &later))
	assert.False(t, windowsOverlap(nil, &earlier, &later, nil))
	assert.False(t, windowsOverlap(&later, nil, nil, &earlier))
}
