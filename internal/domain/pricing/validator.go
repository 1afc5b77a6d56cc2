package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"listino/internal/core/id"
)

// Severity ranks a precedence issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IssueCode identifies a class of precedence problem.
type IssueCode string

const (
	IssueNoPriceListsFound         IssueCode = "no_price_lists_found"
	IssueMultipleDefaultPriceLists IssueCode = "multiple_default_price_lists"
	IssueNoDefaultPriceList        IssueCode = "no_default_price_list"
	IssueDuplicatePriorities       IssueCode = "duplicate_priorities"
	IssueOverlappingValidity       IssueCode = "overlapping_validity_periods"
	IssueExpiredPriceListsOnly     IssueCode = "expired_price_lists_only"
)

// Issue is one advisory finding. The validator never mutates data and never
// fails on data-quality problems; a degraded scope is still a working scope.
type Issue struct {
	Code           IssueCode `json:"code"`
	Severity       Severity  `json:"severity"`
	PriceListIDs   []id.ID   `json:"priceListIds,omitempty"`
	PriceListNames []string  `json:"priceListNames,omitempty"`
	Impact         string    `json:"impact"`
	Suggestion     string    `json:"suggestion,omitempty"`
}

// ValidationReport is the outcome of one precedence audit.
type ValidationReport struct {
	CheckedAt time.Time `json:"checkedAt"`
	Scope     Scope     `json:"-"`

	ListsChecked int     `json:"listsChecked"`
	Issues       []Issue `json:"issues"`

	// RecommendedDefaultID is the list the resolver's fallback ordering
	// would pick as the best default; nil when none qualify.
	RecommendedDefaultID   *id.ID `json:"recommendedDefaultId,omitempty"`
	RecommendedDefaultName string `json:"recommendedDefaultName,omitempty"`
}

// HasIssue reports whether a code appears in the report.
func (r *ValidationReport) HasIssue(code IssueCode) bool {
	for _, i := range r.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

// Validator audits the price lists of a scope for precedence conflicts.
type Validator struct {
	repo Repository
}

// NewValidator creates a precedence validator.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo}
}

// ValidatePrecedence scans all price lists in scope and reports conflicts:
// missing or multiple defaults, duplicate priorities, overlapping validity
// windows with equal priority, and all-expired scopes.
func (v *Validator) ValidatePrecedence(ctx context.Context, scope Scope) (*ValidationReport, error) {
	now := time.Now().UTC()
	report := &ValidationReport{CheckedAt: now, Scope: scope, Issues: []Issue{}}

	all, err := v.repo.ListLists(ctx, ListQuery{Scope: scope, IncludeExpired: true})
	if err != nil {
		return nil, err
	}
	report.ListsChecked = len(all)

	var active []PriceList
	for _, l := range all {
		if l.ValidAt(now) {
			active = append(active, l)
		}
	}

	if len(active) == 0 {
		report.Issues = append(report.Issues, Issue{
			Code:       IssueNoPriceListsFound,
			Severity:   SeverityCritical,
			Impact:     "no active price list in scope; every resolution falls through to product default prices",
			Suggestion: "activate an existing list or create one covering the current period",
		})
		if len(all) > 0 && allExpired(all, now) {
			report.Issues = append(report.Issues, expiredOnlyIssue(all))
		}
		return report, nil
	}

	v.checkDefaults(report, active)
	assignments, err := v.repo.AssignmentsForLists(ctx, listIDs(active))
	if err != nil {
		return nil, err
	}
	v.checkPriorities(report, active, assignments)
	v.checkOverlaps(report, active)

	// Recommend a default using the resolver's general-list ordering.
	ordered := make([]PriceList, len(active))
	copy(ordered, active)
	sortGeneralLists(ordered)
	best := ordered[0]
	report.RecommendedDefaultID = &best.ID
	report.RecommendedDefaultName = best.Name

	return report, nil
}

func (v *Validator) checkDefaults(report *ValidationReport, active []PriceList) {
	var defaults []PriceList
	for _, l := range active {
		if l.IsDefault {
			defaults = append(defaults, l)
		}
	}
	switch {
	case len(defaults) > 1:
		report.Issues = append(report.Issues, Issue{
			Code:           IssueMultipleDefaultPriceLists,
			Severity:       SeverityHigh,
			PriceListIDs:   listIDs(defaults),
			PriceListNames: listNames(defaults),
			Impact:         fmt.Sprintf("%d lists are flagged default simultaneously; the winner depends on priority ordering alone", len(defaults)),
			Suggestion:     "keep exactly one default per scope; lower-priority duplicates should drop the flag",
		})
	case len(defaults) == 0:
		report.Issues = append(report.Issues, Issue{
			Code:       IssueNoDefaultPriceList,
			Severity:   SeverityMedium,
			Impact:     "no default list; products missing from every list resolve to their stored default price",
			Suggestion: "flag the recommended list as default",
		})
	}
}

func (v *Validator) checkPriorities(report *ValidationReport, active []PriceList, assignments map[id.ID][]PartyAssignment) {
	// Effective priorities per list: its own, plus any party overrides.
	byPriority := make(map[int][]PriceList)
	for _, l := range active {
		seen := map[int]bool{l.Priority: true}
		byPriority[l.Priority] = append(byPriority[l.Priority], l)
		for _, a := range assignments[l.ID] {
			if a.OverridePriority != nil && !seen[*a.OverridePriority] {
				seen[*a.OverridePriority] = true
				byPriority[*a.OverridePriority] = append(byPriority[*a.OverridePriority], l)
			}
		}
	}

	priorities := make([]int, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)

	for _, p := range priorities {
		group := byPriority[p]
		if len(group) < 2 {
			continue
		}
		report.Issues = append(report.Issues, Issue{
			Code:           IssueDuplicatePriorities,
			Severity:       SeverityLow,
			PriceListIDs:   listIDs(group),
			PriceListNames: listNames(group),
			Impact:         fmt.Sprintf("%d lists share effective priority %d; ties fall back to creation order", len(group), p),
			Suggestion:     "assign distinct priorities so the winner is explicit",
		})
	}
}

func (v *Validator) checkOverlaps(report *ValidationReport, active []PriceList) {
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			a, b := active[i], active[j]
			if a.Priority != b.Priority {
				continue
			}
			if !windowsOverlap(a.ValidFrom, a.ValidTo, b.ValidFrom, b.ValidTo) {
				continue
			}
			pair := []PriceList{a, b}
			report.Issues = append(report.Issues, Issue{
				Code:           IssueOverlappingValidity,
				Severity:       SeverityMedium,
				PriceListIDs:   listIDs(pair),
				PriceListNames: listNames(pair),
				Impact:         fmt.Sprintf("lists %q and %q overlap in time with equal priority %d; the winner is ambiguous", a.Name, b.Name, a.Priority),
				Suggestion:     "narrow one validity window or separate the priorities",
			})
		}
	}
}

func windowsOverlap(aFrom, aTo, bFrom, bTo *time.Time) bool {
	// Open-ended sides overlap everything on that side.
	if aTo != nil && bFrom != nil && aTo.Before(*bFrom) {
		return false
	}
	if bTo != nil && aFrom != nil && bTo.Before(*aFrom) {
		return false
	}
	return true
}

func allExpired(lists []PriceList, at time.Time) bool {
	for _, l := range lists {
		if !l.IsExpiredAt(at) {
			return false
		}
	}
	return true
}

func expiredOnlyIssue(lists []PriceList) Issue {
	return Issue{
		Code:           IssueExpiredPriceListsOnly,
		Severity:       SeverityHigh,
		PriceListIDs:   listIDs(lists),
		PriceListNames: listNames(lists),
		Impact:         "every list in scope is expired; nothing can win a resolution",
		Suggestion:     "extend a validity window or generate a fresh list",
	}
}

func listIDs(lists []PriceList) []id.ID {
	ids := make([]id.ID, len(lists))
	for i, l := range lists {
		ids[i] = l.ID
	}
	return ids
}

func listNames(lists []PriceList) []string {
	names := make([]string, len(lists))
	for i, l := range lists {
		names[i] = l.Name
	}
	return names
}
