package index

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/evidentops/reqgate/pkg/types"
)

// Index holds normalized requirement records for one or more baselines and
// answers deterministically ordered, paginated queries. Records are immutable
// once ingested; the index is read-mostly and safe for concurrent use.
type Index struct {
	mu        sync.RWMutex
	baselines map[string]*baseline
}

type baseline struct {
	handle     string
	baselineID string
	// records stay sorted ascending by uid; every query path slices this.
	records   []types.Requirement
	byUID     map[string]int
	byKey     map[string][]string
	bySubtype map[string][]string
}

type BaselineHandle struct {
	Handle     string  `json:"handle"`
	BaselineID string  `json:"baseline_id"`
	Count      int     `json:"count"`
	Warnings   []Issue `json:"warnings,omitempty"`
}

type Filter struct {
	Baseline string
	Subtypes []string
	// AnySubtype switches subtype matching from intersection to union.
	AnySubtype bool
	Status     types.RequirementStatus
	Limit      int
	Offset     int
}

func New() *Index {
	return &Index{baselines: make(map[string]*baseline)}
}

// Ingest validates and stores a requirement set as one immutable baseline,
// returning a handle for querying it. Fails without side effects when the set
// has integrity errors (duplicate uids, malformed baseline references, and in
// strict mode structurally invalid rubrics).
func (x *Index) Ingest(baselineID string, records []types.Requirement, strict bool) (BaselineHandle, error) {
	issues := ValidateIntegrity(records, strict)
	if errorCount(issues) > 0 {
		return BaselineHandle{}, fmt.Errorf("%w: %s", classifyIssues(issues), summarizeIssues(issues))
	}

	b := &baseline{
		handle:     uuid.NewString(),
		baselineID: baselineID,
		records:    make([]types.Requirement, len(records)),
		byUID:      make(map[string]int, len(records)),
		byKey:      make(map[string][]string),
		bySubtype:  make(map[string][]string),
	}
	copy(b.records, records)
	sort.Slice(b.records, func(i, j int) bool { return b.records[i].UID < b.records[j].UID })

	for i, rec := range b.records {
		b.byUID[rec.UID] = i
		if rec.Key != "" {
			b.byKey[rec.Key] = append(b.byKey[rec.Key], rec.UID)
		}
		for _, subtype := range rec.Subtypes {
			b.bySubtype[subtype] = append(b.bySubtype[subtype], rec.UID)
		}
	}

	x.mu.Lock()
	x.baselines[b.handle] = b
	x.mu.Unlock()

	var warnings []Issue
	for _, issue := range issues {
		if issue.Severity == SeverityWarning {
			warnings = append(warnings, issue)
		}
	}

	return BaselineHandle{Handle: b.handle, BaselineID: baselineID, Count: len(records), Warnings: warnings}, nil
}

// Get returns the requirement with the given uid in a baseline.
func (x *Index) Get(handle, uid string) (types.Requirement, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	b, ok := x.baselines[handle]
	if !ok {
		return types.Requirement{}, false
	}
	i, ok := b.byUID[uid]
	if !ok {
		return types.Requirement{}, false
	}
	return b.records[i], true
}

// ByKey returns all uids recorded for a key in a baseline, in uid order.
func (x *Index) ByKey(handle, key string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	b, ok := x.baselines[handle]
	if !ok {
		return nil
	}
	uids := make([]string, len(b.byKey[key]))
	copy(uids, b.byKey[key])
	sort.Strings(uids)
	return uids
}

// Query returns the filtered requirement set, always ascending by uid.
// Limit/offset slice the full ordered result: an out-of-range offset yields an
// empty sequence, never an error. Absent filter fields mean no constraint.
func (x *Index) Query(f Filter) ([]types.Requirement, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var scope []*baseline
	if f.Baseline != "" {
		b, ok := x.resolveBaseline(f.Baseline)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBaseline, f.Baseline)
		}
		scope = []*baseline{b}
	} else {
		for _, b := range x.baselines {
			scope = append(scope, b)
		}
	}

	var matched []types.Requirement
	for _, b := range scope {
		for _, rec := range b.records {
			if f.Status != "" && rec.Status != f.Status {
				continue
			}
			if !matchSubtypes(rec, f.Subtypes, f.AnySubtype) {
				continue
			}
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UID < matched[j].UID })

	return paginate(matched, f.Offset, f.Limit), nil
}

// resolveBaseline accepts either an ingest handle or a policy baseline id.
func (x *Index) resolveBaseline(ref string) (*baseline, bool) {
	if b, ok := x.baselines[ref]; ok {
		return b, true
	}
	for _, b := range x.baselines {
		if b.baselineID == ref {
			return b, true
		}
	}
	return nil, false
}

func matchSubtypes(rec types.Requirement, subtypes []string, union bool) bool {
	if len(subtypes) == 0 {
		return true
	}
	if union {
		for _, s := range subtypes {
			if rec.HasSubtype(s) {
				return true
			}
		}
		return false
	}
	for _, s := range subtypes {
		if !rec.HasSubtype(s) {
			return false
		}
	}
	return true
}

func paginate(records []types.Requirement, offset, limit int) []types.Requirement {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return nil
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	out := make([]types.Requirement, len(records))
	copy(out, records)
	return out
}

func classifyIssues(issues []Issue) error {
	for _, issue := range issues {
		if issue.Severity != SeverityError {
			continue
		}
		switch issue.Field {
		case "uid":
			if strings.Contains(issue.Message, "duplicate") {
				return ErrDuplicateUID
			}
		case "superseded_by":
			return ErrSupersessionCycle
		}
		if strings.HasPrefix(issue.Field, "rubrics") {
			return ErrUnresolvedRubric
		}
	}
	return ErrInvalidRecord
}

func summarizeIssues(issues []Issue) string {
	var parts []string
	for _, issue := range issues {
		if issue.Severity != SeverityError {
			continue
		}
		parts = append(parts, issue.Field+": "+issue.Message)
	}
	return strings.Join(parts, "; ")
}
