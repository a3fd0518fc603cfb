package index

import (
	"fmt"

	"github.com/evidentops/reqgate/pkg/types"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is one integrity finding for a baseline under ingestion.
type Issue struct {
	Severity  string `json:"severity"`
	Field     string `json:"field"`
	Message   string `json:"message"`
	RecordUID string `json:"record_uid,omitempty"`
}

// ValidateIntegrity checks a requirement set before ingestion: uid uniqueness,
// status values, baseline reference structure, rubric structure (strict mode),
// supersession acyclicity, and single-active-per-key. It collects all findings
// instead of stopping at the first.
func ValidateIntegrity(records []types.Requirement, strict bool) []Issue {
	var issues []Issue

	byUID := make(map[string]int, len(records))
	for i, rec := range records {
		if rec.UID == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Field:    "uid",
				Message:  fmt.Sprintf("missing uid in requirement at index %d", i),
			})
			continue
		}
		if prev, ok := byUID[rec.UID]; ok {
			issues = append(issues, Issue{
				Severity:  SeverityError,
				Field:     "uid",
				Message:   fmt.Sprintf("duplicate uid %q at indices %d and %d", rec.UID, prev, i),
				RecordUID: rec.UID,
			})
			continue
		}
		byUID[rec.UID] = i
	}

	activeByKey := make(map[string]string)
	for _, rec := range records {
		if rec.Status != "" && !types.ValidRequirementStatus(rec.Status) {
			issues = append(issues, Issue{
				Severity:  SeverityError,
				Field:     "status",
				Message:   fmt.Sprintf("unknown status %q", rec.Status),
				RecordUID: rec.UID,
			})
		}

		if rec.PolicyBaseline.ID == "" || rec.PolicyBaseline.Version == "" || rec.PolicyBaseline.ContentHash == "" {
			issues = append(issues, Issue{
				Severity:  SeverityError,
				Field:     "policy_baseline",
				Message:   "policy_baseline requires id, version, and hash",
				RecordUID: rec.UID,
			})
		}

		if len(rec.Rubrics) == 0 {
			issues = append(issues, Issue{
				Severity:  SeverityError,
				Field:     "rubrics",
				Message:   "rubrics must be non-empty",
				RecordUID: rec.UID,
			})
		}
		if strict {
			for j, rubric := range rec.Rubrics {
				if !rubric.Complete() {
					issues = append(issues, Issue{
						Severity:  SeverityError,
						Field:     fmt.Sprintf("rubrics[%d]", j),
						Message:   "rubric requires engine, bundle, package, and rule",
						RecordUID: rec.UID,
					})
				}
			}
		}

		if rec.Status == types.RequirementActive && rec.Key != "" {
			if other, ok := activeByKey[rec.Key]; ok {
				issues = append(issues, Issue{
					Severity:  SeverityError,
					Field:     "key",
					Message:   fmt.Sprintf("key %q has multiple active records (%s, %s)", rec.Key, other, rec.UID),
					RecordUID: rec.UID,
				})
			} else {
				activeByKey[rec.Key] = rec.UID
			}
		}
	}

	issues = append(issues, supersessionIssues(records, byUID)...)

	if strict {
		baselines := make(map[string]struct{})
		for _, rec := range records {
			if rec.PolicyBaseline.ID != "" {
				baselines[rec.PolicyBaseline.ID] = struct{}{}
			}
		}
		if len(baselines) > 1 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Field:    "policy_baseline.id",
				Message:  fmt.Sprintf("%d distinct policy baseline ids in one requirement set", len(baselines)),
			})
		}
	}

	return issues
}

// supersessionIssues walks each SupersededBy chain through the uid arena and
// reports cycles and dangling references. Back-references keep the graph a
// forest without live pointers.
func supersessionIssues(records []types.Requirement, byUID map[string]int) []Issue {
	var issues []Issue
	for _, rec := range records {
		if rec.SupersededBy == nil {
			continue
		}

		seen := map[string]struct{}{rec.UID: {}}
		next := *rec.SupersededBy
		for next != "" {
			if _, ok := seen[next]; ok {
				issues = append(issues, Issue{
					Severity:  SeverityError,
					Field:     "superseded_by",
					Message:   fmt.Sprintf("supersession cycle through %q", next),
					RecordUID: rec.UID,
				})
				break
			}
			seen[next] = struct{}{}

			idx, ok := byUID[next]
			if !ok {
				issues = append(issues, Issue{
					Severity:  SeverityWarning,
					Field:     "superseded_by",
					Message:   fmt.Sprintf("superseding record %q not present in baseline", next),
					RecordUID: rec.UID,
				})
				break
			}
			if records[idx].SupersededBy == nil {
				break
			}
			next = *records[idx].SupersededBy
		}
	}
	return issues
}

func errorCount(issues []Issue) int {
	n := 0
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			n++
		}
	}
	return n
}
