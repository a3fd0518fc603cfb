package sarif

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/evidentops/reqgate/pkg/types"
)

var ErrIncompleteResult = errors.New("result is missing a mandatory property")

// Item is one evaluated requirement heading into a report-run.
type Item struct {
	Requirement  types.Requirement
	Decision     types.Decision
	Facts        types.Facts
	EvaluationID string
	Timestamp    string
}

type Options struct {
	// Verbose emits pass decisions as notes; not_applicable is always omitted.
	Verbose      bool
	AgentVersion string
	// FactsDigest is the canonical digest of the facts document the run
	// evaluated, stamped on the run for provenance.
	FactsDigest string
}

// mandatoryProperties are required on every emitted result. Mapping fails
// closed: a result missing one is an internal error, never a silently
// incomplete output.
var mandatoryProperties = []string{
	"requirement_uid",
	"requirement_key",
	"subtypes",
	"policy_baseline_version",
	"policy_hash",
	"agent_version",
	"evaluation_id",
	"timestamp",
}

// MapRun folds one batch of decisions into a single SARIF run. The tool
// identity is the policy bundle; one rule is emitted per evaluated
// requirement keyed by uid (never key, which may be reused across
// supersessions); results follow ascending uid order.
func MapRun(items []Item, bundle types.PolicyProvenance, generatedAt string, opts Options) (Report, error) {
	ordered := make([]Item, len(items))
	copy(ordered, items)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Requirement.UID < ordered[j].Requirement.UID
	})

	run := Run{
		Tool: Tool{Driver: Driver{
			Name:    bundle.Bundle,
			Version: bundle.Revision,
			Rules:   make([]Rule, 0, len(ordered)),
		}},
		Results: []Result{},
		Properties: map[string]any{
			"policy_bundle":   bundle.Bundle,
			"policy_revision": bundle.Revision,
			"policy_hash":     bundle.Hash,
			"evaluation_time": generatedAt,
		},
	}
	if opts.FactsDigest != "" {
		run.Properties["facts_digest"] = opts.FactsDigest
	}

	var incomplete []string
	for _, item := range ordered {
		run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, ruleFor(item.Requirement))

		result, emit := resultFor(item, opts)
		if !emit {
			continue
		}
		if missing := missingProperties(result); len(missing) > 0 {
			incomplete = append(incomplete, fmt.Sprintf("%s (missing %s)",
				item.Requirement.UID, strings.Join(missing, ", ")))
			continue
		}
		run.Results = append(run.Results, result)
	}

	if len(incomplete) > 0 {
		return Report{}, fmt.Errorf("%w: %s", ErrIncompleteResult, strings.Join(incomplete, "; "))
	}

	return Report{Schema: SchemaURI, Version: Version, Runs: []Run{run}}, nil
}

func ruleFor(req types.Requirement) Rule {
	rule := Rule{
		ID:   req.UID,
		Name: req.Key,
		Properties: map[string]any{
			"subtypes":                req.Subtypes,
			"policy_baseline_version": req.PolicyBaseline.Version,
		},
	}
	if req.Text != "" {
		rule.FullDescription = &Message{Text: req.Text}
	}
	return rule
}

// levelFor maps a decision status to a SARIF level. The second return is
// false when the status is omitted at the given verbosity.
func levelFor(status types.DecisionStatus, verbose bool) (string, bool) {
	switch status {
	case types.StatusFail:
		return LevelError, true
	case types.StatusConditionalPass, types.StatusInconclusive, types.StatusBlocked:
		return LevelWarning, true
	case types.StatusWaived:
		return LevelNote, true
	case types.StatusPass:
		return LevelNote, verbose
	case types.StatusNotApplicable:
		return "", false
	}
	return "", false
}

func resultFor(item Item, opts Options) (Result, bool) {
	level, emit := levelFor(item.Decision.Status, opts.Verbose)
	if !emit {
		return Result{}, false
	}

	properties := map[string]any{
		"requirement_uid":         item.Requirement.UID,
		"requirement_key":         item.Requirement.Key,
		"subtypes":                item.Requirement.Subtypes,
		"policy_baseline_version": item.Requirement.PolicyBaseline.Version,
		"policy_hash":             item.Decision.Policy.Hash,
		"agent_version":           agentVersion(item, opts),
		"evaluation_id":           item.EvaluationID,
		"timestamp":               item.Timestamp,
		"score":                   item.Decision.Score,
		"confidence":              item.Decision.Confidence,
	}
	if item.Decision.Status == types.StatusInconclusive || item.Decision.Status == types.StatusBlocked {
		properties["triage"] = "needed"
	}
	if item.Facts.Target.Repo != "" {
		properties["target_repo"] = item.Facts.Target.Repo
	}
	if item.Facts.Target.Commit != "" {
		properties["target_commit"] = item.Facts.Target.Commit
	}
	if attachments := nonSpanEvidence(item.Facts.Evidence); len(attachments) > 0 {
		properties["evidence"] = attachments
	}

	return Result{
		RuleID:     item.Requirement.UID,
		Level:      level,
		Message:    Message{Text: messageFor(item.Decision)},
		Locations:  locationsFor(item.Facts.Evidence),
		Properties: properties,
	}, true
}

func agentVersion(item Item, opts Options) string {
	if item.Facts.Agent.Version != "" {
		return item.Facts.Agent.Version
	}
	return opts.AgentVersion
}

// messageFor joins decision reasons, falling back to failing/warning
// criterion messages in criterion list order.
func messageFor(d types.Decision) string {
	base := strings.Join(d.Reasons, "; ")
	if base == "" {
		var parts []string
		for _, c := range d.Criteria {
			if c.Message == "" {
				continue
			}
			if c.Status == types.StatusPass || c.Status == types.StatusNotApplicable {
				continue
			}
			parts = append(parts, c.Message)
		}
		base = strings.Join(parts, "; ")
	}
	if base == "" {
		base = "Evaluation completed"
	}
	return fmt.Sprintf("%s (Score: %.2f, Confidence: %.2f)", base, d.Score, d.Confidence)
}

// locationsFor turns code_span evidence into physical locations. Other
// evidence kinds never become locations.
func locationsFor(evidence []types.Evidence) []Location {
	var locations []Location
	for _, ev := range evidence {
		if ev.Type != types.EvidenceCodeSpan {
			continue
		}
		loc := Location{PhysicalLocation: PhysicalLocation{
			ArtifactLocation: ArtifactLocation{
				URI:       normalizeURI(ev.URI),
				URIBaseID: "SRCROOT",
			},
		}}
		if ev.StartLine != nil {
			region := &Region{StartLine: *ev.StartLine}
			if ev.EndLine != nil {
				region.EndLine = *ev.EndLine
			}
			loc.PhysicalLocation.Region = region
		}
		locations = append(locations, loc)
	}
	return locations
}

func nonSpanEvidence(evidence []types.Evidence) []map[string]string {
	var out []map[string]string
	for _, ev := range evidence {
		if ev.Type == types.EvidenceCodeSpan {
			continue
		}
		out = append(out, map[string]string{"type": ev.Type, "uri": ev.URI})
	}
	return out
}

// normalizeURI strips the repo://host/org/repo/srcroot/ prefix so code
// locations are relative to the SRCROOT base. URIs too short for the full
// prefix lose only the scheme.
func normalizeURI(uri string) string {
	if !strings.HasPrefix(uri, "repo://") {
		return uri
	}
	parts := strings.SplitN(uri, "/", 7)
	if len(parts) == 7 {
		return parts[6]
	}
	return strings.TrimPrefix(uri, "repo://")
}

func missingProperties(result Result) []string {
	var missing []string
	for _, key := range mandatoryProperties {
		v, ok := result.Properties[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			missing = append(missing, key)
		}
	}
	return missing
}
