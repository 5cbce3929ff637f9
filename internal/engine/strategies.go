package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/validation"
)

// outcome is what a strategy produces: the canonical document to write,
// the sibling revision it supersedes, and who contributed to it.
type outcome struct {
	canonical    *models.Record
	supersedes   string   // revision token the optimistic put replaces
	contributing []string // distinct instance ids, first-seen order
}

// chooseWinner takes the chosen sibling's field values verbatim.
// revisions arrive in tie-break order.
func chooseWinner(revisions []*models.Record, revisionID string) (*outcome, error) {
	var chosen *models.Record
	for _, rev := range revisions {
		if rev.RevisionToken == revisionID {
			chosen = rev
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRevision, revisionID)
	}

	return &outcome{
		canonical:    chosen.Clone(),
		supersedes:   chosen.RevisionToken,
		contributing: []string{chosen.Provenance.LastModifiedBy},
	}, nil
}

// mergePermissions unions groups and roles across every sibling revision,
// first-seen order over the tie-break-ordered list. All other fields take
// the value from the latest revision. Defined only for group and role
// conflicts, which only user documents produce.
func mergePermissions(record *models.ConflictRecord, revisions []*models.Record) (*outcome, error) {
	if record.Kind != models.KindGroupConflict && record.Kind != models.KindRoleConflict {
		return nil, fmt.Errorf("%w: merge-permissions on %s", ErrStrategyNotApplicable, record.Kind)
	}

	latest := revisions[0]
	canonical := latest.Clone()
	if canonical.User == nil {
		return nil, fmt.Errorf("merge-permissions: document %s has no user fields", record.DocumentID)
	}

	var contributing []string
	contributed := make(map[string]bool)

	groups, groupSeen := []string{}, make(map[string]bool)
	roles, roleSeen := []string{}, make(map[string]bool)

	for _, rev := range revisions {
		if rev.User == nil {
			return nil, fmt.Errorf("merge-permissions: revision %s has no user fields", rev.RevisionToken)
		}
		instance := rev.Provenance.LastModifiedBy

		for _, g := range rev.User.Groups {
			if groupSeen[g] {
				continue
			}
			groupSeen[g] = true
			groups = append(groups, g)
			if !contributed[instance] {
				contributed[instance] = true
				contributing = append(contributing, instance)
			}
		}
		for _, r := range rev.User.Roles {
			if roleSeen[r] {
				continue
			}
			roleSeen[r] = true
			roles = append(roles, r)
			if !contributed[instance] {
				contributed[instance] = true
				contributing = append(contributing, instance)
			}
		}
	}

	canonical.User.Groups = groups
	canonical.User.Roles = roles

	return &outcome{
		canonical:    canonical,
		supersedes:   latest.RevisionToken,
		contributing: contributing,
	}, nil
}

// customResolution overlays an operator-supplied field map on the latest
// revision. The map must carry every field the document type's schema
// requires; optional fields inherit from the base.
func customResolution(record *models.ConflictRecord, revisions []*models.Record, fields json.RawMessage) (*outcome, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty field map", ErrIncompleteCustomResolution)
	}

	var overrides map[string]json.RawMessage
	if err := json.Unmarshal(fields, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse custom fields: %w", err)
	}

	supplied := make(map[string]bool, len(overrides))
	for name := range overrides {
		supplied[name] = true
	}

	missing, err := validation.MissingRequiredFields(record.DocumentType, supplied)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteCustomResolution, strings.Join(missing, ", "))
	}

	latest := revisions[0]
	canonical, err := applyFieldOverrides(latest, overrides)
	if err != nil {
		return nil, err
	}

	var contributing []string
	contributed := make(map[string]bool)
	for _, rev := range revisions {
		instance := rev.Provenance.LastModifiedBy
		if !contributed[instance] {
			contributed[instance] = true
			contributing = append(contributing, instance)
		}
	}

	return &outcome{
		canonical:    canonical,
		supersedes:   latest.RevisionToken,
		contributing: contributing,
	}, nil
}

// applyFieldOverrides merges a raw field map onto a base revision through
// the record's JSON envelope, re-decoding into the typed field struct so
// unknown keys and type mismatches surface as errors.
func applyFieldOverrides(base *models.Record, overrides map[string]json.RawMessage) (*models.Record, error) {
	raw, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal base revision: %w", err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode base envelope: %w", err)
	}

	var baseFields map[string]json.RawMessage
	if err := json.Unmarshal(envelope["fields"], &baseFields); err != nil {
		return nil, fmt.Errorf("failed to decode base fields: %w", err)
	}

	for name, value := range overrides {
		baseFields[name] = value
	}

	merged, err := json.Marshal(baseFields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged fields: %w", err)
	}
	envelope["fields"] = merged

	full, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged envelope: %w", err)
	}

	var canonical models.Record
	if err := json.Unmarshal(full, &canonical); err != nil {
		return nil, fmt.Errorf("failed to decode merged record: %w", err)
	}
	return &canonical, nil
}
