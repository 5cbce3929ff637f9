// Package conflict classifies sets of divergent sibling revisions into
// conflict kinds. Classification is a pure function of the revision set:
// no I/O, no clock, deterministic.
package conflict

import (
	"errors"
	"fmt"

	"github.com/iudanet/authdir/internal/models"
)

// ErrTooFewRevisions indicates a classification attempt on fewer than
// two revisions; such documents are not in conflict.
var ErrTooFewRevisions = errors.New("conflict requires at least two revisions")

// Classify categorizes a revision set. Precedence order, first match wins:
//
//  1. only groups differ                        -> group_conflict
//  2. only roles differ                         -> role_conflict
//  3. user, diff within username/email          -> profile_conflict
//  4. client, diff within redirect_uris, grant_types, scopes -> client_config_conflict
//  5. anything else                             -> generic_conflict
//
// Every rule requires the divergence to stay WITHIN its named fields: a
// set differing in both groups and username matches neither rule 1 (not
// only groups) nor rule 3 (groups is not a profile field) and lands in
// generic_conflict.
func Classify(revisions []*models.Record) (models.ConflictKind, error) {
	if len(revisions) < 2 {
		return "", ErrTooFewRevisions
	}

	diff, err := models.DiffFields(revisions)
	if err != nil {
		return "", fmt.Errorf("failed to diff revisions: %w", err)
	}

	switch {
	case diffWithin(diff, models.FieldGroups):
		return models.KindGroupConflict, nil

	case diffWithin(diff, models.FieldRoles):
		return models.KindRoleConflict, nil

	case revisions[0].Type == models.TypeUser &&
		diffWithin(diff, models.FieldUsername, models.FieldEmail):
		return models.KindProfileConflict, nil

	case revisions[0].Type == models.TypeClient &&
		diffWithin(diff, models.FieldRedirectURIs, models.FieldGrantTypes, models.FieldScopes):
		return models.KindClientConfigConflict, nil

	default:
		return models.KindGenericConflict, nil
	}
}

// diffWithin reports whether every divergent field belongs to the
// allowed set. An empty diff never matches.
func diffWithin(diff []string, allowed ...string) bool {
	if len(diff) == 0 {
		return false
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = true
	}
	for _, name := range diff {
		if !allowedSet[name] {
			return false
		}
	}
	return true
}
