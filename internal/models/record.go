package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// DocumentType определяет тип реплицируемого документа
type DocumentType string

// Document types tracked by the directory
const (
	TypeUser         DocumentType = "user"
	TypeClient       DocumentType = "client"
	TypeSession      DocumentType = "session"
	TypeAuthCode     DocumentType = "auth_code"
	TypeRefreshToken DocumentType = "refresh_token"
)

// TrackedTypes lists every document type the conflict scanner watches,
// in scan order.
var TrackedTypes = []DocumentType{
	TypeUser,
	TypeClient,
	TypeSession,
	TypeAuthCode,
	TypeRefreshToken,
}

// ErrUnknownDocumentType indicates a document with a type outside the
// closed set of tracked variants. Such documents are skipped by the
// scanner, never classified.
var ErrUnknownDocumentType = errors.New("unknown document type")

// Provenance records which instance created and last modified a document.
// Version is a monotonic edit counter: it orders history for display and
// tie-breaking, it is not a vector clock and does not resolve conflicts
// by itself.
type Provenance struct {
	CreatedAt      time.Time `json:"created_at"`       // время первой записи документа
	LastModifiedAt time.Time `json:"last_modified_at"` // время последней принятой записи
	CreatedBy      string    `json:"created_by"`       // instance id создателя
	LastModifiedBy string    `json:"last_modified_by"` // instance id последнего писателя
	Version        int64     `json:"version"`          // монотонный счетчик правок
}

// Record is one replicated directory document. Exactly one of the typed
// field structs is non-nil, selected by Type. A document id is globally
// unique across the cluster: concurrent edits under partition create
// sibling revisions of the same id, never a second id.
type Record struct {
	Provenance    Provenance          `json:"provenance"`
	User          *UserFields         `json:"-"`
	Client        *ClientFields       `json:"-"`
	Session       *SessionFields      `json:"-"`
	AuthCode      *AuthCodeFields     `json:"-"`
	RefreshToken  *RefreshTokenFields `json:"-"`
	ID            string              `json:"id"`
	Type          DocumentType        `json:"type"`
	RevisionToken string              `json:"revision_token"`
}

// recordEnvelope is the wire form of Record: typed fields live under a
// single "fields" key, decoded per Type.
type recordEnvelope struct {
	ID            string          `json:"id"`
	Type          DocumentType    `json:"type"`
	RevisionToken string          `json:"revision_token"`
	Provenance    Provenance      `json:"provenance"`
	Fields        json.RawMessage `json:"fields"`
}

// MarshalJSON implements json.Marshaler
func (r *Record) MarshalJSON() ([]byte, error) {
	raw, err := r.FieldsJSON()
	if err != nil {
		return nil, err
	}

	return json.Marshal(recordEnvelope{
		ID:            r.ID,
		Type:          r.Type,
		RevisionToken: r.RevisionToken,
		Provenance:    r.Provenance,
		Fields:        raw,
	})
}

// FieldsJSON returns just the typed fields of the record as JSON.
func (r *Record) FieldsJSON() (json.RawMessage, error) {
	var fields interface{}
	switch r.Type {
	case TypeUser:
		fields = r.User
	case TypeClient:
		fields = r.Client
	case TypeSession:
		fields = r.Session
	case TypeAuthCode:
		fields = r.AuthCode
	case TypeRefreshToken:
		fields = r.RefreshToken
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentType, r.Type)
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s fields: %w", r.Type, err)
	}
	return raw, nil
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Record) UnmarshalJSON(data []byte) error {
	var env recordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	r.ID = env.ID
	r.Type = env.Type
	r.RevisionToken = env.RevisionToken
	r.Provenance = env.Provenance

	if len(env.Fields) == 0 {
		return fmt.Errorf("document %s has no fields", env.ID)
	}

	switch env.Type {
	case TypeUser:
		r.User = &UserFields{}
		return json.Unmarshal(env.Fields, r.User)
	case TypeClient:
		r.Client = &ClientFields{}
		return json.Unmarshal(env.Fields, r.Client)
	case TypeSession:
		r.Session = &SessionFields{}
		return json.Unmarshal(env.Fields, r.Session)
	case TypeAuthCode:
		r.AuthCode = &AuthCodeFields{}
		return json.Unmarshal(env.Fields, r.AuthCode)
	case TypeRefreshToken:
		r.RefreshToken = &RefreshTokenFields{}
		return json.Unmarshal(env.Fields, r.RefreshToken)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDocumentType, env.Type)
	}
}

// Clone создает глубокую копию записи
func (r *Record) Clone() *Record {
	clone := &Record{
		ID:            r.ID,
		Type:          r.Type,
		RevisionToken: r.RevisionToken,
		Provenance:    r.Provenance,
	}
	if r.User != nil {
		clone.User = r.User.Clone()
	}
	if r.Client != nil {
		clone.Client = r.Client.Clone()
	}
	if r.Session != nil {
		clone.Session = r.Session.Clone()
	}
	if r.AuthCode != nil {
		clone.AuthCode = r.AuthCode.Clone()
	}
	if r.RefreshToken != nil {
		clone.RefreshToken = r.RefreshToken.Clone()
	}
	return clone
}

// DiffFields returns the sorted list of logical field names on which the
// given sibling revisions disagree. All revisions must share the same
// document type; provenance and revision tokens are never compared.
func DiffFields(revisions []*Record) ([]string, error) {
	if len(revisions) < 2 {
		return nil, nil
	}

	base := revisions[0]
	diff := make(map[string]bool)

	for _, rev := range revisions[1:] {
		if rev.Type != base.Type {
			return nil, fmt.Errorf("revision type mismatch: %q vs %q", rev.Type, base.Type)
		}

		var names []string
		var err error
		switch base.Type {
		case TypeUser:
			names, err = diffUser(base.User, rev.User)
		case TypeClient:
			names, err = diffClient(base.Client, rev.Client)
		case TypeSession:
			names, err = diffSession(base.Session, rev.Session)
		case TypeAuthCode:
			names, err = diffAuthCode(base.AuthCode, rev.AuthCode)
		case TypeRefreshToken:
			names, err = diffRefreshToken(base.RefreshToken, rev.RefreshToken)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentType, base.Type)
		}
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			diff[n] = true
		}
	}

	return sortedKeys(diff), nil
}

// stringSlicesEqual сравнивает срезы строк с учетом порядка
func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
