package models

// Client field names
const (
	FieldClientName   = "name"
	FieldSecretHash   = "secret_hash"
	FieldRedirectURIs = "redirect_uris"
	FieldGrantTypes   = "grant_types"
	FieldScopes       = "scopes"
	FieldPublic       = "public"
)

// ClientFields represents a registered OAuth client. SecretHash is opaque,
// the token endpoints that consume it live outside this subsystem.
type ClientFields struct {
	Name         string   `json:"name"`          // человекочитаемое имя клиента
	SecretHash   string   `json:"secret_hash"`   // хеш client secret (opaque)
	RedirectURIs []string `json:"redirect_uris"` // разрешенные redirect URI
	GrantTypes   []string `json:"grant_types"`   // разрешенные grant types
	Scopes       []string `json:"scopes"`        // разрешенные scopes
	Public       bool     `json:"public"`        // публичный клиент (без секрета)
}

// Clone создает глубокую копию полей клиента
func (f *ClientFields) Clone() *ClientFields {
	clone := *f
	clone.RedirectURIs = append([]string(nil), f.RedirectURIs...)
	clone.GrantTypes = append([]string(nil), f.GrantTypes...)
	clone.Scopes = append([]string(nil), f.Scopes...)
	return &clone
}

// diffClient returns the names of fields on which two client revisions differ.
func diffClient(a, b *ClientFields) ([]string, error) {
	if a == nil || b == nil {
		return nil, errMissingFields(TypeClient)
	}

	var diff []string
	if a.Name != b.Name {
		diff = append(diff, FieldClientName)
	}
	if a.SecretHash != b.SecretHash {
		diff = append(diff, FieldSecretHash)
	}
	if !stringSlicesEqual(a.RedirectURIs, b.RedirectURIs) {
		diff = append(diff, FieldRedirectURIs)
	}
	if !stringSlicesEqual(a.GrantTypes, b.GrantTypes) {
		diff = append(diff, FieldGrantTypes)
	}
	if !stringSlicesEqual(a.Scopes, b.Scopes) {
		diff = append(diff, FieldScopes)
	}
	if a.Public != b.Public {
		diff = append(diff, FieldPublic)
	}
	return diff, nil
}
