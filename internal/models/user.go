package models

// Field names used in conflict classification and custom resolutions.
// They match the JSON keys of the typed field structs.
const (
	FieldUsername     = "username"
	FieldEmail        = "email"
	FieldDisplayName  = "display_name"
	FieldGroups       = "groups"
	FieldRoles        = "roles"
	FieldEnabled      = "enabled"
	FieldPasswordHash = "password_hash"
)

// UserFields represents a directory user account. PasswordHash is opaque
// to this subsystem: hashing belongs to the excluded protocol layer.
type UserFields struct {
	Username     string   `json:"username"`      // уникальный username в директории
	Email        string   `json:"email"`         // email пользователя
	DisplayName  string   `json:"display_name"`  // отображаемое имя
	PasswordHash string   `json:"password_hash"` // хеш пароля (opaque)
	Groups       []string `json:"groups"`        // группы пользователя
	Roles        []string `json:"roles"`         // роли пользователя
	Enabled      bool     `json:"enabled"`       // учетная запись активна
}

// Clone создает глубокую копию полей пользователя
func (f *UserFields) Clone() *UserFields {
	clone := *f
	clone.Groups = append([]string(nil), f.Groups...)
	clone.Roles = append([]string(nil), f.Roles...)
	return &clone
}

// diffUser returns the names of fields on which two user revisions differ.
func diffUser(a, b *UserFields) ([]string, error) {
	if a == nil || b == nil {
		return nil, errMissingFields(TypeUser)
	}

	var diff []string
	if a.Username != b.Username {
		diff = append(diff, FieldUsername)
	}
	if a.Email != b.Email {
		diff = append(diff, FieldEmail)
	}
	if a.DisplayName != b.DisplayName {
		diff = append(diff, FieldDisplayName)
	}
	if a.PasswordHash != b.PasswordHash {
		diff = append(diff, FieldPasswordHash)
	}
	if !stringSlicesEqual(a.Groups, b.Groups) {
		diff = append(diff, FieldGroups)
	}
	if !stringSlicesEqual(a.Roles, b.Roles) {
		diff = append(diff, FieldRoles)
	}
	if a.Enabled != b.Enabled {
		diff = append(diff, FieldEnabled)
	}
	return diff, nil
}
