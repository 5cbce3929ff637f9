package validation

import (
	"fmt"
	"regexp"

	"github.com/iudanet/authdir/internal/models"
)

// InstanceIDPattern определяет допустимый формат instance id
// Только латинские буквы (a-z, A-Z), цифры (0-9), дефис (-)
// Длина: 2-32 символа
var InstanceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]{2,32}$`)

// ValidateInstanceID проверяет, что instance id соответствует требованиям.
// Instance ids participate in provenance tie-breaking, so the format is
// deliberately narrow and case-sensitive.
func ValidateInstanceID(id string) error {
	if id == "" {
		return fmt.Errorf("instance id cannot be empty")
	}

	if !InstanceIDPattern.MatchString(id) {
		return fmt.Errorf("instance id can only contain letters (a-z, A-Z), numbers (0-9), and hyphens (-)")
	}

	return nil
}

// requiredFields lists the fields a custom resolution must supply per
// document type. Optional fields inherit from the base revision.
var requiredFields = map[models.DocumentType][]string{
	models.TypeUser: {
		models.FieldUsername,
		models.FieldEmail,
	},
	models.TypeClient: {
		models.FieldClientName,
		models.FieldRedirectURIs,
		models.FieldGrantTypes,
		models.FieldScopes,
	},
	models.TypeSession: {
		models.FieldUserID,
		models.FieldExpiresAt,
	},
	models.TypeAuthCode: {
		models.FieldCodeHash,
		models.FieldClientID,
		models.FieldUserID,
		models.FieldExpiresAt,
	},
	models.TypeRefreshToken: {
		models.FieldTokenHash,
		models.FieldUserID,
		models.FieldClientID,
		models.FieldExpiresAt,
	},
}

// RequiredFields returns the required field names for a document type.
func RequiredFields(docType models.DocumentType) ([]string, error) {
	fields, ok := requiredFields[docType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownDocumentType, docType)
	}
	return fields, nil
}

// MissingRequiredFields returns the required fields absent from a
// supplied custom-resolution field map, in schema order.
func MissingRequiredFields(docType models.DocumentType, supplied map[string]bool) ([]string, error) {
	required, err := RequiredFields(docType)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, name := range required {
		if !supplied[name] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}
