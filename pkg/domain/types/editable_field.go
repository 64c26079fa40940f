package types

import "github.com/m-mizutani/goerr/v2"

// ErrUnknownField is returned when a manual edit names a field that is not editable
var ErrUnknownField = goerr.New("unknown or immutable contact field")

// EditableField is the closed set of contact fields a user may change.
// Identity fields (tenant, counterpart, first seen) are deliberately absent.
type EditableField string

const (
	EditableFieldDisplayName EditableField = "display_name"
	EditableFieldHandle      EditableField = "handle"
	EditableFieldBio         EditableField = "bio"
	EditableFieldCompany     EditableField = "company"
	EditableFieldRole        EditableField = "role"
	EditableFieldNotes       EditableField = "notes"
	EditableFieldEventTag    EditableField = "event_tag"
)

// AllEditableFields returns every editable field
func AllEditableFields() []EditableField {
	return []EditableField{
		EditableFieldDisplayName,
		EditableFieldHandle,
		EditableFieldBio,
		EditableFieldCompany,
		EditableFieldRole,
		EditableFieldNotes,
		EditableFieldEventTag,
	}
}

// IsValid checks if the field is editable
func (f EditableField) IsValid() bool {
	for _, v := range AllEditableFields() {
		if f == v {
			return true
		}
	}
	return false
}

func (f EditableField) String() string {
	return string(f)
}

// ParseEditableField validates a user-supplied field name
func ParseEditableField(s string) (EditableField, error) {
	f := EditableField(s)
	if !f.IsValid() {
		return "", goerr.Wrap(ErrUnknownField, "field is not editable", goerr.V("field", s))
	}
	return f, nil
}
