package schema

import "fmt"

// Version tags in force for newly composed schemas. Tags are opaque tokens:
// nothing anywhere parses or orders them, they are only compared for
// equality. Bump a tag whenever the corresponding schema shape changes.
const (
	CurrentQuestionnaireVersion = "2025.07-1"
	CurrentAnswersVersion       = "2025.09-1"
)

// VersionMismatch reports schema version drift. Exactly one of Expected
// (create path) or Previous (update path) is set. Version tags are opaque
// tokens compared by string equality only, never parsed.
type VersionMismatch struct {
	Expected string `json:"expected,omitempty"`
	Previous string `json:"previous,omitempty"`
	Got      string `json:"got"`
}

func (e *VersionMismatch) Error() string {
	if e.Previous != "" {
		return fmt.Sprintf("schema version mismatch: previously %s, got %s", e.Previous, e.Got)
	}
	return fmt.Sprintf("schema version mismatch: expected %s, got %s", e.Expected, e.Got)
}

// CheckVersion enforces schema version pinning for a document.
//
// On create, got must equal the version baked into the schema in force for
// the referenced questionnaire. On update (previous non-nil), got must equal
// the version already recorded on the stored document; an ordinary edit can
// never silently migrate a document to a newer schema revision. The guard
// performs no migration of any kind.
func CheckVersion(got, expected string, previous *string) error {
	if previous != nil {
		if got != *previous {
			return &VersionMismatch{Previous: *previous, Got: got}
		}
		return nil
	}
	if got != expected {
		return &VersionMismatch{Expected: expected, Got: got}
	}
	return nil
}

// DocumentVersion extracts the schema_version marker from a decoded answer
// or questionnaire document.
func DocumentVersion(doc map[string]any) (string, bool) {
	v, ok := doc["schema_version"].(string)
	return v, ok
}
