package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Key is a parsed field reference of the form "<datasetId>_<field>".
type Key struct {
	DatasetID string
	Field     string
}

// ParseKey splits a field reference into its dataset id and field name.
// The reference must split on "_" into exactly two non-empty parts, which
// is also why dataset ids may not contain underscores.
func ParseKey(ref string) (Key, error) {
	parts := strings.Split(ref, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Key{}, fmt.Errorf("invalid field reference %q: expected <dataset>_<field>", ref)
	}
	return Key{DatasetID: parts[0], Field: parts[1]}, nil
}

// String returns the reference form of the key.
func (k Key) String() string {
	return k.DatasetID + "_" + k.Field
}

// ErrInvalidDatasetID is returned for dataset ids that are blank or contain
// an underscore.
var ErrInvalidDatasetID = errors.New("invalid dataset id")

// ValidateDatasetID checks the dataset id rules shared by ingestion and the
// catalog: not blank after trimming whitespace, and no underscore.
func ValidateDatasetID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is blank", ErrInvalidDatasetID)
	}
	if strings.Contains(id, "_") {
		return fmt.Errorf("%w: %q contains an underscore", ErrInvalidDatasetID, id)
	}
	return nil
}
