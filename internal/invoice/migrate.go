package invoice

import (
	"sort"

	"verax/pkg/models"
)

// Migration is the rewrite that brings one stored document to the canonical schema.
type Migration struct {
	// Set holds every canonical field with its resolved value.
	Set map[string]interface{}
	// Remove lists legacy alias keys the document still carries.
	Remove []string
}

// NeedsMigration reports whether a raw document predates the canonical schema
// or still carries legacy alias keys.
func NeedsMigration(raw map[string]interface{}) bool {
	if int(integer(raw[FieldSchemaVersion])) < models.CurrentSchemaVersion {
		return true
	}
	return len(legacyKeys(raw)) > 0
}

// Migrate computes the canonical rewrite of raw. Unknown keys that are not aliases are left alone.
func Migrate(id string, raw map[string]interface{}) Migration {
	inv := Canonical(id, raw)
	set := Fields(inv)
	// version and timestamps are managed by the store on write
	delete(set, FieldVersion)
	delete(set, FieldCreatedAt)
	delete(set, FieldUpdatedAt)
	return Migration{Set: set, Remove: legacyKeys(raw)}
}

func legacyKeys(raw map[string]interface{}) []string {
	var keys []string
	for _, names := range aliases {
		for _, name := range names {
			if canonicalKeys[name] {
				continue
			}
			if _, ok := raw[name]; ok {
				keys = append(keys, name)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
