// Package fieldperm strips fields the caller is not permitted to see from
// outgoing records. A field absent from the config ships visible until it is
// explicitly gated, so adding a column never hides it by accident.
package fieldperm

// Config maps field names to the permission key required to view them.
// Field permissions share the regular key space with a "field" segment,
// e.g. "users.field.email".
type Config map[string]string

// Filter returns a copy of record containing only fields the caller may see.
// Fields in alwaysInclude bypass the check unconditionally (typically the
// primary key). Unmapped fields are kept as-is.
func Filter(record map[string]any, granted []string, config Config, alwaysInclude map[string]struct{}) map[string]any {
	grantedSet := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		grantedSet[p] = struct{}{}
	}
	return filterOne(record, grantedSet, config, alwaysInclude)
}

// FilterList applies Filter to each record in a list.
func FilterList(records []map[string]any, granted []string, config Config, alwaysInclude map[string]struct{}) []map[string]any {
	grantedSet := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		grantedSet[p] = struct{}{}
	}
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		out = append(out, filterOne(record, grantedSet, config, alwaysInclude))
	}
	return out
}

func filterOne(record map[string]any, granted map[string]struct{}, config Config, alwaysInclude map[string]struct{}) map[string]any {
	result := make(map[string]any, len(record))
	for key, value := range record {
		if _, ok := alwaysInclude[key]; ok {
			result[key] = value
			continue
		}
		required, gated := config[key]
		if !gated {
			result[key] = value
			continue
		}
		if _, ok := granted[required]; ok {
			result[key] = value
		}
	}
	return result
}
