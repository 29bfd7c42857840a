package utils

// ToStringSlice keeps the string members of a decoded JSON array.
func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0)
	for _, v := range slice {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

// ClaimStrings reads a claim that may be encoded either as a single string or as a list.
func ClaimStrings(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		return ToStringSlice(t)
	default:
		return nil
	}
}

