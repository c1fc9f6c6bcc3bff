package slice

// Contains reports whether str is present in slice.
func Contains(slice []string, str string) bool {
	for _, item := range slice {
		if item == str {
			return true
		}
	}
	return false
}

// Dedup returns a copy of slice with duplicates removed, preserving the
// first occurrence order.
func Dedup(slice []string) []string {
	seen := make(map[string]struct{}, len(slice))
	var out []string
	for _, item := range slice {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
