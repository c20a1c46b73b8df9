package careplan

import "strings"

// requiredSections maps each mandatory care plan section to the heading
// substrings that count as its presence. Matching is case-insensitive.
var requiredSections = []struct {
	name    string
	markers []string
}{
	{"problem list", []string{"problem list", "drug therapy problem"}},
	{"goals", []string{"goals"}},
	{"interventions", []string{"interventions"}},
	{"monitoring plan", []string{"monitoring"}},
}

// MissingSections returns the names of required sections absent from a
// generated document. An empty result means the document is acceptable.
func MissingSections(content string) []string {
	lower := strings.ToLower(content)
	var missing []string
	for _, sec := range requiredSections {
		found := false
		for _, m := range sec.markers {
			if strings.Contains(lower, m) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, sec.name)
		}
	}
	return missing
}
