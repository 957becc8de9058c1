package crm

import "strings"

// SanitizeLeadID strips everything but digits from an inbound lead id.
// Automations sometimes deliver the id wrapped in unresolved template
// placeholder syntax (a literal "{contactfield=id}" around the number), so
// the raw value cannot be trusted as-is.
func SanitizeLeadID(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
