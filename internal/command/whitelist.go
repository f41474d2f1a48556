package command

import "strings"

// Whitelist is the immutable ordered set of address prefixes permitted for
// raw-command. All other operations emit template addresses and never
// consult it.
type Whitelist struct {
	prefixes []string
}

// NewWhitelist copies the given prefixes, dropping empty entries.
func NewWhitelist(prefixes []string) Whitelist {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		cleaned = append(cleaned, p)
	}
	return Whitelist{prefixes: cleaned}
}

// Allows reports whether address matches at least one prefix.
func (w Whitelist) Allows(address string) bool {
	for _, p := range w.prefixes {
		if strings.HasPrefix(address, p) {
			return true
		}
	}
	return false
}

// Prefixes returns a copy of the configured prefixes.
func (w Whitelist) Prefixes() []string {
	out := make([]string, len(w.prefixes))
	copy(out, w.prefixes)
	return out
}
