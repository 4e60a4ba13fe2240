package node

import (
	"net"
	"strings"
)

// NormalizeHostPort cuts the http:// https:// prefixes from the input address
// and adds a default port
func NormalizeHostPort(addr, defPort string) string {
	if rest, ok := strings.CutPrefix(addr, "http://"); ok {
		addr = rest
	} else if rest, ok := strings.CutPrefix(addr, "https://"); ok {
		addr = rest
	}

	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}

	return addr + ":" + defPort
}

// NormalizeSeeds normalizes every seed, dropping blanks, duplicates and self.
func NormalizeSeeds(seeds []string, self, defPort string) []string {
	seen := map[string]struct{}{self: {}}
	out := make([]string, 0, len(seeds))
	for _, s := range seeds {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		hp := NormalizeHostPort(s, defPort)
		if _, ok := seen[hp]; ok {
			continue
		}
		seen[hp] = struct{}{}
		out = append(out, hp)
	}
	return out
}
