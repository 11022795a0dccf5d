package advert

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) without dashes.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a service identifier to the internal form: lowercase
// hex without dashes, braces or 0x prefix. SIG base 128-bit UUIDs collapse to
// their 16-bit short form. Returns "" when the input is not a UUID.
func NormalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")

	switch len(s) {
	case 4:
		if isHex(s) {
			return s
		}
		return ""
	case 8:
		if !isHex(s) {
			return ""
		}
		if strings.HasPrefix(s, "0000") {
			return s[4:]
		}
		return s
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return ""
	}
	full := strings.ReplaceAll(u.String(), "-", "")
	if strings.HasPrefix(full, "0000") && strings.HasSuffix(full, sigBaseSuffix) {
		return full[4:8]
	}
	return full
}

// NormalizeServices normalizes every identifier, drops malformed ones and
// returns a sorted set. The result is never nil.
func NormalizeServices(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		n := NormalizeUUID(raw)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
