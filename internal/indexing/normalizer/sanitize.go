package normalizer

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vietddude/boatwatch/internal/core/domain"
)

// maxStorableUnix is 294276-12-31T23:59:59Z, the last second a timestamptz column holds.
const maxStorableUnix = 9224318015999

// unixTime converts an on-chain seconds value. ok is false when the value cannot be
// stored; the zero time is returned in that case.
func unixTime(v uint64) (t time.Time, ok bool) {
	if v > maxStorableUnix {
		return time.Time{}, false
	}
	return time.Unix(int64(v), 0).UTC(), true
}

// cleanText drops NUL bytes and invalid UTF-8, neither of which a text column accepts.
// ok is false when anything was removed.
func cleanText(s string) (string, bool) {
	if utf8.ValidString(s) && strings.IndexByte(s, 0) < 0 {
		return s, true
	}
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", ""), false
}

// cleanFields cleans each named field in place and records an anomaly per altered field.
func cleanFields(found *anomalies, fields map[string]*string) {
	for _, name := range []string{"author", "issuer", "title", "description", "contentHash"} {
		p, ok := fields[name]
		if !ok {
			continue
		}
		if cleaned, ok := cleanText(*p); !ok {
			*p = cleaned
			found.add(domain.AnomalyInvalidText, "%s contains NUL or invalid UTF-8", name)
		}
	}
}
