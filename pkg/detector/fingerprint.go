// Package detector decides whether a source snapshot changed since the last
// reconciled snapshot.
package detector

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/agentstation/sheetsync/pkg/records"
)

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// Fingerprint returns a stable 64-bit xxhash over the canonical form of
// recs. Row order and provenance metadata do not affect the result, so the
// value is comparable across process restarts.
func Fingerprint(recs []records.SourceRecord) uint64 {
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = canonical(r)
	}
	sort.Strings(lines)

	d := xxhash.New()
	for _, line := range lines {
		_, _ = d.WriteString(line)
		_, _ = d.WriteString(recordSep)
	}
	return d.Sum64()
}

// canonical starts with the part number so that sorting lines orders by
// part_no first.
func canonical(r records.SourceRecord) string {
	return strings.Join([]string{
		r.PartNo,
		r.FormattedPrice(),
		strconv.Itoa(r.Weight),
		r.Tag,
		r.Collection,
	}, fieldSep)
}
