package records

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/agentstation/sheetsync/pkg/logging"
)

// NormalizeRow cleans the keys and values of a single raw row.
func NormalizeRow(row RawRow) RawRow {
	out := make(RawRow, len(row))
	for k, v := range row {
		out[NormalizeHeader(k)] = NormalizeValue(v)
	}
	return out
}

// Normalize validates rows in order. rows[0] is taken to be sheet row
// FirstDataRow. Blank rows are skipped silently; rows missing part_no or
// carrying an unparsable weight are skipped with a warning. A missing or bad
// price is warned about and read as zero. Nothing here aborts the batch.
func Normalize(rows []RawRow, sourceName string, logger *zerolog.Logger) Result {
	if logger == nil {
		logger = logging.Default()
	}

	res := Result{Records: make([]SourceRecord, 0, len(rows))}
	for i, raw := range rows {
		rowNum := i + FirstDataRow
		row := NormalizeRow(raw)

		if isBlank(row) {
			res.Skipped++
			continue
		}

		partNo := row[FieldPartNo]
		if partNo == "" {
			logger.Warn().
				Int("row", rowNum).
				Str("source", sourceName).
				Msgf("Row %d: is missing required field '%s'", rowNum, FieldPartNo)
			res.Skipped++
			continue
		}

		weight, err := ParseWeight(row[FieldWeight])
		if err != nil {
			logger.Warn().
				Err(err).
				Int("row", rowNum).
				Str("part_no", partNo).
				Msg("Skipping row with invalid weight")
			res.Skipped++
			continue
		}

		price, ok := ParsePrice(row[FieldPrice])
		if !ok {
			logger.Warn().
				Int("row", rowNum).
				Str("part_no", partNo).
				Str("price", row[FieldPrice]).
				Msg("Missing or unparsable price, using 0.00")
		}

		res.Records = append(res.Records, SourceRecord{
			PartNo:     partNo,
			Price:      price,
			Weight:     weight,
			Tag:        row[FieldTag],
			Collection: row[FieldCollection],
			RowNumber:  rowNum,
			SourceName: sourceName,
		})
	}
	return res
}

// FindDuplicates returns each part number that appears on more than one
// row, mapped to the row numbers it appears on.
func FindDuplicates(recs []SourceRecord) map[string][]int {
	seen := make(map[string][]int, len(recs))
	for _, r := range recs {
		seen[r.PartNo] = append(seen[r.PartNo], r.RowNumber)
	}

	dups := make(map[string][]int)
	for partNo, rows := range seen {
		if len(rows) > 1 {
			sort.Ints(rows)
			dups[partNo] = rows
		}
	}
	return dups
}

func isBlank(row RawRow) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
