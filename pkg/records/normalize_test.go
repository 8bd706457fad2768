package records_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/sheetsync/pkg/logging"
	"github.com/agentstation/sheetsync/pkg/records"
)

func TestNormalize(t *testing.T) {
	tl := logging.NewTestLogger(t)

	rows := []records.RawRow{
		{"Part No": " A1 ", "Price": "$10.00", "Weight": "100", "Tag": "cable,usb", "Collection": "Cables"},
		{"Part No": "", "Price": "", "Weight": "", "Tag": "", "Collection": ""},
		{"Part No": "", "Price": "5", "Weight": "1", "Tag": "", "Collection": "Phones"},
		{"Part No": "B2", "Price": "", "Weight": "50", "Tag": "", "Collection": ""},
		{"Part No": "C3", "Price": "1", "Weight": "heavy", "Tag": "", "Collection": ""},
		{"part-no": "d4", "PRICE": "abc", "weight": "7.9"},
	}

	res := records.Normalize(rows, "VOIP", tl.Logger)

	require.Len(t, res.Records, 3)
	assert.Equal(t, 3, res.Skipped)

	a1 := res.Records[0]
	assert.Equal(t, "A1", a1.PartNo)
	assert.Equal(t, "10.00", a1.FormattedPrice())
	assert.Equal(t, 100, a1.Weight)
	assert.Equal(t, "cable,usb", a1.Tag)
	assert.Equal(t, "Cables", a1.Collection)
	assert.Equal(t, 2, a1.RowNumber)
	assert.Equal(t, "VOIP", a1.SourceName)

	b2 := res.Records[1]
	assert.Equal(t, "B2", b2.PartNo)
	assert.Equal(t, "0.00", b2.FormattedPrice())
	assert.Equal(t, 50, b2.Weight)
	assert.Equal(t, 5, b2.RowNumber)

	d4 := res.Records[2]
	assert.Equal(t, "d4", d4.PartNo, "part numbers keep their case")
	assert.Equal(t, 7, d4.Weight)

	tl.AssertContains(t, "Row 4: is missing required field 'part_no'")
	tl.AssertNotContains(t, "Row 3:")
	tl.AssertContains(t, "Skipping row with invalid weight")
	tl.AssertContains(t, "Missing or unparsable price")
}

func TestNormalizeEmpty(t *testing.T) {
	res := records.Normalize(nil, "VOIP", logging.NewNopLogger())
	assert.Empty(t, res.Records)
	assert.Zero(t, res.Skipped)
}

func TestFindDuplicates(t *testing.T) {
	recs := []records.SourceRecord{
		{PartNo: "A1", RowNumber: 2},
		{PartNo: "B2", RowNumber: 3},
		{PartNo: "A1", RowNumber: 7},
		{PartNo: "a1", RowNumber: 8},
	}

	dups := records.FindDuplicates(recs)
	assert.Equal(t, map[string][]int{"A1": {2, 7}}, dups)
}
