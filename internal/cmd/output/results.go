package output

import (
	"fmt"
	"strconv"
	"time"

	"github.com/agentstation/sheetsync"
	"github.com/agentstation/sheetsync/internal/cmd/emoji"
	"github.com/agentstation/sheetsync/pkg/reconciler"
)

// CycleTables renders a cycle result as a summary table followed by a
// per-record table. Wide output adds the remote id and error columns.
func CycleTables(res sheetsync.CycleResult, wide bool) []Data {
	summary := Data{
		Headers: []string{"Property", "Value"},
		Rows: [][]string{
			{"Cycle", res.ID},
			{"Source", res.Source},
			{"Changed", strconv.FormatBool(res.Changed)},
			{"Records", strconv.Itoa(res.Records)},
			{"Invalid Rows", strconv.Itoa(res.Invalid)},
			{"Created", strconv.Itoa(res.Summary.Created)},
			{"Updated", strconv.Itoa(res.Summary.Updated)},
			{"Failed", strconv.Itoa(res.Summary.Failed)},
			{"Skipped", strconv.Itoa(res.Summary.Skipped)},
			{"Committed", strconv.FormatBool(res.Committed)},
			{"Duration", res.Duration.Round(time.Millisecond).String()},
		},
	}
	if res.Summary.MirrorErrors > 0 {
		summary.Rows = append(summary.Rows, []string{"Mirror Errors", strconv.Itoa(res.Summary.MirrorErrors)})
	}
	if res.Summary.Interrupted {
		summary.Rows = append(summary.Rows, []string{"Interrupted", "true"})
	}

	if len(res.Outcomes) == 0 {
		return []Data{summary}
	}
	return []Data{summary, OutcomeTable(res.Outcomes, wide)}
}

// OutcomeTable renders one row per outcome.
func OutcomeTable(outcomes []reconciler.Outcome, wide bool) Data {
	headers := []string{"", "Part No", "Action"}
	align := []Align{AlignCenter, AlignLeft, AlignLeft}
	if wide {
		headers = append(headers, "Remote ID", "Error")
		align = append(align, AlignRight, AlignLeft)
	}

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		row := []string{actionSymbol(o.Action), o.PartNo, string(o.Action)}
		if wide {
			id := ""
			if o.RemoteID != 0 {
				id = strconv.FormatInt(o.RemoteID, 10)
			}
			msg := ""
			if o.Err != nil {
				msg = o.Err.Error()
			}
			row = append(row, id, msg)
		}
		rows = append(rows, row)
	}
	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// PlanTable renders the actions a dry run would take, alongside the values
// that would be written.
func PlanTable(plan sheetsync.PlanResult) Data {
	rows := make([][]string, 0, len(plan.Outcomes))
	for i, o := range plan.Outcomes {
		row := []string{string(o.Action), o.PartNo, "", "", "", "", ""}
		if i < len(plan.Records) {
			rec := plan.Records[i]
			row[2] = rec.FormattedPrice()
			row[3] = strconv.Itoa(rec.Weight)
			row[4] = rec.Tag
			row[5] = rec.Collection
		}
		if o.RemoteID != 0 {
			row[6] = strconv.FormatInt(o.RemoteID, 10)
		}
		rows = append(rows, row)
	}
	return Data{
		Headers:         []string{"Action", "Part No", "Price", "Weight", "Tag", "Collection", "Remote ID"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignRight, AlignRight, AlignLeft, AlignLeft, AlignRight},
	}
}

// CheckTable renders a connectivity report.
func CheckTable(report sheetsync.CheckReport) Data {
	source := fmt.Sprintf("%d rows", report.Rows)
	if report.Metadata != nil {
		source = fmt.Sprintf("%s / %s (%d rows, %d columns)",
			report.Metadata.Title, report.Metadata.Worksheet, report.Metadata.RowCount, report.Metadata.ColumnCount)
	}
	if !report.SourceOK {
		source = report.SourceError
	}

	catalog := fmt.Sprintf("%d products", report.Products)
	if !report.CatalogOK {
		catalog = report.CatalogError
	}

	mirrorSymbol := emoji.Optional
	mirror := report.Mirror
	switch report.Mirror {
	case "ok":
		mirrorSymbol = emoji.Success
	case "unavailable":
		mirrorSymbol = emoji.Error
		mirror = report.MirrorError
	}

	return Data{
		Headers: []string{"", "Component", "Detail"},
		Rows: [][]string{
			{emoji.Status(report.SourceOK), "Source " + report.Source, source},
			{emoji.Status(report.CatalogOK), "Catalog", catalog},
			{mirrorSymbol, "Mirror", mirror},
		},
		ColumnAlignment: []Align{AlignCenter, AlignLeft, AlignLeft},
	}
}

func actionSymbol(a reconciler.Action) string {
	switch a {
	case reconciler.ActionCreate, reconciler.ActionUpdate:
		return emoji.Success
	case reconciler.ActionFailed:
		return emoji.Error
	default:
		return emoji.Optional
	}
}
