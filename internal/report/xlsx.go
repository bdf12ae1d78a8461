package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/profile-dedupe/internal/model"
)

// Sheet names of the review workbook.
const (
	SheetGroups    = "Groups"
	SheetScores    = "Scores"
	SheetMergeLog  = "Merge log"
	SheetFailures  = "Failures"
	SheetOrphans   = "Orphans"
	SheetMalformed = "Malformed"
)

// ExportXLSX writes a review workbook for r to path: one sheet per concern so
// a reviewer can filter merges before approving a commit.
func ExportXLSX(r *model.Report, path string) error {
	f := xlsx.NewFile()

	groups, err := addSheet(f, SheetGroups, "Handle", "Action", "Canonical key", "Canonical id", "Primary key", "Source keys", "Deleted keys", "Canonical document")
	if err != nil {
		return err
	}
	scores, err := addSheet(f, SheetScores, "Handle", "Key", "Score", "Preferred key", "Approved", "Role", "Fields", "Age")
	if err != nil {
		return err
	}
	mergeLog, err := addSheet(f, SheetMergeLog, "Handle", "Step", "Decision")
	if err != nil {
		return err
	}

	for _, g := range r.Results.Success {
		canonical, _ := json.Marshal(g.Canonical)
		addRow(groups, g.Handle, string(g.Action), g.CanonicalKey, g.CanonicalID, g.PrimaryKey,
			strings.Join(g.SourceKeys, ", "), strings.Join(g.DeletedKeys, ", "), string(canonical))

		for _, s := range g.Scores {
			row := scores.AddRow()
			row.AddCell().SetString(g.Handle)
			row.AddCell().SetString(s.Key)
			for _, v := range []float64{s.Score, s.Breakdown.PreferredKey, s.Breakdown.Approved, s.Breakdown.Role, s.Breakdown.Fields, s.Breakdown.Age} {
				row.AddCell().SetFloat(v)
			}
		}

		for i, entry := range g.MergeLog {
			row := mergeLog.AddRow()
			row.AddCell().SetString(g.Handle)
			row.AddCell().SetInt(i + 1)
			row.AddCell().SetString(entry)
		}
	}

	failures, err := addSheet(f, SheetFailures, "Handle", "Stage", "Error type", "Reason", "Keys")
	if err != nil {
		return err
	}
	for _, fl := range r.Results.Failed {
		addRow(failures, fl.Handle, fl.Stage, fl.ErrorType, fl.Reason, strings.Join(fl.Keys, ", "))
	}
	for _, sk := range r.Results.Skipped {
		addRow(failures, sk.Handle, "skipped", "", sk.Reason, "")
	}

	orphans, err := addSheet(f, SheetOrphans, "Key", "Reason")
	if err != nil {
		return err
	}
	for _, o := range r.Orphans {
		addRow(orphans, o.Key, o.Reason)
	}

	malformed, err := addSheet(f, SheetMalformed, "Key", "Reason", "Vanished")
	if err != nil {
		return err
	}
	for _, m := range r.Malformed {
		addRow(malformed, m.Key, m.Reason, fmt.Sprint(m.Absent))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

func addSheet(f *xlsx.File, name string, header ...string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "report: add sheet %s", name)
	}
	addRow(sheet, header...)
	return sheet, nil
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}
