// Package export renders the decision matrix and reconciled fields
// into the formats the safety team consumes: an xlsx workbook for the
// matrix and csv for field-level review.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/chemsafe-cli/internal/model"
)

// MatrixXLSX writes the decision matrix to an xlsx workbook with two
// sheets: a square grid of decisions and a flat justification log. The
// grid shows one decision per pair; self-cells are marked with a dash.
func MatrixXLSX(decisions []model.MatrixDecision, path string) error {
	f := xlsx.NewFile()

	if err := writeGridSheet(f, decisions); err != nil {
		return err
	}
	if err := writeJustificationSheet(f, decisions); err != nil {
		return err
	}

	return eris.Wrapf(f.Save(path), "export: save workbook %s", path)
}

func writeGridSheet(f *xlsx.File, decisions []model.MatrixDecision) error {
	sheet, err := f.AddSheet("matrix")
	if err != nil {
		return eris.Wrap(err, "export: add matrix sheet")
	}

	ids := chemicalIDs(decisions)
	byPair := make(map[model.PairKey]model.MatrixDecision, len(decisions))
	for _, d := range decisions {
		byPair[d.Pair] = d
	}

	header := sheet.AddRow()
	header.AddCell().SetString("")
	for _, id := range ids {
		header.AddCell().SetString(id)
	}

	for _, rowID := range ids {
		row := sheet.AddRow()
		row.AddCell().SetString(rowID)
		for _, colID := range ids {
			cell := row.AddCell()
			if rowID == colID {
				cell.SetString("-")
				continue
			}
			if d, ok := byPair[model.NewPairKey(rowID, colID)]; ok {
				cell.SetString(string(d.Decision))
			} else {
				cell.SetString(string(model.DecisionUnknown))
			}
		}
	}
	return nil
}

func writeJustificationSheet(f *xlsx.File, decisions []model.MatrixDecision) error {
	sheet, err := f.AddSheet("justifications")
	if err != nil {
		return eris.Wrap(err, "export: add justifications sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"chemical_a", "chemical_b", "decision", "confidence",
		"justification", "elevated", "elevation_reason", "contributing_rules", "decided_at",
	} {
		header.AddCell().SetString(h)
	}

	sorted := make([]model.MatrixDecision, len(decisions))
	copy(sorted, decisions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pair.String() < sorted[j].Pair.String() })

	for _, d := range sorted {
		row := sheet.AddRow()
		row.AddCell().SetString(d.ChemicalA)
		row.AddCell().SetString(d.ChemicalB)
		row.AddCell().SetString(string(d.Decision))
		row.AddCell().SetString(fmt.Sprintf("%.2f", d.Confidence))
		row.AddCell().SetString(d.Justification)
		row.AddCell().SetString(strconv.FormatBool(d.Elevated))
		row.AddCell().SetString(d.ElevationReason)
		row.AddCell().SetString(strings.Join(d.ContributingRuleIDs, ";"))
		row.AddCell().SetString(d.DecidedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// FieldsCSV writes reconciled fields to w, one row per (chemical, field).
func FieldsCSV(fields []model.ReconciledField, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{
		"chemical_id", "field_name", "value", "confidence", "quality_tier",
		"validated", "not_found", "tier_disagreement", "contributing_sources", "reconciled_at",
	}); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}

	for _, f := range fields {
		if err := cw.Write([]string{
			f.ChemicalID,
			f.FieldName,
			f.Value,
			fmt.Sprintf("%.4f", f.Confidence),
			string(f.Tier),
			strconv.FormatBool(f.Validated),
			strconv.FormatBool(f.NotFound),
			strconv.FormatBool(f.TierDisagreement),
			strings.Join(f.ContributingIDs, ";"),
			f.ReconciledAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return eris.Wrapf(err, "export: write csv row %s/%s", f.ChemicalID, f.FieldName)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// chemicalIDs returns the sorted set of chemicals mentioned by any
// decision.
func chemicalIDs(decisions []model.MatrixDecision) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, d := range decisions {
		for _, id := range []string{d.ChemicalA, d.ChemicalB} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
