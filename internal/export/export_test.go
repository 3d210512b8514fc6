package export

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/chemsafe-cli/internal/model"
)

func decision(a, b string, d model.Decision) model.MatrixDecision {
	pair := model.NewPairKey(a, b)
	return model.MatrixDecision{
		ID:            "id-" + pair.String(),
		Pair:          pair,
		ChemicalA:     pair.Low,
		ChemicalB:     pair.High,
		Decision:      d,
		Confidence:    0.9,
		Justification: "test justification",
		DecidedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMatrixXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.xlsx")
	decisions := []model.MatrixDecision{
		decision("acetone", "sulfuric-acid", model.DecisionIncompatible),
		decision("acetone", "water", model.DecisionCompatible),
	}

	require.NoError(t, MatrixXLSX(decisions, path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	grid, ok := f.Sheet["matrix"]
	require.True(t, ok)

	// Header plus one row per chemical: acetone, sulfuric-acid, water.
	require.Len(t, grid.Rows, 4)
	assert.Equal(t, "acetone", grid.Rows[0].Cells[1].String())

	// Row acetone x column sulfuric-acid.
	assert.Equal(t, "Incompatible", grid.Rows[1].Cells[2].String())
	// Symmetric cell.
	assert.Equal(t, "Incompatible", grid.Rows[2].Cells[1].String())
	// Self cell.
	assert.Equal(t, "-", grid.Rows[1].Cells[1].String())
	// Pair with no decision row.
	assert.Equal(t, "Unknown", grid.Rows[2].Cells[3].String())

	just, ok := f.Sheet["justifications"]
	require.True(t, ok)
	require.Len(t, just.Rows, 3)
	assert.Equal(t, "chemical_a", just.Rows[0].Cells[0].String())
	assert.Equal(t, "test justification", just.Rows[1].Cells[4].String())
}

func TestMatrixXLSX_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, MatrixXLSX(nil, path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Contains(t, f.Sheet, "matrix")
	assert.Contains(t, f.Sheet, "justifications")
}

func TestFieldsCSV(t *testing.T) {
	var buf bytes.Buffer
	fields := []model.ReconciledField{
		{
			ChemicalID:      "sulfuric-acid",
			FieldName:       "cas_number",
			Value:           "7664-93-9",
			Confidence:      0.95,
			Tier:            model.TierExcellent,
			ContributingIDs: []string{"r1", "r2"},
			Validated:       true,
			ReconciledAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}

	require.NoError(t, FieldsCSV(fields, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "chemical_id", rows[0][0])
	assert.Equal(t, "7664-93-9", rows[1][2])
	assert.Equal(t, "0.9500", rows[1][3])
	assert.Equal(t, "excellent", rows[1][4])
	assert.Equal(t, "r1;r2", rows[1][8])
}
