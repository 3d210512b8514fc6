package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "reconciled_fields"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_MissingColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "reconciled_fields",
		ConflictKeys: []string{"chemical_id", "field_name"},
	}, [][]any{{"x"}})
	assert.Error(t, err)
}

func TestBulkUpsert_MissingConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "reconciled_fields",
		Columns: []string{"chemical_id", "field_name", "value"},
	}, [][]any{{"x", "y", "z"}})
	assert.Error(t, err)
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"reconciled_fields"`, sanitizeTable("reconciled_fields"))
	assert.Equal(t, `"safety"."reconciled_fields"`, sanitizeTable("safety.reconciled_fields"))
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"chemical_id", "field_name"`, quoteAndJoin([]string{"chemical_id", "field_name"}))
}
