package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "kv_documents",
		Columns:      []string{"key", "value"},
		ConflictKeys: []string{"key"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "kv_documents",
		ConflictKeys: []string{"key"},
	}, [][]any{{"user:1", "{}"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "kv_documents",
		Columns: []string{"key", "value"},
	}, [][]any{{"user:1", "{}"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_CopiesAndMerges(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_kv_documents" \(LIKE "kv_documents"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_kv_documents"}, []string{"key", "value"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "kv_documents" .* ON CONFLICT \("key"\) DO UPDATE SET "value" = EXCLUDED."value"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "kv_documents",
		Columns:      []string{"key", "value"},
		ConflictKeys: []string{"key"},
	}, [][]any{{"user:1", "{}"}, {"user:2", "{}"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBuildUpsertSQL_DoNothing(t *testing.T) {
	sql := buildUpsertSQL("kv_set_members", "_tmp", []string{"key", "member"}, []string{"key", "member"}, nil)
	assert.Equal(t,
		`INSERT INTO "kv_set_members" ("key", "member") SELECT "key", "member" FROM "_tmp" ON CONFLICT ("key", "member") DO NOTHING`,
		sql)
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"kv.documents", `"kv"."documents"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"key", "member"})
	assert.Equal(t, `"key", "member"`, result)
}
