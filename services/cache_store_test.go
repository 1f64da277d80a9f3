package services

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"redminetojira/models"
)

func TestCacheStoreIssues(t *testing.T) {
	cfg := newTestConfig(t)
	store := NewCacheStore(cfg)

	_, found, err := store.LoadIssues()
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, store.HasIssues())

	first := []models.SourceIssue{{ID: 1, Subject: "first"}}
	require.NoError(t, store.SaveIssues(first))

	// 既存のキャッシュは上書きしない
	require.NoError(t, store.SaveIssues([]models.SourceIssue{{ID: 2, Subject: "second"}}))

	issues, found, err := store.LoadIssues()
	require.NoError(t, err)
	assert.True(t, found)
	require.Len(t, issues, 1)
	assert.Equal(t, "first", issues[0].Subject)
}

func TestCacheStoreInvalidCache(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, os.WriteFile(cfg.IssueCache, []byte("{not json"), 0o644))

	_, _, err := NewCacheStore(cfg).LoadIssues()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "キャッシュ解析エラー")
}

func TestCacheStoreWriteExport(t *testing.T) {
	cfg := newTestConfig(t)
	store := NewCacheStore(cfg)

	doc := models.ImportDocument{
		Projects: []models.TargetProject{{Key: "PRJ", Issues: []models.TargetIssue{{Key: "PRJ-1"}}}},
		Links:    []models.TargetLink{},
	}
	require.NoError(t, store.WriteExport(doc))

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"projects\": [")
	assert.Equal(t, "PRJ-1", gjson.GetBytes(data, "projects.0.issues.0.key").String())
}
