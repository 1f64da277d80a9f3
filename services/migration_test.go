package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"redminetojira/models"
)

func sourceWithIssues() *fakeSource {
	source := newFakeSource()
	first := sampleIssue()
	second := sampleIssue()
	second.ID = 3
	second.Relations = []models.SourceRelation{{ID: 2, IssueID: 3, IssueToID: 17, RelationType: "blocks"}}
	source.issues = []models.SourceIssue{first, second}
	return source
}

func TestRunMigration(t *testing.T) {
	cfg := newTestConfig(t)
	source := sourceWithIssues()
	service := NewMigrationService(cfg, source, NewCacheStore(cfg))

	require.NoError(t, service.RunMigration(context.Background(), RunOptions{}))

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	out := gjson.ParseBytes(data)

	assert.Equal(t, "PRJ", out.Get("projects.0.key").String())
	assert.Equal(t, "Web", out.Get("projects.0.name").String())
	assert.Equal(t, "PRJ-17", out.Get("projects.0.issues.0.key").String())
	assert.Equal(t, "PRJ-3", out.Get("projects.0.issues.1.key").String())
	assert.Equal(t, int64(3), out.Get("projects.0.versions.#").Int())
	assert.Equal(t, int64(2), out.Get("projects.0.components.#").Int())

	links := out.Get("links").Array()
	require.Len(t, links, 2)
	assert.Equal(t, "PRJ-17", links[0].Get("sourceId").String())
	assert.Equal(t, "Blocks", links[1].Get("name").String())

	// キャッシュには取得したイシューがそのまま保存される
	cached, err := os.ReadFile(cfg.IssueCache)
	require.NoError(t, err)
	var issues []models.SourceIssue
	require.NoError(t, json.Unmarshal(cached, &issues))
	assert.Len(t, issues, 2)
	// 対応表の作成時とプロジェクト情報の組み立て時にそれぞれ取得する
	assert.Equal(t, int32(2), atomic.LoadInt32(&source.versionCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&source.categoryCalls))
}

func TestRunMigrationUsesCache(t *testing.T) {
	cfg := newTestConfig(t)
	source := sourceWithIssues()
	store := NewCacheStore(cfg)
	require.NoError(t, store.SaveIssues([]models.SourceIssue{{ID: 99, Subject: "cached"}}))

	require.NoError(t, NewMigrationService(cfg, source, store).RunMigration(context.Background(), RunOptions{}))

	assert.Equal(t, int32(0), atomic.LoadInt32(&source.issueCalls))
	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, "PRJ-99", gjson.GetBytes(data, "projects.0.issues.0.key").String())
}

func TestRunMigrationRequireCache(t *testing.T) {
	cfg := newTestConfig(t)
	source := sourceWithIssues()

	err := NewMigrationService(cfg, source, NewCacheStore(cfg)).RunMigration(context.Background(), RunOptions{RequireCache: true})
	require.ErrorIs(t, err, ErrCacheRequired)
	assert.Equal(t, int32(0), atomic.LoadInt32(&source.issueCalls))
}

func TestRunMigrationFetchOnly(t *testing.T) {
	cfg := newTestConfig(t)
	source := sourceWithIssues()

	require.NoError(t, NewMigrationService(cfg, source, NewCacheStore(cfg)).RunMigration(context.Background(), RunOptions{FetchOnly: true}))

	assert.FileExists(t, cfg.IssueCache)
	assert.NoFileExists(t, cfg.OutputFile)
	assert.Equal(t, int32(0), atomic.LoadInt32(&source.versionCalls))
}

// 変換が中止されてもキャッシュは残り、出力ファイルは作成されません
func TestRunMigrationFatalCustomFieldKeepsCache(t *testing.T) {
	cfg := newTestConfig(t)
	source := sourceWithIssues()
	source.issues[1].CustomFields = append(source.issues[1].CustomFields,
		models.SourceCustomField{ID: 99, Name: "Severity", Value: json.RawMessage(`"S1"`)})

	err := NewMigrationService(cfg, source, NewCacheStore(cfg)).RunMigration(context.Background(), RunOptions{})
	require.ErrorIs(t, err, ErrUnmappedCustomField)

	assert.FileExists(t, cfg.IssueCache)
	assert.NoFileExists(t, cfg.OutputFile)
}

func TestRunMigrationFetchErrorStopsPipeline(t *testing.T) {
	cfg := newTestConfig(t)
	source := sourceWithIssues()
	source.issuesErr = errors.New("connection reset")

	err := NewMigrationService(cfg, source, NewCacheStore(cfg)).RunMigration(context.Background(), RunOptions{})
	require.ErrorIs(t, err, source.issuesErr)
	assert.NoFileExists(t, cfg.IssueCache)
	assert.NoFileExists(t, cfg.OutputFile)
}

func TestRunMigrationVersionFetchError(t *testing.T) {
	cfg := newTestConfig(t)
	source := sourceWithIssues()
	source.versionsErr = errors.New("timeout")

	err := NewMigrationService(cfg, source, NewCacheStore(cfg)).RunMigration(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.NoFileExists(t, cfg.OutputFile)
}

func TestTransformIssuesKeepsOrder(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.MaxConcurrent = 4
	registry := newTestRegistry(t)
	service := NewMigrationService(cfg, newFakeSource(), NewCacheStore(cfg))

	var issues []models.SourceIssue
	for id := 1; id <= 50; id++ {
		issue := sampleIssue()
		issue.ID = id
		issue.Relations = []models.SourceRelation{{ID: id, IssueID: id, IssueToID: id + 1, RelationType: "relates"}}
		issues = append(issues, issue)
	}

	targets, links, err := service.TransformIssues(context.Background(), registry, issues)
	require.NoError(t, err)
	require.Len(t, targets, 50)
	require.Len(t, links, 50)
	for i := range targets {
		assert.Equal(t, issues[i].ID, mustKeyID(t, targets[i].Key))
		assert.Equal(t, targets[i].Key, links[i].SourceID)
	}
}

func TestRunMigrationProvisionsUsers(t *testing.T) {
	logs := captureLogs(t)
	cfg := newTestConfig(t)
	cfg.UseTargetAccountIDs = true
	source := sourceWithIssues()
	directory := &fakeDirectory{
		existing: map[string]string{"alice@example.com": "acc-alice", "bob@example.com": "acc-bob"},
		created:  map[string]string{},
	}

	service := NewMigrationService(cfg, source, NewCacheStore(cfg)).WithUserDirectory(directory)
	require.NoError(t, service.RunMigration(context.Background(), RunOptions{ProvisionUsers: true}))

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, "acc-alice", gjson.GetBytes(data, "projects.0.issues.0.reporter").String())
	assert.Equal(t, "acc-bob", gjson.GetBytes(data, "projects.0.components.0.lead").String())

	// アカウントIDは作成後に解決されるため、未作成の警告は出ない
	assert.NotContains(t, logs.String(), "JIRA アカウントIDがありません")
	assert.Empty(t, directory.created)
}

func TestRunMigrationProvisionsUsersByLogin(t *testing.T) {
	cfg := newTestConfig(t)
	source := sourceWithIssues()
	directory := &fakeDirectory{
		existing: map[string]string{"alice@example.com": "acc-alice"},
		created:  map[string]string{},
	}

	service := NewMigrationService(cfg, source, NewCacheStore(cfg)).WithUserDirectory(directory)
	require.NoError(t, service.RunMigration(context.Background(), RunOptions{ProvisionUsers: true}))

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, "alice", gjson.GetBytes(data, "projects.0.issues.0.reporter").String())
	assert.Equal(t, map[string]string{"bob@example.com": "new-Bob Jones"}, directory.created)
}

func TestCollectReferencedUsers(t *testing.T) {
	logs := captureLogs(t)
	cfg := newTestConfig(t)
	cfg.UseTargetAccountIDs = true
	service := NewMigrationService(cfg, newFakeSource(), NewCacheStore(cfg))
	registry := newTestRegistry(t)

	require.NoError(t, service.CollectReferencedUsers(context.Background(), registry, []models.SourceIssue{sampleIssue()}))

	assert.True(t, registry.IsReferenced("1"))
	assert.True(t, registry.IsReferenced("2"))
	assert.NotContains(t, logs.String(), "JIRA アカウントIDがありません")
	assert.True(t, cfg.UseTargetAccountIDs)
}

func TestProvisionUsersRequiresDirectory(t *testing.T) {
	cfg := newTestConfig(t)
	_, err := NewMigrationService(cfg, newFakeSource(), NewCacheStore(cfg)).ProvisionUsers(context.Background(), newTestRegistry(t))
	assert.Error(t, err)
}

func mustKeyID(t *testing.T, key string) int {
	t.Helper()
	var id int
	_, err := fmt.Sscanf(key, "PRJ-%d", &id)
	require.NoError(t, err)
	return id
}
