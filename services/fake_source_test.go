package services

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"redminetojira/config"
	"redminetojira/models"
	"redminetojira/utils"
)

// fakeSource はテスト用の Redmine です
type fakeSource struct {
	issues     []models.SourceIssue
	users      []models.SourceUser
	versions   []models.SourceVersion
	statuses   []models.NamedEntity
	trackers   []models.NamedEntity
	fields     []models.NamedEntity
	priorities []models.NamedEntity
	categories []models.SourceCategory

	issuesErr   error
	usersErr    error
	versionsErr error

	issueCalls    int32
	versionCalls  int32
	categoryCalls int32
}

func (f *fakeSource) GetIssues(ctx context.Context) ([]models.SourceIssue, error) {
	atomic.AddInt32(&f.issueCalls, 1)
	return f.issues, f.issuesErr
}

func (f *fakeSource) GetUsers(ctx context.Context) ([]models.SourceUser, error) {
	return f.users, f.usersErr
}

func (f *fakeSource) GetVersions(ctx context.Context) ([]models.SourceVersion, error) {
	atomic.AddInt32(&f.versionCalls, 1)
	return f.versions, f.versionsErr
}

func (f *fakeSource) GetIssueStatuses(ctx context.Context) ([]models.NamedEntity, error) {
	return f.statuses, nil
}

func (f *fakeSource) GetTrackers(ctx context.Context) ([]models.NamedEntity, error) {
	return f.trackers, nil
}

func (f *fakeSource) GetCustomFields(ctx context.Context) ([]models.NamedEntity, error) {
	return f.fields, nil
}

func (f *fakeSource) GetPriorities(ctx context.Context) ([]models.NamedEntity, error) {
	return f.priorities, nil
}

func (f *fakeSource) GetCategories(ctx context.Context) ([]models.SourceCategory, error) {
	atomic.AddInt32(&f.categoryCalls, 1)
	return f.categories, nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		users: []models.SourceUser{
			{ID: 1, Login: "alice", FirstName: "Alice", LastName: "Smith", Mail: "alice@example.com"},
			{ID: 2, Login: "bob", FirstName: "Bob", LastName: "Jones", Mail: "bob@example.com"},
			{ID: 3},
		},
		versions: []models.SourceVersion{
			{ID: 10, Name: "1.0", Status: "closed", DueDate: "2020-01-31"},
			{ID: 11, Name: "2.0", Status: "open"},
			{ID: 925, Name: "Fetched name"},
		},
		statuses: []models.NamedEntity{
			{ID: 1, Name: "New"},
			{ID: 3, Name: "Resolved"},
		},
		trackers: []models.NamedEntity{
			{ID: 1, Name: "Bug"},
			{ID: 2, Name: "Feature"},
		},
		fields: []models.NamedEntity{
			{ID: 5, Name: "QA-Contact"},
			{ID: 6, Name: "Patch Version"},
			{ID: 7, Name: "Customer"},
		},
		priorities: []models.NamedEntity{
			{ID: 2, Name: "Normal"},
		},
		categories: []models.SourceCategory{
			{ID: 4, Name: "UI", AssignedTo: &models.Ref{ID: 2, Name: "Bob Jones"}},
			{ID: 8, Name: "Backend"},
		},
	}
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		RedmineURL:              "https://redmine.example.com",
		RedmineProject:          "web",
		AttachmentServerAddress: "http://relay.example.com:3001",
		JiraProject:             "Web",
		JiraProjectKey:          "PRJ",
		IssueCache:              dir + "/issues.json",
		OutputFile:              dir + "/output.json",
		MaxConcurrent:           3,
		Mappings:                config.DefaultMappings(),
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := PopulateRegistry(context.Background(), newFakeSource(), config.DefaultMappings())
	require.NoError(t, err)
	return registry
}

// captureLogs はテスト中のログを取得します
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	restore := utils.SetOutput(&buf)
	t.Cleanup(restore)
	return &buf
}
