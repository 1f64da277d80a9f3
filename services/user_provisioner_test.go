package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeDirectory はテスト用の JIRA ユーザーディレクトリです
type fakeDirectory struct {
	mu       sync.Mutex
	existing map[string]string
	created  map[string]string
	failOn   string
}

func (d *fakeDirectory) FindUser(ctx context.Context, email string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if email == d.failOn {
		return "", false, errors.New("search failed")
	}
	id, ok := d.existing[strings.ToLower(email)]
	return id, ok, nil
}

func (d *fakeDirectory) CreateUser(ctx context.Context, email, displayName string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := "new-" + displayName
	d.created[email] = id
	return id, nil
}

func TestProvisionUsers(t *testing.T) {
	registry := newTestRegistry(t)
	registry.MarkReferenced("1")
	registry.MarkReferenced("2")
	registry.MarkReferenced("3")

	directory := &fakeDirectory{
		existing: map[string]string{"alice@example.com": "acc-alice"},
		created:  map[string]string{},
	}

	result := NewUserProvisioner(registry, directory, 2).Provision(context.Background())

	assert.Equal(t, ProvisionResult{Total: 3, Found: 1, Created: 1, Failed: 1}, result)
	assert.Equal(t, map[string]string{"bob@example.com": "new-Bob Jones"}, directory.created)
	assert.Equal(t, "acc-alice", registry.MapUserToTargetID("1"))
	assert.Equal(t, "new-Bob Jones", registry.MapUserToTargetID("2"))
}

func TestProvisionUsersFailureIsNotFatal(t *testing.T) {
	logs := captureLogs(t)
	registry := newTestRegistry(t)
	registry.MarkReferenced("1")
	registry.MarkReferenced("2")

	directory := &fakeDirectory{
		existing: map[string]string{},
		created:  map[string]string{},
		failOn:   "alice@example.com",
	}

	result := NewUserProvisioner(registry, directory, 0).Provision(context.Background())

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Created)
	assert.Contains(t, logs.String(), "ユーザー alice の作成失敗")
}

func TestRegistryTargetAccountsAfterProvision(t *testing.T) {
	registry := newTestRegistry(t)
	registry.MarkReferenced("1")

	directory := &fakeDirectory{existing: map[string]string{"alice@example.com": "acc-alice"}, created: map[string]string{}}
	NewUserProvisioner(registry, directory, 1).Provision(context.Background())

	assert.Equal(t, map[string]string{"alice": "acc-alice"}, registry.TargetAccounts())
}
