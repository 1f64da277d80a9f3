package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"redminetojira/models"
	"redminetojira/utils"
)

// TargetUserDirectory は移行先 (JIRA) のユーザー検索と作成です
type TargetUserDirectory interface {
	FindUser(ctx context.Context, email string) (accountID string, found bool, err error)
	CreateUser(ctx context.Context, email, displayName string) (accountID string, err error)
}

var errMissingMail = errors.New("メールアドレスが登録されていません")

// ProvisionResult はユーザー作成の集計です
type ProvisionResult struct {
	Total   int
	Found   int
	Created int
	Failed  int
}

// UserProvisioner は移行データから参照されたユーザーを JIRA に用意します
type UserProvisioner struct {
	registry      *Registry
	directory     TargetUserDirectory
	maxConcurrent int
}

// NewUserProvisioner は新しい UserProvisioner を作成します
func NewUserProvisioner(registry *Registry, directory TargetUserDirectory, maxConcurrent int) *UserProvisioner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &UserProvisioner{
		registry:      registry,
		directory:     directory,
		maxConcurrent: maxConcurrent,
	}
}

// Provision は参照済みユーザーを JIRA で検索し、存在しなければ作成して
// アカウントIDを記録します。ユーザー単位の失敗はログに記録して続行します
func (p *UserProvisioner) Provision(ctx context.Context) ProvisionResult {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "ユーザー作成")

	users := p.registry.ReferencedUsers()
	result := ProvisionResult{Total: len(users)}
	utils.LogInfo("JIRA ユーザーの作成を開始します: %d 人", len(users))

	// セマフォとしてのチャネル（並列数を制限）
	semaphore := make(chan struct{}, p.maxConcurrent)
	var wg sync.WaitGroup
	var countMutex sync.Mutex

	for _, user := range users {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(u *models.SourceUser) {
			defer wg.Done()
			defer func() { <-semaphore }()

			created, err := p.provisionUser(ctx, u)

			countMutex.Lock()
			defer countMutex.Unlock()

			switch {
			case err != nil:
				utils.LogError("ユーザー %s の作成失敗: %v", u.Login, err)
				result.Failed++
			case created:
				result.Created++
			default:
				result.Found++
			}
		}(user)
	}

	wg.Wait()
	close(semaphore)

	utils.LogInfo("JIRA ユーザーの作成が完了しました: 合計=%d, 既存=%d, 作成=%d, 失敗=%d",
		result.Total, result.Found, result.Created, result.Failed)
	return result
}

func (p *UserProvisioner) provisionUser(ctx context.Context, u *models.SourceUser) (bool, error) {
	if u.Mail == "" {
		return false, errMissingMail
	}

	accountID, found, err := p.directory.FindUser(ctx, u.Mail)
	if err != nil {
		return false, err
	}
	if found {
		p.registry.SetTargetID(strconv.Itoa(u.ID), accountID)
		return false, nil
	}

	accountID, err = p.directory.CreateUser(ctx, u.Mail, displayName(u))
	if err != nil {
		return false, err
	}
	p.registry.SetTargetID(strconv.Itoa(u.ID), accountID)
	utils.LogInfo("JIRA ユーザーを作成しました: %s (%s)", u.Login, accountID)
	return true, nil
}

func displayName(u *models.SourceUser) string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Login
}
