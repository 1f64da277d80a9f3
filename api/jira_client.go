package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"redminetojira/config"
)

// JiraClient は JIRA API とのやり取りを処理します
type JiraClient struct {
	config *config.Config
	jira   *v3.Client
}

// NewJiraClient は新しい JIRA クライアントを作成します
func NewJiraClient(cfg *config.Config) (*JiraClient, error) {
	if err := cfg.ValidateTarget(); err != nil {
		return nil, err
	}

	client, err := v3.New(&http.Client{Timeout: 30 * time.Second}, cfg.JiraURL)
	if err != nil {
		return nil, fmt.Errorf("JIRAクライアント作成エラー: %w", err)
	}
	client.Auth.SetBasicAuth(cfg.JiraEmail, cfg.JiraAPIToken)
	client.Auth.SetUserAgent("redminetojira/1.0")

	return &JiraClient{config: cfg, jira: client}, nil
}

// CheckAuth は JIRA 認証をチェックします
func (j *JiraClient) CheckAuth(ctx context.Context) error {
	_, resp, err := j.jira.MySelf.Details(ctx, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("認証失敗 (ステータス %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("認証失敗: %w", err)
	}
	return nil
}

// FindUser はメールアドレスでユーザーを検索し、アカウントIDを返します
func (j *JiraClient) FindUser(ctx context.Context, email string) (string, bool, error) {
	users, resp, err := j.jira.User.Search.Do(ctx, "", email, 0, 10)
	if err != nil {
		if resp != nil {
			return "", false, fmt.Errorf("ユーザー検索失敗 (ステータス %d): %w", resp.StatusCode, err)
		}
		return "", false, fmt.Errorf("ユーザー検索失敗: %w", err)
	}

	for _, user := range users {
		if user != nil && strings.EqualFold(user.EmailAddress, email) {
			return user.AccountID, true, nil
		}
	}
	return "", false, nil
}

// CreateUser は JIRA にユーザーを作成し、アカウントIDを返します
func (j *JiraClient) CreateUser(ctx context.Context, email, displayName string) (string, error) {
	payload := &models.UserPayloadScheme{
		EmailAddress: email,
		DisplayName:  displayName,
	}

	user, resp, err := j.jira.User.Create(ctx, payload)
	if err != nil {
		if resp != nil {
			return "", fmt.Errorf("ユーザー作成失敗 (ステータス %d): %w", resp.StatusCode, err)
		}
		return "", fmt.Errorf("ユーザー作成失敗: %w", err)
	}
	if user == nil || user.AccountID == "" {
		return "", fmt.Errorf("ユーザー作成失敗: アカウントIDが返されませんでした")
	}
	return user.AccountID, nil
}
