package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"redminetojira/config"
	"redminetojira/models"
	"redminetojira/utils"
)

// RedmineClient は Redmine REST API とのやり取りを処理します。
// 同時リクエスト数は MaxConcurrent に制限され、コネクションプールを共有します
type RedmineClient struct {
	config  *config.Config
	client  *http.Client
	limiter *rate.Limiter
}

// NewRedmineClient は新しい Redmine クライアントを作成します
func NewRedmineClient(cfg *config.Config) *RedmineClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = cfg.MaxConcurrent
	transport.MaxIdleConnsPerHost = cfg.MaxConcurrent

	r := &RedmineClient{
		config: cfg,
		client: &http.Client{Transport: transport, Timeout: 60 * time.Second},
	}
	if cfg.RequestsPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return r
}

// CheckAuth は APIキーで現在のユーザーを取得できるかを確認します
func (r *RedmineClient) CheckAuth(ctx context.Context) error {
	body, err := r.get(ctx, "/users/current.json", nil)
	if err != nil {
		return err
	}
	login := gjson.GetBytes(body, "user.login").String()
	utils.LogInfo("Redmine認証成功: %s", login)
	return nil
}

// GetIssues はプロジェクトの全イシューを詳細 (journals, attachments, relations) 付きで取得します。
// 結果の順序は一覧の順序と同じです
func (r *RedmineClient) GetIssues(ctx context.Context) ([]models.SourceIssue, error) {
	query := url.Values{"status_id": {"*"}}
	summaries, err := bulkFetch[models.NamedEntity](ctx, r, r.projectPath("issues.json"), query, "issues")
	if err != nil {
		return nil, fmt.Errorf("イシュー一覧取得エラー: %w", err)
	}

	utils.LogInfo("イシュー詳細を取得します: %d 件", len(summaries))

	issues := make([]models.SourceIssue, len(summaries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())

	for i, summary := range summaries {
		i, summary := i, summary
		g.Go(func() error {
			path := fmt.Sprintf("/issues/%d.json", summary.ID)
			body, err := r.get(gctx, path, url.Values{"include": {"journals,attachments,relations"}})
			if err != nil {
				return fmt.Errorf("イシュー #%d 取得エラー: %w", summary.ID, err)
			}

			raw := gjson.GetBytes(body, "issue")
			if !raw.IsObject() {
				return fmt.Errorf("イシュー #%d: レスポンスに issue がありません", summary.ID)
			}
			if err := json.Unmarshal([]byte(raw.Raw), &issues[i]); err != nil {
				return fmt.Errorf("イシュー #%d 解析エラー: %w", summary.ID, err)
			}

			if (i+1)%100 == 0 {
				utils.LogInfo("処理中... %d/%d 件", i+1, len(summaries))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return issues, nil
}

// GetUsers は全ステータスのユーザーを取得します
func (r *RedmineClient) GetUsers(ctx context.Context) ([]models.SourceUser, error) {
	users, err := bulkFetch[models.SourceUser](ctx, r, "/users.json", url.Values{"status": {""}}, "users")
	if err != nil {
		return nil, fmt.Errorf("ユーザー取得エラー: %w", err)
	}
	return users, nil
}

// GetVersions はプロジェクトのバージョンを取得します
func (r *RedmineClient) GetVersions(ctx context.Context) ([]models.SourceVersion, error) {
	return fetchAll[models.SourceVersion](ctx, r, r.projectPath("versions.json"), "versions")
}

// GetIssueStatuses はイシューステータスの一覧を取得します
func (r *RedmineClient) GetIssueStatuses(ctx context.Context) ([]models.NamedEntity, error) {
	return fetchAll[models.NamedEntity](ctx, r, "/issue_statuses.json", "issue_statuses")
}

// GetTrackers はトラッカーの一覧を取得します
func (r *RedmineClient) GetTrackers(ctx context.Context) ([]models.NamedEntity, error) {
	return fetchAll[models.NamedEntity](ctx, r, "/trackers.json", "trackers")
}

// GetCustomFields はカスタムフィールドの一覧を取得します (管理者権限が必要)
func (r *RedmineClient) GetCustomFields(ctx context.Context) ([]models.NamedEntity, error) {
	return fetchAll[models.NamedEntity](ctx, r, "/custom_fields.json", "custom_fields")
}

// GetPriorities は優先度の一覧を取得します
func (r *RedmineClient) GetPriorities(ctx context.Context) ([]models.NamedEntity, error) {
	return fetchAll[models.NamedEntity](ctx, r, "/enumerations/issue_priorities.json", "issue_priorities")
}

// GetCategories はプロジェクトのイシューカテゴリを取得します
func (r *RedmineClient) GetCategories(ctx context.Context) ([]models.SourceCategory, error) {
	return fetchAll[models.SourceCategory](ctx, r, r.projectPath("issue_categories.json"), "issue_categories")
}

func (r *RedmineClient) concurrency() int {
	if r.config.MaxConcurrent <= 0 {
		return 1
	}
	return r.config.MaxConcurrent
}

func (r *RedmineClient) projectPath(resource string) string {
	return fmt.Sprintf("/projects/%s/%s", url.PathEscape(r.config.RedmineProject), resource)
}

// get は GET リクエストを送信しレスポンスボディを返します。リトライはしません
func (r *RedmineClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("レート制限待機エラー: %w", err)
		}
	}

	u := r.config.RedmineURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成エラー: %w", err)
	}
	req.Header.Set("X-Redmine-API-Key", r.config.RedmineAPIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("リクエスト送信エラー: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み込みエラー: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: ステータス %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: 不正なJSONレスポンス", path)
	}
	return body, nil
}

// fetchPage は {<field>: [...], total_count} 形式のレスポンスから要素と総数を取り出します
func fetchPage[T any](ctx context.Context, r *RedmineClient, path string, query url.Values, field string) ([]T, int, error) {
	body, err := r.get(ctx, path, query)
	if err != nil {
		return nil, 0, err
	}

	items := gjson.GetBytes(body, field)
	if !items.IsArray() {
		return nil, 0, fmt.Errorf("%s: レスポンスに %s がありません", path, field)
	}

	var result []T
	if err := json.Unmarshal([]byte(items.Raw), &result); err != nil {
		return nil, 0, fmt.Errorf("%s: %s 解析エラー: %w", path, field, err)
	}

	total := len(result)
	if tc := gjson.GetBytes(body, "total_count"); tc.Exists() {
		total = int(tc.Int())
	}
	return result, total, nil
}

// fetchAll はページングのない列挙APIを取得します
func fetchAll[T any](ctx context.Context, r *RedmineClient, path, field string) ([]T, error) {
	items, _, err := fetchPage[T](ctx, r, path, nil, field)
	return items, err
}

// bulkFetch は総数を取得した後、全ページを並列に取得してページ順に連結します
func bulkFetch[T any](ctx context.Context, r *RedmineClient, path string, query url.Values, field string) ([]T, error) {
	countQuery := cloneValues(query)
	countQuery.Set("limit", "1")
	_, total, err := fetchPage[T](ctx, r, path, countQuery, field)
	if err != nil {
		return nil, err
	}

	pageSize := r.config.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	pages := make([][]T, (total+pageSize-1)/pageSize)
	utils.LogInfo("%s: %d 件を %d ページで取得します", field, total, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())

	for i := range pages {
		i := i
		g.Go(func() error {
			pageQuery := cloneValues(query)
			pageQuery.Set("offset", strconv.Itoa(i*pageSize))
			pageQuery.Set("limit", strconv.Itoa(pageSize))

			items, _, err := fetchPage[T](gctx, r, path, pageQuery, field)
			if err != nil {
				return err
			}
			pages[i] = items
			utils.LogInfo("%s: %d/%d", field, min(total, (i+1)*pageSize), total)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]T, 0, total)
	for _, page := range pages {
		result = append(result, page...)
	}
	return result, nil
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
