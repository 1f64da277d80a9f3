package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"redminetojira/config"
	"redminetojira/models"
	"redminetojira/utils"
)

// SourceClient は移行元 (Redmine) からの取得処理です
type SourceClient interface {
	GetIssues(ctx context.Context) ([]models.SourceIssue, error)
	GetUsers(ctx context.Context) ([]models.SourceUser, error)
	GetVersions(ctx context.Context) ([]models.SourceVersion, error)
	GetIssueStatuses(ctx context.Context) ([]models.NamedEntity, error)
	GetTrackers(ctx context.Context) ([]models.NamedEntity, error)
	GetCustomFields(ctx context.Context) ([]models.NamedEntity, error)
	GetPriorities(ctx context.Context) ([]models.NamedEntity, error)
	GetCategories(ctx context.Context) ([]models.SourceCategory, error)
}

// Registry は移行1回分の ID → 名前の対応表です。
// 構築後は読み取り専用で、参照済みユーザーの記録だけが更新されます
type Registry struct {
	users      map[string]*models.SourceUser
	versions   map[string]string
	statuses   map[string]string
	issueTypes map[string]string
	fields     map[string]string
	priorities map[string]string
	categories map[string]string

	mu         sync.Mutex
	referenced map[string]struct{}
	targetIDs  map[string]string
}

// PopulateRegistry は列挙APIを並列に取得して対応表を構築します。
// 静的な対応表 (バージョン、優先度) は取得結果より優先されます
func PopulateRegistry(ctx context.Context, source SourceClient, mappings *config.Mappings) (*Registry, error) {
	utils.LogInfo("対応表を作成しています...")

	var (
		users      []models.SourceUser
		versions   []models.SourceVersion
		statuses   []models.NamedEntity
		trackers   []models.NamedEntity
		fields     []models.NamedEntity
		priorities []models.NamedEntity
		categories []models.SourceCategory
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = source.GetUsers(gctx)
		return wrapFetch("ユーザー", err)
	})
	g.Go(func() (err error) {
		versions, err = source.GetVersions(gctx)
		return wrapFetch("バージョン", err)
	})
	g.Go(func() (err error) {
		statuses, err = source.GetIssueStatuses(gctx)
		return wrapFetch("ステータス", err)
	})
	g.Go(func() (err error) {
		trackers, err = source.GetTrackers(gctx)
		return wrapFetch("トラッカー", err)
	})
	g.Go(func() (err error) {
		fields, err = source.GetCustomFields(gctx)
		return wrapFetch("カスタムフィールド", err)
	})
	g.Go(func() (err error) {
		priorities, err = source.GetPriorities(gctx)
		return wrapFetch("優先度", err)
	})
	g.Go(func() (err error) {
		categories, err = source.GetCategories(gctx)
		return wrapFetch("カテゴリ", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &Registry{
		users:      make(map[string]*models.SourceUser, len(users)),
		versions:   make(map[string]string),
		statuses:   make(map[string]string, len(mappings.Statuses)),
		issueTypes: namedTable(trackers),
		fields:     namedTable(fields),
		priorities: namedTable(priorities),
		categories: make(map[string]string, len(categories)),
		referenced: make(map[string]struct{}),
		targetIDs:  make(map[string]string),
	}

	for i := range users {
		r.users[strconv.Itoa(users[i].ID)] = &users[i]
	}
	for _, v := range versions {
		r.versions[strconv.Itoa(v.ID)] = v.Name
	}
	for _, c := range categories {
		r.categories[strconv.Itoa(c.ID)] = c.Name
	}

	mergeTable(r.versions, mappings.Versions)
	mergeTable(r.priorities, mappings.Priorities)
	mergeTable(r.statuses, mappings.Statuses)

	for _, s := range statuses {
		if _, ok := r.statuses[strconv.Itoa(s.ID)]; !ok {
			utils.LogWarn("ステータス対応表にないステータスがあります: %d (%s)", s.ID, s.Name)
		}
	}

	if len(mappings.TargetAccounts) > 0 {
		for id, u := range r.users {
			if accountID, ok := mappings.TargetAccounts[u.Login]; ok {
				r.targetIDs[id] = accountID
			}
		}
	}

	utils.LogInfo("対応表を作成しました: ユーザー=%d, バージョン=%d, トラッカー=%d, カスタムフィールド=%d, 優先度=%d, カテゴリ=%d",
		len(r.users), len(r.versions), len(r.issueTypes), len(r.fields), len(r.priorities), len(r.categories))
	return r, nil
}

func wrapFetch(name string, err error) error {
	if err != nil {
		return fmt.Errorf("%s取得エラー: %w", name, err)
	}
	return nil
}

func namedTable(entities []models.NamedEntity) map[string]string {
	table := make(map[string]string, len(entities))
	for _, e := range entities {
		table[strconv.Itoa(e.ID)] = e.Name
	}
	return table
}

func mergeTable(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

// MapVersion はバージョンIDを名前に変換します
func (r *Registry) MapVersion(id string) string { return lookup(r.versions, id, "バージョン") }

// MapState はステータスIDを JIRA ステータス名に変換します
func (r *Registry) MapState(id string) string { return lookup(r.statuses, id, "ステータス") }

// MapIssueType はトラッカーIDをイシュータイプ名に変換します
func (r *Registry) MapIssueType(id string) string { return lookup(r.issueTypes, id, "トラッカー") }

// MapCustomField はカスタムフィールドIDを名前に変換します
func (r *Registry) MapCustomField(id string) string {
	return lookup(r.fields, id, "カスタムフィールド")
}

// MapPriority は優先度 (IDまたは名前) を JIRA 優先度名に変換します
func (r *Registry) MapPriority(id string) string { return lookup(r.priorities, id, "優先度") }

// PriorityName はイシューの優先度名を JIRA 優先度名に変換します。対応表にない名前はそのまま返します
func (r *Registry) PriorityName(name string) string {
	if mapped, ok := r.priorities[name]; ok && mapped != "" {
		return mapped
	}
	return name
}

// MapCategory はカテゴリIDをコンポーネント名に変換します
func (r *Registry) MapCategory(id string) string { return lookup(r.categories, id, "カテゴリ") }

// lookup は空のIDには空文字を返し、見つからないIDは警告して空文字を返します
func lookup(table map[string]string, id, name string) string {
	if id == "" {
		return ""
	}
	value, ok := table[id]
	if !ok || value == "" {
		utils.LogWarn("%s ID %s が見つかりません", name, id)
		return ""
	}
	return value
}

// User はユーザーを返します。参照済みの記録は行いません
func (r *Registry) User(id string) (*models.SourceUser, bool) {
	u, ok := r.users[id]
	return u, ok
}

// MapUserToLogin はユーザーIDをログイン名に変換します
func (r *Registry) MapUserToLogin(id string) string {
	u := r.knownUser(id)
	if u == nil {
		return ""
	}
	if u.Login == "" {
		utils.LogWarn("ユーザー %s にログイン名がありません", id)
		return ""
	}
	return u.Login
}

// MapUserToName はユーザーIDを表示名に変換します
func (r *Registry) MapUserToName(id string) string {
	u := r.knownUser(id)
	if u == nil {
		return ""
	}
	if u.FirstName == "" || u.LastName == "" {
		utils.LogWarn("ユーザー %s に氏名がありません", id)
		return ""
	}
	return u.FirstName + " " + u.LastName
}

// MapUserToTargetID はユーザーIDを JIRA アカウントIDに変換します
func (r *Registry) MapUserToTargetID(id string) string {
	u := r.knownUser(id)
	if u == nil {
		return ""
	}
	r.mu.Lock()
	accountID := r.targetIDs[id]
	r.mu.Unlock()
	if accountID == "" {
		utils.LogWarn("ユーザー %s (%s) に JIRA アカウントIDがありません", id, u.Login)
		return ""
	}
	return accountID
}

// knownUser は存在しないユーザーIDをエラーとして記録します
func (r *Registry) knownUser(id string) *models.SourceUser {
	if id == "" {
		return nil
	}
	u, ok := r.users[id]
	if !ok {
		utils.LogError("ユーザー ID %s が見つかりません", id)
		return nil
	}
	return u
}

// MarkReferenced はユーザーを移行データから参照されたものとして記録します
func (r *Registry) MarkReferenced(id string) {
	if _, ok := r.users[id]; !ok {
		return
	}
	r.mu.Lock()
	r.referenced[id] = struct{}{}
	r.mu.Unlock()
}

// IsReferenced はユーザーが参照済みかを返します
func (r *Registry) IsReferenced(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.referenced[id]
	return ok
}

// ReferencedUsers は参照済みユーザーを ID 順に返します
func (r *Registry) ReferencedUsers() []*models.SourceUser {
	r.mu.Lock()
	users := make([]*models.SourceUser, 0, len(r.referenced))
	for id := range r.referenced {
		users = append(users, r.users[id])
	}
	r.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// SetTargetID はユーザーの JIRA アカウントIDを記録します
func (r *Registry) SetTargetID(id, accountID string) {
	r.mu.Lock()
	r.targetIDs[id] = accountID
	r.mu.Unlock()
}

// TargetAccounts は JIRA アカウントIDが記録されたユーザーのログイン名 → アカウントIDを返します
func (r *Registry) TargetAccounts() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts := make(map[string]string, len(r.targetIDs))
	for id, accountID := range r.targetIDs {
		u, ok := r.users[id]
		if !ok || accountID == "" {
			continue
		}
		if u.Login == "" {
			utils.LogWarn("ユーザー %s にログイン名がないため、アカウントID %s を保存できません", id, accountID)
			continue
		}
		accounts[u.Login] = accountID
	}
	return accounts
}

// UserResolver はユーザー参照を解決し、参照済みとして記録します
type UserResolver struct {
	registry      *Registry
	useAccountIDs bool
}

// NewUserResolver は新しい UserResolver を作成します。
// useAccountIDs が true の場合はログイン名の代わりに JIRA アカウントIDを返します
func NewUserResolver(registry *Registry, useAccountIDs bool) UserResolver {
	return UserResolver{registry: registry, useAccountIDs: useAccountIDs}
}

// Ref はユーザーIDを JIRA 上のユーザー参照 (ログイン名またはアカウントID) に変換します
func (u UserResolver) Ref(id string) string {
	if id == "" {
		return ""
	}
	u.registry.MarkReferenced(id)
	if u.useAccountIDs {
		return u.registry.MapUserToTargetID(id)
	}
	return u.registry.MapUserToLogin(id)
}

// Name はユーザーIDを表示名に変換します
func (u UserResolver) Name(id string) string {
	if id == "" {
		return ""
	}
	u.registry.MarkReferenced(id)
	return u.registry.MapUserToName(id)
}

// RefPtr は Ref の結果を JSON 出力用に変換します
func (u UserResolver) RefPtr(ref *models.Ref) *string {
	return models.StringPtr(u.Ref(ref.IDString()))
}
