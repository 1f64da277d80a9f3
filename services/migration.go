package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"redminetojira/config"
	"redminetojira/models"
	"redminetojira/utils"
)

// ErrCacheRequired はイシューキャッシュが必要な処理でキャッシュがないことを示します
var ErrCacheRequired = errors.New("イシューキャッシュがありません")

// MigrationService は Redmine から JIRA インポート形式への移行を処理します
type MigrationService struct {
	config    *config.Config
	source    SourceClient
	store     *CacheStore
	directory TargetUserDirectory
}

// NewMigrationService は新しい移行サービスを作成します
func NewMigrationService(cfg *config.Config, source SourceClient, store *CacheStore) *MigrationService {
	return &MigrationService{
		config: cfg,
		source: source,
		store:  store,
	}
}

// WithUserDirectory は JIRA ユーザーの作成に使うディレクトリを設定します
func (m *MigrationService) WithUserDirectory(directory TargetUserDirectory) *MigrationService {
	m.directory = directory
	return m
}

// RunOptions は RunMigration の実行内容です
type RunOptions struct {
	// FetchOnly はイシューの取得とキャッシュ保存だけを行います
	FetchOnly bool
	// RequireCache はキャッシュがない場合にイシューを取得せずエラーにします
	RequireCache bool
	// ProvisionUsers は参照されたユーザーを JIRA に作成します
	ProvisionUsers bool
}

// FetchIssues はイシューを取得します。キャッシュがあればキャッシュを使い、
// なければ Redmine から取得してキャッシュに保存します
func (m *MigrationService) FetchIssues(ctx context.Context, requireCache bool) ([]models.SourceIssue, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "イシュー取得")

	issues, found, err := m.store.LoadIssues()
	if err != nil {
		return nil, err
	}
	if found {
		return issues, nil
	}
	if requireCache {
		return nil, fmt.Errorf("%w: %s", ErrCacheRequired, m.config.IssueCache)
	}

	utils.LogInfo("Redmine からイシューを取得します: プロジェクト=%s", m.config.RedmineProject)
	issues, err = m.source.GetIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("イシュー取得エラー: %w", err)
	}
	utils.LogInfo("イシューを取得しました: %d 件", len(issues))

	if err := m.store.SaveIssues(issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// BuildRegistry は対応表を構築します
func (m *MigrationService) BuildRegistry(ctx context.Context) (*Registry, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "対応表作成")

	return PopulateRegistry(ctx, m.source, m.config.Mappings)
}

// TransformIssues はイシューを並列に変換します。結果の順序は入力と同じです。
// 1件でも変換できないカスタムフィールドがあれば全体を中止します
func (m *MigrationService) TransformIssues(ctx context.Context, registry *Registry, issues []models.SourceIssue) ([]models.TargetIssue, []models.TargetLink, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "イシュー変換")

	utils.LogInfo("JIRA イシューを作成しています: %d 件", len(issues))

	return m.transformIssues(ctx, registry, issues, NewIssueTransformer(m.config, registry))
}

// CollectReferencedUsers はイシューを変換して参照されているユーザーを記録します。
// アカウントIDはまだないため、変換はログイン名で行い結果は破棄します
func (m *MigrationService) CollectReferencedUsers(ctx context.Context, registry *Registry, issues []models.SourceIssue) error {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "参照ユーザー収集")

	byLogin := *m.config
	byLogin.UseTargetAccountIDs = false

	_, _, err := m.transformIssues(ctx, registry, issues, NewIssueTransformer(&byLogin, registry))
	return err
}

func (m *MigrationService) transformIssues(ctx context.Context, registry *Registry, issues []models.SourceIssue, transformer *IssueTransformer) ([]models.TargetIssue, []models.TargetLink, error) {
	targets := make([]models.TargetIssue, len(issues))
	issueLinks := make([][]models.TargetLink, len(issues))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency())

	for i := range issues {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			target, links, err := transformer.Transform(issues[i])
			if err != nil {
				return err
			}
			targets[i] = target
			issueLinks[i] = links
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("イシュー変換エラー: %w", err)
	}

	links := make([]models.TargetLink, 0)
	for _, l := range issueLinks {
		links = append(links, l...)
	}

	utils.LogInfo("イシューの変換が完了しました: イシュー=%d, リンク=%d, 参照ユーザー=%d",
		len(targets), len(links), len(registry.ReferencedUsers()))
	return targets, links, nil
}

// AssembleExport はバージョンとカテゴリを並列に取得してインポート用ドキュメントを組み立てます
func (m *MigrationService) AssembleExport(ctx context.Context, registry *Registry, issues []models.TargetIssue, links []models.TargetLink) (models.ImportDocument, error) {
	var (
		versions   []models.SourceVersion
		categories []models.SourceCategory
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		versions, err = m.source.GetVersions(gctx)
		return wrapFetch("バージョン", err)
	})
	g.Go(func() (err error) {
		categories, err = m.source.GetCategories(gctx)
		return wrapFetch("カテゴリ", err)
	})
	if err := g.Wait(); err != nil {
		return models.ImportDocument{}, err
	}

	users := NewUserResolver(registry, m.config.UseTargetAccountIDs)
	assembler := NewExportAssembler(m.config.JiraProjectKey, m.config.JiraProject, users)
	return assembler.Assemble(issues, versions, categories, links), nil
}

// ProvisionUsers は参照済みユーザーを JIRA に作成します
func (m *MigrationService) ProvisionUsers(ctx context.Context, registry *Registry) (ProvisionResult, error) {
	if m.directory == nil {
		return ProvisionResult{}, errors.New("JIRA ユーザーディレクトリが設定されていません")
	}
	provisioner := NewUserProvisioner(registry, m.directory, m.concurrency())
	return provisioner.Provision(ctx), nil
}

// RunMigration は移行処理全体を実行します。各フェーズは前のフェーズの完了後に開始します
func (m *MigrationService) RunMigration(ctx context.Context, opts RunOptions) error {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "移行処理全体")

	issues, err := m.FetchIssues(ctx, opts.RequireCache)
	if err != nil {
		return err
	}
	if opts.FetchOnly {
		utils.LogInfo("イシューの取得が完了しました")
		return nil
	}

	registry, err := m.BuildRegistry(ctx)
	if err != nil {
		return err
	}

	// アカウントIDで出力する場合は、先にユーザーを作成してから変換する
	resolveAfterProvision := opts.ProvisionUsers && m.config.UseTargetAccountIDs
	if resolveAfterProvision {
		if err := m.CollectReferencedUsers(ctx, registry, issues); err != nil {
			return err
		}
		if _, err := m.ProvisionUsers(ctx, registry); err != nil {
			return err
		}
	}

	targets, links, err := m.TransformIssues(ctx, registry, issues)
	if err != nil {
		return err
	}

	if opts.ProvisionUsers && !resolveAfterProvision {
		if _, err := m.ProvisionUsers(ctx, registry); err != nil {
			return err
		}
	}

	utils.LogInfo("インポート用ファイルを作成しています...")
	doc, err := m.AssembleExport(ctx, registry, targets, links)
	if err != nil {
		return err
	}
	if err := m.store.WriteExport(doc); err != nil {
		return err
	}

	utils.LogInfo("移行処理が完了しました")
	return nil
}

func (m *MigrationService) concurrency() int {
	if m.config.MaxConcurrent <= 0 {
		return 1
	}
	return m.config.MaxConcurrent
}
