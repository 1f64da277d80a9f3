package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"redminetojira/config"
	"redminetojira/models"
	"redminetojira/utils"
)

// CacheStore は中間キャッシュ (取得済みイシュー) と出力ファイルの読み書きを担当します
type CacheStore struct {
	config *config.Config
}

// NewCacheStore は新しい CacheStore を作成します
func NewCacheStore(cfg *config.Config) *CacheStore {
	return &CacheStore{
		config: cfg,
	}
}

// HasIssues はイシューキャッシュが存在するかを返します
func (c *CacheStore) HasIssues() bool {
	_, err := os.Stat(c.config.IssueCache)
	return err == nil
}

// LoadIssues はイシューキャッシュを読み込みます。ファイルがない場合は found = false を返します
func (c *CacheStore) LoadIssues() (issues []models.SourceIssue, found bool, err error) {
	data, err := os.ReadFile(c.config.IssueCache)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("キャッシュ読み込みエラー: %w", err)
	}

	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, false, fmt.Errorf("キャッシュ解析エラー (%s): %w", c.config.IssueCache, err)
	}

	utils.LogInfo("キャッシュ '%s' を使用します: %d 件", c.config.IssueCache, len(issues))
	return issues, true, nil
}

// SaveIssues はイシューキャッシュを書き込みます。既存のキャッシュは上書きしません
func (c *CacheStore) SaveIssues(issues []models.SourceIssue) error {
	if c.HasIssues() {
		utils.LogInfo("キャッシュ '%s' は既に存在するため書き込みません", c.config.IssueCache)
		return nil
	}

	if issues == nil {
		issues = []models.SourceIssue{}
	}
	if err := writeJSON(c.config.IssueCache, issues); err != nil {
		return fmt.Errorf("キャッシュ書き込みエラー: %w", err)
	}

	utils.LogInfo("イシューを '%s' に保存しました: %d 件", c.config.IssueCache, len(issues))
	return nil
}

// WriteExport はインポート用ドキュメントを出力ファイルに書き込みます
func (c *CacheStore) WriteExport(doc models.ImportDocument) error {
	if err := writeJSON(c.config.OutputFile, doc); err != nil {
		return fmt.Errorf("出力ファイル書き込みエラー: %w", err)
	}

	issues := 0
	for _, p := range doc.Projects {
		issues += len(p.Issues)
	}
	utils.LogInfo("'%s' に書き込みました: イシュー %d 件, リンク %d 件", c.config.OutputFile, issues, len(doc.Links))
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(path, append(data, '\n'), 0o644)
}
