package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Redmine API設定
	RedmineURL     string
	RedmineAPIKey  string
	RedmineProject string

	// 添付ファイル中継サーバー
	AttachmentServerAddress string
	RelayPort               int

	// JIRA設定
	JiraURL             string
	JiraEmail           string
	JiraAPIToken        string
	JiraProject         string
	JiraProjectKey      string
	UseTargetAccountIDs bool

	// ファイルパス
	IssueCache   string
	OutputFile   string
	MappingsFile string

	// 並列処理設定
	MaxConcurrent     int
	PageSize          int
	RequestsPerSecond float64

	// 静的マッピングテーブル
	Mappings *Mappings
}

// envBindings は設定キーと環境変数の対応です
var envBindings = map[string]string{
	"redmine.url":               "REDMINE_URL",
	"redmine.api_key":           "REDMINE_API_KEY",
	"redmine.project":           "REDMINE_PROJECT",
	"attachment_server_address": "ATTACHMENT_SERVER_ADDRESS",
	"relay.port":                "RELAY_PORT",
	"jira.url":                  "JIRA_URL",
	"jira.email":                "JIRA_EMAIL",
	"jira.api_token":            "JIRA_API_TOKEN",
	"jira.project":              "JIRA_PROJECT",
	"jira.project_key":          "JIRA_PROJECT_KEY",
	"jira.use_account_ids":      "USE_TARGET_ACCOUNT_IDS",
	"files.issue_cache":         "ISSUE_CACHE",
	"files.output":              "OUTPUT_FILE",
	"files.mappings":            "MAPPINGS_FILE",
	"fetch.max_concurrent":      "MAX_CONCURRENT",
	"fetch.page_size":           "PAGE_SIZE",
	"fetch.requests_per_second": "REQUESTS_PER_SECOND",
}

var projectKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]+$`)

// LoadConfig は .env、設定ファイル、環境変数から設定を読み込みます。
// settingsPath が空の場合はカレントディレクトリの settings.* を探します (なくてもエラーにしません)
func LoadConfig(settingsPath string) (*Config, error) {
	// .envファイルを読み込む
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("relay.port", 3001)
	v.SetDefault("files.issue_cache", "issues.json")
	v.SetDefault("files.output", "output.json")
	v.SetDefault("fetch.max_concurrent", 5)
	v.SetDefault("fetch.page_size", 100)
	v.SetDefault("fetch.requests_per_second", 0)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("環境変数バインドエラー (%s): %w", env, err)
		}
	}

	if settingsPath != "" {
		v.SetConfigFile(settingsPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
	} else {
		v.SetConfigName("settings")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
			}
		}
	}

	cfg := &Config{
		RedmineURL:              strings.TrimRight(v.GetString("redmine.url"), "/"),
		RedmineAPIKey:           v.GetString("redmine.api_key"),
		RedmineProject:          v.GetString("redmine.project"),
		AttachmentServerAddress: strings.TrimRight(v.GetString("attachment_server_address"), "/"),
		RelayPort:               v.GetInt("relay.port"),
		JiraURL:                 strings.TrimRight(v.GetString("jira.url"), "/"),
		JiraEmail:               v.GetString("jira.email"),
		JiraAPIToken:            v.GetString("jira.api_token"),
		JiraProject:             v.GetString("jira.project"),
		JiraProjectKey:          v.GetString("jira.project_key"),
		UseTargetAccountIDs:     v.GetBool("jira.use_account_ids"),
		IssueCache:              v.GetString("files.issue_cache"),
		OutputFile:              v.GetString("files.output"),
		MappingsFile:            v.GetString("files.mappings"),
		MaxConcurrent:           v.GetInt("fetch.max_concurrent"),
		PageSize:                v.GetInt("fetch.page_size"),
		RequestsPerSecond:       v.GetFloat64("fetch.requests_per_second"),
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}

	mappings, err := LoadMappings(cfg.MappingsFile)
	if err != nil {
		return nil, err
	}
	cfg.Mappings = mappings

	return cfg, nil
}

// ValidateSource は Redmine からの取得に必要な設定を検証します
func (c *Config) ValidateSource() error {
	var missing []string
	if c.RedmineURL == "" {
		missing = append(missing, "REDMINE_URL")
	}
	if c.RedmineAPIKey == "" {
		missing = append(missing, "REDMINE_API_KEY")
	}
	if c.RedmineProject == "" {
		missing = append(missing, "REDMINE_PROJECT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("必須設定がありません: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateProjectKey は変換に必要なプロジェクトキーを検証します
func (c *Config) ValidateProjectKey() error {
	if c.JiraProjectKey == "" {
		return fmt.Errorf("必須設定がありません: JIRA_PROJECT_KEY")
	}
	if !projectKeyPattern.MatchString(c.JiraProjectKey) {
		return fmt.Errorf("JIRA_PROJECT_KEY が不正です: %q (英大文字で始まる英大文字・数字)", c.JiraProjectKey)
	}
	return nil
}

// ValidateTarget は JIRA API 呼び出しに必要な設定を検証します
func (c *Config) ValidateTarget() error {
	var missing []string
	if c.JiraURL == "" {
		missing = append(missing, "JIRA_URL")
	}
	if c.JiraEmail == "" {
		missing = append(missing, "JIRA_EMAIL")
	}
	if c.JiraAPIToken == "" {
		missing = append(missing, "JIRA_API_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("必須設定がありません: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PromptJiraToken は APIトークンが未設定で端末から実行されている場合に入力を求めます
func (c *Config) PromptJiraToken() error {
	if c.JiraAPIToken != "" {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("JIRA_API_TOKEN が未設定で、端末から入力できません")
	}

	fmt.Fprintf(os.Stderr, "%s のAPIトークン: ", c.JiraEmail)
	token, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("APIトークン入力エラー: %w", err)
	}
	if len(token) == 0 {
		return fmt.Errorf("APIトークンが入力されませんでした")
	}

	c.JiraAPIToken = string(token)
	return nil
}
