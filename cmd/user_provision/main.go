package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"redminetojira/api"
	"redminetojira/config"
	"redminetojira/services"
	"redminetojira/utils"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		utils.LogError("ユーザー作成エラー: %v", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		settingsPath  string
		accountsPath  string
		maxConcurrent int
	)

	cmd := &cobra.Command{
		Use:   "user_provision",
		Short: "JIRA ユーザー作成ツール",
		Long: `JIRA ユーザー作成ツール

環境変数:
  REDMINE_URL         Redmine URL (必須)
  REDMINE_API_KEY     Redmine APIキー (必須)
  REDMINE_PROJECT     Redmine プロジェクト識別子 (必須)
  JIRA_PROJECT_KEY    JIRA プロジェクトキー (必須)
  JIRA_URL            JIRA URL (必須)
  JIRA_EMAIL          JIRA APIアカウントのメールアドレス (必須)
  JIRA_API_TOKEN      JIRA APIトークン (未設定の場合は端末から入力)
  ISSUE_CACHE         イシューキャッシュのパス (デフォルト: issues.json)

説明:
  このツールはキャッシュのイシューから参照されている Redmine ユーザーを JIRA で検索し、
  存在しない場合はメールアドレスで作成します (JIRA から招待メールが送信されます)。

  取得したアカウントIDは --accounts のファイルに target_accounts として書き込まれます。
  このファイルを MAPPINGS_FILE に指定し、USE_TARGET_ACCOUNT_IDS=true で issue_convert を実行すると
  ユーザーがアカウントIDで出力されます。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime := time.Now()
			utils.LogInfo("JIRA ユーザー作成ツール")

			cfg, err := config.LoadConfig(settingsPath)
			if err != nil {
				return err
			}
			if maxConcurrent > 0 {
				cfg.MaxConcurrent = maxConcurrent
			}
			if err := cfg.ValidateSource(); err != nil {
				return err
			}
			if err := cfg.ValidateProjectKey(); err != nil {
				return err
			}
			if err := cfg.PromptJiraToken(); err != nil {
				return err
			}

			jiraClient, err := api.NewJiraClient(cfg)
			if err != nil {
				return err
			}
			if err := jiraClient.CheckAuth(cmd.Context()); err != nil {
				return err
			}
			utils.LogInfo("JIRA認証成功")

			migrationService := services.NewMigrationService(cfg, api.NewRedmineClient(cfg), services.NewCacheStore(cfg)).
				WithUserDirectory(jiraClient)

			issues, err := migrationService.FetchIssues(cmd.Context(), true)
			if err != nil {
				return err
			}
			registry, err := migrationService.BuildRegistry(cmd.Context())
			if err != nil {
				return err
			}
			if err := migrationService.CollectReferencedUsers(cmd.Context(), registry, issues); err != nil {
				return err
			}

			result, err := migrationService.ProvisionUsers(cmd.Context(), registry)
			if err != nil {
				return err
			}

			if err := writeAccounts(accountsPath, registry.TargetAccounts()); err != nil {
				return err
			}

			utils.LogInfo("ユーザー作成が完了しました: 作成=%d, 失敗=%d。処理時間: %s", result.Created, result.Failed, time.Since(startTime))
			return nil
		},
	}

	cmd.Flags().StringVar(&settingsPath, "config", "", "設定ファイルのパス")
	cmd.Flags().StringVar(&accountsPath, "accounts", "target_accounts.yaml", "アカウントIDの出力先 (対応表の上書きファイル形式)")
	cmd.Flags().IntVar(&maxConcurrent, "concurrent", 0, "並列処理の最大数 (0の場合は設定ファイルの値を使用)")

	return cmd
}

// writeAccounts はアカウントIDを対応表の上書きファイル形式で書き込みます
func writeAccounts(path string, accounts map[string]string) error {
	data, err := yaml.Marshal(map[string]map[string]string{"target_accounts": accounts})
	if err != nil {
		return fmt.Errorf("YAML作成エラー: %w", err)
	}
	if err := utils.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("アカウントファイル書き込みエラー: %w", err)
	}
	utils.LogInfo("アカウントIDを '%s' に書き込みました: %d 人", path, len(accounts))
	return nil
}
