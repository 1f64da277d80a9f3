package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"redminetojira/api"
	"redminetojira/config"
	"redminetojira/services"
	"redminetojira/utils"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		utils.LogError("移行処理に失敗しました: %v", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		settingsPath   string
		maxConcurrent  int
		fetchOnly      bool
		provisionUsers bool
	)

	cmd := &cobra.Command{
		Use:   "all_in_one",
		Short: "Redmine → JIRA 移行ツール",
		Long: `Redmine → JIRA 移行ツール

Redmine のプロジェクトからイシューを取得し、JIRA の JSON インポート形式に変換します。
取得したイシューはキャッシュ (ISSUE_CACHE) に保存され、次回以降の実行ではキャッシュを使用します。

環境変数:
  REDMINE_URL                Redmine URL (必須)
  REDMINE_API_KEY            Redmine APIキー (必須)
  REDMINE_PROJECT            Redmine プロジェクト識別子 (必須)
  JIRA_PROJECT_KEY           JIRA プロジェクトキー (必須)
  JIRA_PROJECT               JIRA プロジェクト名
  ATTACHMENT_SERVER_ADDRESS  添付ファイル中継サーバーのアドレス
  ISSUE_CACHE                イシューキャッシュのパス (デフォルト: issues.json)
  OUTPUT_FILE                出力ファイルのパス (デフォルト: output.json)
  MAPPINGS_FILE              対応表の上書きファイル (YAML)
  MAX_CONCURRENT             並列処理の最大数 (デフォルト: 5)
  PAGE_SIZE                  1ページの取得件数 (デフォルト: 100)
  REQUESTS_PER_SECOND        1秒あたりの最大リクエスト数 (0 の場合は制限なし)
  USE_TARGET_ACCOUNT_IDS     ユーザーをJIRAアカウントIDで出力する (true/false)
  JIRA_URL / JIRA_EMAIL / JIRA_API_TOKEN   --provision-users を指定した場合に必須`,
		Example: `  # すべての処理を実行
  all_in_one

  # イシューの取得のみを実行
  all_in_one --fetch-only

  # 参照されたユーザーを JIRA に作成してから出力
  all_in_one --provision-users

  # 並列処理の最大数を20に指定して実行
  all_in_one --concurrent=20`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime := time.Now()

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
			if !fetchOnly {
				if err := cfg.ValidateProjectKey(); err != nil {
					return err
				}
			}

			utils.LogInfo("Redmine → JIRA 移行ツール (v1.0.0)")
			utils.LogInfo("設定読み込み完了 (Max Concurrent: %d)", cfg.MaxConcurrent)

			redmineClient := api.NewRedmineClient(cfg)
			migrationService := services.NewMigrationService(cfg, redmineClient, services.NewCacheStore(cfg))

			if provisionUsers {
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
				migrationService.WithUserDirectory(jiraClient)
			}

			err = migrationService.RunMigration(cmd.Context(), services.RunOptions{
				FetchOnly:      fetchOnly,
				ProvisionUsers: provisionUsers,
			})
			if err != nil {
				return err
			}

			utils.LogInfo("移行処理が完了しました。合計実行時間: %s", time.Since(startTime))
			return nil
		},
	}

	cmd.Flags().StringVar(&settingsPath, "config", "", "設定ファイルのパス (指定しない場合は settings.* を探す)")
	cmd.Flags().IntVar(&maxConcurrent, "concurrent", 0, "並列処理の最大数 (0の場合は設定ファイルの値を使用)")
	cmd.Flags().BoolVar(&fetchOnly, "fetch-only", false, "イシューの取得とキャッシュ保存のみを実行する")
	cmd.Flags().BoolVar(&provisionUsers, "provision-users", false, "参照されたユーザーを JIRA に作成する")

	return cmd
}
