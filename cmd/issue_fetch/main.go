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
		utils.LogError("イシュー取得エラー: %v", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		settingsPath  string
		cachePath     string
		maxConcurrent int
	)

	cmd := &cobra.Command{
		Use:   "issue_fetch",
		Short: "Redmine イシュー取得ツール",
		Long: `Redmine イシュー取得ツール

環境変数:
  REDMINE_URL         Redmine URL (必須)
  REDMINE_API_KEY     Redmine APIキー (必須)
  REDMINE_PROJECT     Redmine プロジェクト識別子 (必須)
  ISSUE_CACHE         イシューキャッシュのパス (デフォルト: issues.json)
  MAX_CONCURRENT      並列処理の最大数 (デフォルト: 5)
  PAGE_SIZE           1ページの取得件数 (デフォルト: 100)
  REQUESTS_PER_SECOND 1秒あたりの最大リクエスト数 (0 の場合は制限なし)

説明:
  このツールは Redmine のプロジェクトから全てのイシューを履歴・添付ファイル・関連付きで取得し、
  キャッシュファイルに保存します。既存のキャッシュファイルは上書きしません。

  保存したキャッシュは、次のステップである issue_convert の入力として使用されます。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime := time.Now()
			utils.LogInfo("Redmine イシュー取得ツール")

			cfg, err := config.LoadConfig(settingsPath)
			if err != nil {
				return err
			}
			if cachePath != "" {
				cfg.IssueCache = cachePath
				utils.LogInfo("キャッシュファイルを指定: %s", cfg.IssueCache)
			}
			if maxConcurrent > 0 {
				cfg.MaxConcurrent = maxConcurrent
				utils.LogInfo("並列処理数を指定: %d", cfg.MaxConcurrent)
			}
			if err := cfg.ValidateSource(); err != nil {
				return err
			}

			migrationService := services.NewMigrationService(cfg, api.NewRedmineClient(cfg), services.NewCacheStore(cfg))
			issues, err := migrationService.FetchIssues(cmd.Context(), false)
			if err != nil {
				return err
			}

			utils.LogInfo("イシューの取得が完了しました: %d 件。処理時間: %s", len(issues), time.Since(startTime))
			return nil
		},
	}

	cmd.Flags().StringVar(&settingsPath, "config", "", "設定ファイルのパス")
	cmd.Flags().StringVar(&cachePath, "output", "", "イシューキャッシュの出力先 (指定しない場合は環境変数から取得)")
	cmd.Flags().IntVar(&maxConcurrent, "concurrent", 0, "並列処理の最大数 (0の場合は設定ファイルの値を使用)")

	return cmd
}
