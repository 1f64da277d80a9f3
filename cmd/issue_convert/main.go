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
		utils.LogError("イシュー変換エラー: %v", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		settingsPath  string
		cachePath     string
		outputPath    string
		mappingsPath  string
		maxConcurrent int
	)

	cmd := &cobra.Command{
		Use:   "issue_convert",
		Short: "Redmine → JIRA インポートファイル変換ツール",
		Long: `Redmine → JIRA インポートファイル変換ツール

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
  USE_TARGET_ACCOUNT_IDS     ユーザーをJIRAアカウントIDで出力する (true/false)

説明:
  このツールは issue_fetch で保存したキャッシュのイシューを JIRA の JSON インポート形式に変換します。
  イシューは再取得しません。ユーザー、バージョン、カテゴリなどの対応表は Redmine から取得します。

  対応表にないカスタムフィールドがある場合は変換を中止します。
  MAPPINGS_FILE でカスタムフィールドの型を追加してから再実行してください。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime := time.Now()
			utils.LogInfo("Redmine → JIRA インポートファイル変換ツール")

			cfg, err := config.LoadConfig(settingsPath)
			if err != nil {
				return err
			}
			if mappingsPath != "" {
				mappings, err := config.LoadMappings(mappingsPath)
				if err != nil {
					return err
				}
				cfg.MappingsFile = mappingsPath
				cfg.Mappings = mappings
				utils.LogInfo("対応表ファイルを指定: %s", mappingsPath)
			}
			if cachePath != "" {
				cfg.IssueCache = cachePath
				utils.LogInfo("入力ファイルを指定: %s", cfg.IssueCache)
			}
			if outputPath != "" {
				cfg.OutputFile = outputPath
				utils.LogInfo("出力ファイルを指定: %s", cfg.OutputFile)
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

			store := services.NewCacheStore(cfg)
			if !store.HasIssues() {
				utils.LogError("イシューキャッシュが見つかりません: %s", cfg.IssueCache)
				utils.LogError("先に issue_fetch ツールを実行して、イシューを取得してください。")
				return services.ErrCacheRequired
			}

			migrationService := services.NewMigrationService(cfg, api.NewRedmineClient(cfg), store)
			if err := migrationService.RunMigration(cmd.Context(), services.RunOptions{RequireCache: true}); err != nil {
				return err
			}

			utils.LogInfo("変換が完了しました。処理時間: %s", time.Since(startTime))
			return nil
		},
	}

	cmd.Flags().StringVar(&settingsPath, "config", "", "設定ファイルのパス")
	cmd.Flags().StringVar(&cachePath, "input", "", "イシューキャッシュのパス (指定しない場合は環境変数から取得)")
	cmd.Flags().StringVar(&outputPath, "output", "", "インポートファイルの出力先 (指定しない場合は環境変数から取得)")
	cmd.Flags().StringVar(&mappingsPath, "mappings", "", "対応表の上書きファイル (YAML)")
	cmd.Flags().IntVar(&maxConcurrent, "concurrent", 0, "並列処理の最大数 (0の場合は設定ファイルの値を使用)")

	return cmd
}
