package main

import (
	"os"

	"github.com/spf13/cobra"

	"redminetojira/api"
	"redminetojira/config"
	"redminetojira/utils"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		utils.LogError("認証エラー: %v", err)
		utils.LogError("認証情報を確認してください。")
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		settingsPath string
		skipJira     bool
	)

	cmd := &cobra.Command{
		Use:   "auth_check",
		Short: "Redmine / JIRA 認証確認ツール",
		Long: `Redmine / JIRA 認証確認ツール

環境変数:
  REDMINE_URL         Redmine URL (必須)
  REDMINE_API_KEY     Redmine APIキー (必須)
  JIRA_URL            JIRA URL
  JIRA_EMAIL          JIRA APIアカウントのメールアドレス
  JIRA_API_TOKEN      JIRA APIトークン (未設定の場合は端末から入力)

説明:
  このツールは Redmine と JIRA の API 認証情報が正しく設定されているかを確認します。
  認証が成功すれば、他のツールも正常に動作する可能性が高いです。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			utils.LogInfo("認証確認ツール")

			cfg, err := config.LoadConfig(settingsPath)
			if err != nil {
				return err
			}

			utils.LogInfo("Redmine APIの認証を確認しています...")
			if err := api.NewRedmineClient(cfg).CheckAuth(cmd.Context()); err != nil {
				return err
			}
			utils.LogInfo("Redmine認証成功！ 接続先: %s", cfg.RedmineURL)

			if skipJira {
				return nil
			}

			if err := cfg.PromptJiraToken(); err != nil {
				return err
			}
			jiraClient, err := api.NewJiraClient(cfg)
			if err != nil {
				return err
			}

			utils.LogInfo("JIRA APIの認証を確認しています...")
			if err := jiraClient.CheckAuth(cmd.Context()); err != nil {
				return err
			}
			utils.LogInfo("JIRA認証成功！ 接続先: %s", cfg.JiraURL)
			utils.LogInfo("APIの認証情報は正常です。")
			return nil
		},
	}

	cmd.Flags().StringVar(&settingsPath, "config", "", "設定ファイルのパス")
	cmd.Flags().BoolVar(&skipJira, "redmine-only", false, "Redmine の認証のみを確認する")

	return cmd
}
