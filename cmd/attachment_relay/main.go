package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"redminetojira/api"
	"redminetojira/config"
	"redminetojira/utils"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		utils.LogError("添付ファイル中継サーバーエラー: %v", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		settingsPath string
		port         int
	)

	cmd := &cobra.Command{
		Use:   "attachment_relay",
		Short: "添付ファイル中継サーバー",
		Long: `添付ファイル中継サーバー

環境変数:
  REDMINE_URL         Redmine URL (必須)
  REDMINE_API_KEY     Redmine APIキー (必須)
  RELAY_PORT          待ち受けポート (デフォルト: 3001)

説明:
  JIRA のインポート中に添付ファイルを Redmine から取得するための中継サーバーです。
  /attachments/download/... への GET リクエストを Redmine の APIキー付きで転送します。

  インポートファイルの添付ファイルURLは ATTACHMENT_SERVER_ADDRESS に書き換えられているため、
  JIRA から ATTACHMENT_SERVER_ADDRESS でこのサーバーに接続できる必要があります。
  インポートが完了したら Ctrl+C で停止してください。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(settingsPath)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.RelayPort = port
			}
			if cfg.RedmineURL == "" || cfg.RedmineAPIKey == "" {
				return cfg.ValidateSource()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, api.NewAttachmentRelay(cfg))
		},
	}

	cmd.Flags().StringVar(&settingsPath, "config", "", "設定ファイルのパス")
	cmd.Flags().IntVar(&port, "port", 0, "待ち受けポート (0の場合は設定ファイルの値を使用)")

	return cmd
}

func serve(ctx context.Context, relay *api.AttachmentRelay) error {
	if err := relay.ListenAndServe(ctx); err != nil {
		return err
	}
	utils.LogInfo("添付ファイル中継サーバーを停止しました")
	return nil
}
