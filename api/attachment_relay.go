package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"redminetojira/config"
	"redminetojira/utils"
)

// attachmentPathPrefix は中継対象のパスです
const attachmentPathPrefix = "/attachments/download/"

// AttachmentRelay は Redmine の添付ファイルを APIキー付きで取得し、
// JIRA インポーターから取得できるように別アドレスで再配信します
type AttachmentRelay struct {
	config *config.Config
	client *http.Client
}

// NewAttachmentRelay は新しい添付ファイル中継サーバーを作成します
func NewAttachmentRelay(cfg *config.Config) *AttachmentRelay {
	return &AttachmentRelay{
		config: cfg,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

// ServeHTTP は添付ファイルのダウンロード要求を Redmine に中継します
func (a *AttachmentRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	utils.LogInfo("%s %s", req.Method, req.URL.RequestURI())

	if req.Method != http.MethodGet || !strings.HasPrefix(req.URL.Path, attachmentPathPrefix) {
		http.NotFound(w, req)
		return
	}

	upstream, err := http.NewRequestWithContext(req.Context(), http.MethodGet, a.config.RedmineURL+req.URL.RequestURI(), nil)
	if err != nil {
		utils.LogError("リクエスト作成エラー: %v", err)
		fileNotFound(w)
		return
	}
	upstream.Header.Set("X-Redmine-API-Key", a.config.RedmineAPIKey)

	resp, err := a.client.Do(upstream)
	if err != nil {
		utils.LogError("添付ファイル取得エラー: %v", err)
		fileNotFound(w)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		utils.LogWarn("添付ファイル取得失敗: %s: ステータス %d", req.URL.Path, resp.StatusCode)
		fileNotFound(w)
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		utils.LogError("添付ファイル転送エラー: %s: %v", req.URL.Path, err)
		return
	}
	utils.LogInfo("%d: %d Bytes", resp.StatusCode, n)
}

// ListenAndServe は ctx がキャンセルされるまで中継サーバーを起動します
func (a *AttachmentRelay) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.RelayPort),
		Handler:           a,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.LogInfo("添付ファイル中継サーバーを起動しました: ポート %d", a.config.RelayPort)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("中継サーバーエラー: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func fileNotFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, "File not found")
}
