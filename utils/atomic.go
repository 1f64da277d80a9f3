package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile は一時ファイルに書き込んでからリネームすることで、
// 途中で失敗しても壊れたファイルを残さずに書き込みます
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("ディレクトリ作成エラー: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイル作成エラー: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("一時ファイル書き込みエラー: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("一時ファイル同期エラー: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("一時ファイルクローズエラー: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("パーミッション設定エラー: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("リネームエラー: %w", err)
	}

	success = true
	return nil
}
