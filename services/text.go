package services

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// issueReferencePattern は "#123" や "CR#123" 形式のイシュー参照です
	issueReferencePattern = regexp.MustCompile(`(?i)(?:CR)?#(\d+)`)
	// codeTagPattern は <pre> / </pre> です
	codeTagPattern = regexp.MustCompile(`(?i)</?pre>`)
)

// escapedNulls は取り除く NUL 文字とそのエスケープ表記です
var escapedNulls = strings.NewReplacer("\x00", "", `\u0000`, "")

// TextSanitizer は Redmine のテキストを JIRA 向けに書き換えます
type TextSanitizer struct {
	projectKey string
}

// NewTextSanitizer は新しい TextSanitizer を作成します
func NewTextSanitizer(projectKey string) *TextSanitizer {
	return &TextSanitizer{projectKey: projectKey}
}

// IssueKey は Redmine のイシューIDから JIRA のイシューキーを作ります
func (s *TextSanitizer) IssueKey(id any) string {
	return fmt.Sprintf("%s-%v", s.projectKey, id)
}

// CorrectText はイシュー参照を JIRA のキーに置き換え、不正な文字を取り除き、
// <pre> をコードブロックに変換します。2回適用しても結果は変わりません
func (s *TextSanitizer) CorrectText(text string) string {
	if text == "" {
		return ""
	}

	// 取り除いた結果新しい表記ができることがあるため、変化がなくなるまで繰り返す
	for {
		stripped := escapedNulls.Replace(text)
		if stripped == text {
			break
		}
		text = stripped
	}

	text = codeTagPattern.ReplaceAllString(text, "{code}")
	return issueReferencePattern.ReplaceAllString(text, s.projectKey+"-${1}")
}

// LinkDescription は履歴に表示する関連の説明文を作ります。id が空の場合は空文字を返します
func (s *TextSanitizer) LinkDescription(id, phrase string) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf("This issue %s %s", phrase, s.IssueKey(id))
}
