package models

import (
	"encoding/json"
	"strconv"
)

// Ref は Redmine の {id, name} 形式の参照を表します
type Ref struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// IDString は参照IDを文字列で返します (nil の場合は空文字)
func (r *Ref) IDString() string {
	if r == nil || r.ID == 0 {
		return ""
	}
	return strconv.Itoa(r.ID)
}

// SourceIssue は Redmine のイシュー詳細を表します (journals/attachments/relations 展開済み)
type SourceIssue struct {
	ID           int                 `json:"id"`
	Project      *Ref                `json:"project,omitempty"`
	Tracker      *Ref                `json:"tracker,omitempty"`
	Status       *Ref                `json:"status,omitempty"`
	Priority     *Ref                `json:"priority,omitempty"`
	Author       *Ref                `json:"author,omitempty"`
	AssignedTo   *Ref                `json:"assigned_to,omitempty"`
	Category     *Ref                `json:"category,omitempty"`
	FixedVersion *Ref                `json:"fixed_version,omitempty"`
	Subject      string              `json:"subject"`
	Description  string              `json:"description"`
	StartDate    string              `json:"start_date,omitempty"`
	DueDate      string              `json:"due_date,omitempty"`
	DoneRatio    int                 `json:"done_ratio,omitempty"`
	CreatedOn    string              `json:"created_on"`
	UpdatedOn    string              `json:"updated_on"`
	CustomFields []SourceCustomField `json:"custom_fields,omitempty"`
	Attachments  []SourceAttachment  `json:"attachments,omitempty"`
	Journals     []JournalEntry      `json:"journals,omitempty"`
	Relations    []SourceRelation    `json:"relations,omitempty"`
	Tags         []SourceTag         `json:"tags,omitempty"`
}

// SourceCustomField はイシューのカスタムフィールド値です。
// Value は文字列または (multiple の場合) 文字列の配列です。
type SourceCustomField struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Multiple bool            `json:"multiple,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// SourceAttachment は Redmine の添付ファイルです
type SourceAttachment struct {
	ID          int    `json:"id"`
	Filename    string `json:"filename"`
	Filesize    int64  `json:"filesize,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Description string `json:"description,omitempty"`
	ContentURL  string `json:"content_url"`
	Author      *Ref   `json:"author,omitempty"`
	CreatedOn   string `json:"created_on"`
}

// JournalEntry は監査ログの1エントリです
type JournalEntry struct {
	ID        int             `json:"id"`
	User      *Ref            `json:"user,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	CreatedOn string          `json:"created_on"`
	Details   []JournalDetail `json:"details"`
}

// JournalDetail はフィールド単位の変更記録です。
// old_value / new_value の null は空文字として扱います。
type JournalDetail struct {
	Property string `json:"property"`
	Name     string `json:"name"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// SourceRelation はイシュー間の関連です。Redmine は両方のイシューに同じ関連を返します
type SourceRelation struct {
	ID           int    `json:"id"`
	IssueID      int    `json:"issue_id"`
	IssueToID    int    `json:"issue_to_id"`
	RelationType string `json:"relation_type"`
	Delay        *int   `json:"delay,omitempty"`
}

// SourceTag はタグプラグインのタグです
type SourceTag struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// SourceUser は Redmine ユーザーです
type SourceUser struct {
	ID          int    `json:"id"`
	Login       string `json:"login"`
	FirstName   string `json:"firstname"`
	LastName    string `json:"lastname"`
	Mail        string `json:"mail"`
	Admin       bool   `json:"admin,omitempty"`
	Status      int    `json:"status,omitempty"`
	CreatedOn   string `json:"created_on,omitempty"`
	LastLoginOn string `json:"last_login_on,omitempty"`
}

// SourceVersion はプロジェクトのバージョンです
type SourceVersion struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	DueDate     string `json:"due_date,omitempty"`
}

// SourceCategory はイシューカテゴリです (Jira ではコンポーネント)
type SourceCategory struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	AssignedTo *Ref   `json:"assigned_to,omitempty"`
}

// NamedEntity は列挙API (トラッカー、ステータス、優先度、カスタムフィールド) の要素です
type NamedEntity struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
