package models

import "encoding/json"

// ImportDocument は Jira の JSON インポート形式のルートです
type ImportDocument struct {
	Projects []TargetProject `json:"projects"`
	Links    []TargetLink    `json:"links"`
}

// TargetProject はインポート対象のプロジェクトです
type TargetProject struct {
	Key        string            `json:"key"`
	Name       string            `json:"name,omitempty"`
	Issues     []TargetIssue     `json:"issues"`
	Versions   []TargetVersion   `json:"versions"`
	Components []TargetComponent `json:"components"`
}

// TargetIssue は Jira のイシューを表します
type TargetIssue struct {
	Key               string             `json:"key"`
	Reporter          *string            `json:"reporter"`
	IssueType         string             `json:"issueType"`
	Summary           string             `json:"summary"`
	Description       string             `json:"description"`
	Created           string             `json:"created"`
	Updated           string             `json:"updated"`
	Components        []string           `json:"components,omitempty"`
	FixedVersions     []string           `json:"fixedVersions,omitempty"`
	Status            *string            `json:"status"`
	Priority          string             `json:"priority"`
	Assignee          *string            `json:"assignee,omitempty"`
	CustomFieldValues []CustomFieldValue `json:"customFieldValues"`
	Attachments       []TargetAttachment `json:"attachments"`
	Comments          []TargetComment    `json:"comments"`
	History           []ChangeLogEntry   `json:"history"`
	Labels            []string           `json:"labels"`
}

// CustomFieldValue はカスタムフィールドの値です。Value は文字列または文字列の配列です
type CustomFieldValue struct {
	FieldName string `json:"fieldName"`
	FieldType string `json:"fieldType"`
	Value     any    `json:"value"`
}

// TargetAttachment は添付ファイルです。URI は中継サーバーを指します
type TargetAttachment struct {
	Name        string  `json:"name"`
	Attacher    *string `json:"attacher"`
	Created     string  `json:"created"`
	URI         string  `json:"uri"`
	Description string  `json:"description,omitempty"`
}

// TargetComment はコメントです
type TargetComment struct {
	Body    string  `json:"body"`
	Author  *string `json:"author"`
	Created string  `json:"created"`
}

// ChangeLogEntry は履歴の1エントリです。Items は空になりません
type ChangeLogEntry struct {
	Author  *string      `json:"author"`
	Created string       `json:"created"`
	Items   []ChangeItem `json:"items"`
}

// ChangeItem は「フィールドがXからYに変更された」1件の記録です
type ChangeItem struct {
	Field      string  `json:"field"`
	FieldType  string  `json:"fieldType,omitempty"`
	From       *string `json:"from,omitempty"`
	To         *string `json:"to,omitempty"`
	FromString *string `json:"fromString"`
	ToString   *string `json:"toString"`
}

// TargetLink はイシュー間の有向リンクです
type TargetLink struct {
	Name          string `json:"name"`
	SourceID      string `json:"sourceId"`
	DestinationID string `json:"destinationId"`
}

// TargetVersion はバージョンです
type TargetVersion struct {
	Name        string `json:"name"`
	ReleaseDate string `json:"releaseDate,omitempty"`
	Released    bool   `json:"released"`
}

// TargetComponent はコンポーネントです。Lead がない場合は名前のみの文字列として出力します
type TargetComponent struct {
	Name string
	Lead *string
}

// MarshalJSON は Lead の有無で文字列かオブジェクトを出力します
func (c TargetComponent) MarshalJSON() ([]byte, error) {
	if c.Lead == nil {
		return json.Marshal(c.Name)
	}
	return json.Marshal(struct {
		Name string `json:"name"`
		Lead string `json:"lead"`
	}{c.Name, *c.Lead})
}

// UnmarshalJSON は MarshalJSON の両方の形式を読み込みます
func (c *TargetComponent) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*c = TargetComponent{Name: name}
		return nil
	}
	var obj struct {
		Name string `json:"name"`
		Lead string `json:"lead"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*c = TargetComponent{Name: obj.Name, Lead: &obj.Lead}
	return nil
}

// StringPtr は空文字を nil (JSON の null) に変換します
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
