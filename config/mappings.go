package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field は Redmine の属性変更 (attr) を変換先フィールドに対応付ける識別子です
type Field int

const (
	FieldSummary Field = iota + 1
	FieldDescription
	FieldStatus
	FieldAssignee
	FieldPriority
	FieldFixVersions
	FieldIssueType
	FieldParentLink
	FieldLabels
	FieldComponents
	// FieldIgnored は履歴に残さない属性 (進捗率、日付、見積もりなど) です
	FieldIgnored
)

var fieldNames = map[Field]string{
	FieldSummary:     "summary",
	FieldDescription: "description",
	FieldStatus:      "status",
	FieldAssignee:    "assignee",
	FieldPriority:    "priority",
	FieldFixVersions: "fixVersions",
	FieldIssueType:   "issueType",
	FieldParentLink:  "link",
	FieldLabels:      "labels",
	FieldComponents:  "components",
	FieldIgnored:     "ignored",
}

// AllFields は全ての Field を定義順に返します
func AllFields() []Field {
	fields := make([]Field, 0, len(fieldNames))
	for f := FieldSummary; f <= FieldIgnored; f++ {
		fields = append(fields, f)
	}
	return fields
}

// String は JIRA 履歴上のフィールド名を返します
func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// ParseField はフィールド名から Field を返します
func ParseField(name string) (Field, error) {
	for f, n := range fieldNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("不明なフィールド名: %q", name)
}

// HistoryKind はカスタムフィールド変更履歴の値の解釈方法です
type HistoryKind int

const (
	// HistoryRaw は値をそのまま文字列として出力します
	HistoryRaw HistoryKind = iota
	// HistoryUser は値をユーザーIDとして解決します
	HistoryUser
	// HistoryVersion は値をバージョンIDとして解決します
	HistoryVersion
)

var historyKindNames = map[string]HistoryKind{
	"":        HistoryRaw,
	"raw":     HistoryRaw,
	"user":    HistoryUser,
	"version": HistoryVersion,
}

// CustomFieldSpec はカスタムフィールドの JIRA 型と履歴の解釈方法です
type CustomFieldSpec struct {
	Type    string
	History HistoryKind
}

const customFieldTypePrefix = "com.atlassian.jira.plugin.system.customfieldtypes:"

// CustomFieldTypes は JIRA インポートで使用できるカスタムフィールド型の一覧です
var CustomFieldTypes = map[string]bool{
	customFieldTypePrefix + "textfield":        true,
	customFieldTypePrefix + "textarea":         true,
	customFieldTypePrefix + "url":              true,
	customFieldTypePrefix + "userpicker":       true,
	customFieldTypePrefix + "multiuserpicker":  true,
	customFieldTypePrefix + "grouppicker":      true,
	customFieldTypePrefix + "multigrouppicker": true,
	customFieldTypePrefix + "select":           true,
	customFieldTypePrefix + "multiselect":      true,
	customFieldTypePrefix + "radiobuttons":     true,
	customFieldTypePrefix + "multicheckboxes":  true,
	customFieldTypePrefix + "cascadingselect":  true,
	customFieldTypePrefix + "datepicker":       true,
	customFieldTypePrefix + "datetime":         true,
	customFieldTypePrefix + "float":            true,
	customFieldTypePrefix + "labels":           true,
	customFieldTypePrefix + "version":          true,
	customFieldTypePrefix + "multiversion":     true,
	customFieldTypePrefix + "project":          true,
	customFieldTypePrefix + "readonlyfield":    true,
}

// IsUserPickerType はユーザー選択型のカスタムフィールドかを返します
func IsUserPickerType(fieldType string) bool {
	return strings.HasSuffix(fieldType, "userpicker")
}

// Mappings は移行で使う静的な対応表です
type Mappings struct {
	// Statuses は Redmine ステータスID → JIRA ステータス名 (手動で管理)
	Statuses map[string]string
	// Versions は取得結果より優先されるバージョンID → 名前
	Versions map[string]string
	// Priorities は取得結果より優先される優先度 → JIRA 優先度名
	Priorities map[string]string
	// Attributes は Redmine の属性名 → 変換先フィールド
	Attributes map[string]Field
	// LinkPhrases は関連種別 → 履歴の説明文に使う片方向の表現
	LinkPhrases map[string]string
	// LinkTypes は関連種別 → JIRA リンク種別名
	LinkTypes map[string]string
	// ParentLinkPhrase は parent_id 変更の説明文に使う表現
	ParentLinkPhrase string
	// CustomFields はカスタムフィールド名 → 型と履歴の解釈
	CustomFields map[string]CustomFieldSpec
	// CorruptTextMarkers はこの文字列で始まる説明・件名の履歴を破損データとして捨てます
	CorruptTextMarkers []string
	// TargetAccounts は Redmine ログイン → JIRA アカウントID
	TargetAccounts map[string]string
}

// DefaultMappings は組み込みの対応表を返します
func DefaultMappings() *Mappings {
	return &Mappings{
		Statuses: map[string]string{
			"1":  "To do",
			"2":  "In progress",
			"3":  "Needs review",
			"4":  "Done",
			"5":  "Done",
			"6":  "Done",
			"7":  "Done",
			"9":  "Needs review",
			"10": "Needs review",
			"11": "To do",
			"12": "In progress",
			"13": "Done",
			"14": "Done",
		},
		Versions: map[string]string{
			"925":  "Backlog",
			"1103": "Backlog",
		},
		Priorities: map[string]string{
			"High":         "High",
			"Medium":       "Medium",
			"Low":          "Low",
			"Urgent":       "Highest",
			"Hair on fire": "Highest",
		},
		Attributes: map[string]Field{
			"subject":          FieldSummary,
			"description":      FieldDescription,
			"status_id":        FieldStatus,
			"assigned_to_id":   FieldAssignee,
			"priority_id":      FieldPriority,
			"fixed_version_id": FieldFixVersions,
			"tracker_id":       FieldIssueType,
			"parent_id":        FieldParentLink,
			"tags":             FieldLabels,
			"category_id":      FieldComponents,
			"done_ratio":       FieldIgnored,
			"project_id":       FieldIgnored,
			"start_date":       FieldIgnored,
			"due_date":         FieldIgnored,
			"estimated_hours":  FieldIgnored,
			"sprint_id":        FieldIgnored,
		},
		LinkPhrases: map[string]string{
			"relates":    "relates to",
			"blocks":     "blocks",
			"duplicates": "duplicates",
			"precedes":   "precedes",
			"copied_to":  "clones",
		},
		LinkTypes: map[string]string{
			"relates":    "Relates",
			"blocks":     "Blocks",
			"duplicates": "Duplicate",
			"precedes":   "Predecessor",
			"copied_to":  "Cloners",
		},
		ParentLinkPhrase: "is parent of",
		CustomFields: map[string]CustomFieldSpec{
			"QA-Contact":       {Type: customFieldTypePrefix + "userpicker", History: HistoryUser},
			"PDash Task":       {Type: customFieldTypePrefix + "textfield"},
			"Freshdesk URL":    {Type: customFieldTypePrefix + "url"},
			"Customer":         {Type: customFieldTypePrefix + "textfield"},
			"Affected Version": {Type: customFieldTypePrefix + "textfield"},
			"Customer Issue":   {Type: customFieldTypePrefix + "textfield"},
			"Merge Request":    {Type: customFieldTypePrefix + "url"},
			"Patch Version":    {Type: customFieldTypePrefix + "textfield", History: HistoryVersion},
		},
		CorruptTextMarkers: []string{"?PNG"},
		TargetAccounts:     map[string]string{},
	}
}

// mappingsFile は YAML 上書きファイルの形式です
type mappingsFile struct {
	Statuses     map[string]string `yaml:"statuses"`
	Versions     map[string]string `yaml:"versions"`
	Priorities   map[string]string `yaml:"priorities"`
	Attributes   map[string]string `yaml:"attributes"`
	LinkPhrases  map[string]string `yaml:"link_phrases"`
	LinkTypes    map[string]string `yaml:"link_types"`
	ParentPhrase string            `yaml:"parent_link_phrase"`
	CustomFields map[string]struct {
		Type    string `yaml:"type"`
		History string `yaml:"history"`
	} `yaml:"custom_fields"`
	CorruptTextMarkers []string          `yaml:"corrupt_text_markers"`
	TargetAccounts     map[string]string `yaml:"target_accounts"`
}

// LoadMappings は組み込みの対応表に YAML ファイルの内容を上書きします。
// path が空の場合は組み込みの対応表をそのまま返します
func LoadMappings(path string) (*Mappings, error) {
	m := DefaultMappings()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("マッピングファイル読み込みエラー: %w", err)
	}
	if err := m.Overlay(data); err != nil {
		return nil, fmt.Errorf("マッピングファイル %s: %w", path, err)
	}
	return m, nil
}

// Overlay は YAML の内容で対応表を上書きします
func (m *Mappings) Overlay(data []byte) error {
	var f mappingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("YAML解析エラー: %w", err)
	}

	mergeStrings(m.Statuses, f.Statuses)
	mergeStrings(m.Versions, f.Versions)
	mergeStrings(m.Priorities, f.Priorities)
	mergeStrings(m.LinkPhrases, f.LinkPhrases)
	mergeStrings(m.LinkTypes, f.LinkTypes)
	mergeStrings(m.TargetAccounts, f.TargetAccounts)

	for attr, name := range f.Attributes {
		field, err := ParseField(name)
		if err != nil {
			return fmt.Errorf("属性 %s: %w", attr, err)
		}
		m.Attributes[attr] = field
	}

	for name, cf := range f.CustomFields {
		kind, ok := historyKindNames[cf.History]
		if !ok {
			return fmt.Errorf("カスタムフィールド %s: 不明な履歴種別 %q", name, cf.History)
		}
		m.CustomFields[name] = CustomFieldSpec{Type: cf.Type, History: kind}
	}

	if f.ParentPhrase != "" {
		m.ParentLinkPhrase = f.ParentPhrase
	}
	if f.CorruptTextMarkers != nil {
		m.CorruptTextMarkers = f.CorruptTextMarkers
	}

	return m.Validate()
}

// Validate はカスタムフィールド型が既知の型であることを検証します
func (m *Mappings) Validate() error {
	var invalid []string
	for name, spec := range m.CustomFields {
		if !CustomFieldTypes[spec.Type] {
			invalid = append(invalid, fmt.Sprintf("%s (%q)", name, spec.Type))
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return fmt.Errorf("不明なカスタムフィールド型: %s", strings.Join(invalid, ", "))
	}
	return nil
}

func mergeStrings(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}
