package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"redminetojira/config"
	"redminetojira/models"
)

// ErrUnmappedCustomField はカスタムフィールドの型が対応表にないことを示します。
// 対応表の不備なので移行全体を中止します
var ErrUnmappedCustomField = errors.New("カスタムフィールドの型が設定されていません")

// CustomFieldError は変換できなかったカスタムフィールドです
type CustomFieldError struct {
	Name string
	Type string
}

func (e *CustomFieldError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("カスタムフィールド %s の型 %q は JIRA で使用できません", e.Name, e.Type)
	}
	return fmt.Sprintf("カスタムフィールド %s の型が設定されていません", e.Name)
}

func (e *CustomFieldError) Unwrap() error { return ErrUnmappedCustomField }

// IssueTransformer は Redmine のイシューを JIRA のイシューに変換します
type IssueTransformer struct {
	registry  *Registry
	mappings  *config.Mappings
	sanitizer *TextSanitizer
	history   *HistoryTranslator
	links     *LinkExtractor
	users     UserResolver

	sourceURL     string
	attachmentURL string
}

// NewIssueTransformer は新しい IssueTransformer を作成します
func NewIssueTransformer(cfg *config.Config, registry *Registry) *IssueTransformer {
	sanitizer := NewTextSanitizer(cfg.JiraProjectKey)
	users := NewUserResolver(registry, cfg.UseTargetAccountIDs)

	return &IssueTransformer{
		registry:      registry,
		mappings:      cfg.Mappings,
		sanitizer:     sanitizer,
		history:       NewHistoryTranslator(registry, cfg.Mappings, sanitizer, users),
		links:         NewLinkExtractor(cfg.Mappings.LinkTypes, sanitizer),
		users:         users,
		sourceURL:     cfg.RedmineURL,
		attachmentURL: cfg.AttachmentServerAddress,
	}
}

// Transform は1件のイシューを変換し、そのイシューを起点とするリンクも返します。
// エラーになるのは対応表にないカスタムフィールドがある場合だけです
func (t *IssueTransformer) Transform(issue models.SourceIssue) (models.TargetIssue, []models.TargetLink, error) {
	customFields, err := t.customFieldValues(issue.CustomFields)
	if err != nil {
		return models.TargetIssue{}, nil, fmt.Errorf("イシュー %d: %w", issue.ID, err)
	}

	target := models.TargetIssue{
		Key:               t.sanitizer.IssueKey(issue.ID),
		Reporter:          t.users.RefPtr(issue.Author),
		IssueType:         preferMapped(t.registry.MapIssueType, issue.Tracker),
		Summary:           t.sanitizer.CorrectText(issue.Subject),
		Description:       t.sanitizer.CorrectText(issue.Description),
		Created:           issue.CreatedOn,
		Updated:           issue.UpdatedOn,
		Status:            models.StringPtr(t.registry.MapState(issue.Status.IDString())),
		CustomFieldValues: customFields,
		Attachments:       t.attachments(issue.Attachments),
		Comments:          t.comments(issue.Journals),
		History:           t.history.Translate(issue.Journals),
		Labels:            labels(issue.Tags),
	}

	if issue.Category != nil {
		if name := preferMapped(t.registry.MapCategory, issue.Category); name != "" {
			target.Components = []string{name}
		}
	}
	if issue.FixedVersion != nil {
		if name := preferMapped(t.registry.MapVersion, issue.FixedVersion); name != "" {
			target.FixedVersions = []string{name}
		}
	}
	if issue.Priority != nil {
		target.Priority = t.registry.PriorityName(issue.Priority.Name)
	}
	if issue.AssignedTo != nil {
		target.Assignee = t.users.RefPtr(issue.AssignedTo)
	}

	return target, t.links.Extract(issue.Relations, issue.ID), nil
}

// preferMapped は対応表の名前を優先し、なければ参照に埋め込まれた名前を返します
func preferMapped(mapper func(string) string, ref *models.Ref) string {
	if ref == nil {
		return ""
	}
	if name := mapper(ref.IDString()); name != "" {
		return name
	}
	return ref.Name
}

func (t *IssueTransformer) customFieldValues(fields []models.SourceCustomField) ([]models.CustomFieldValue, error) {
	values := make([]models.CustomFieldValue, 0, len(fields))

	for _, cf := range fields {
		value, ok := decodeCustomValue(cf.Value)
		if !ok {
			continue
		}

		spec, found := t.mappings.CustomFields[cf.Name]
		if !found {
			return nil, &CustomFieldError{Name: cf.Name}
		}
		if !config.CustomFieldTypes[spec.Type] {
			return nil, &CustomFieldError{Name: cf.Name, Type: spec.Type}
		}

		if config.IsUserPickerType(spec.Type) {
			value = t.resolveUsers(value)
		}

		values = append(values, models.CustomFieldValue{
			FieldName: cf.Name,
			FieldType: spec.Type,
			Value:     value,
		})
	}

	return values, nil
}

// decodeCustomValue はカスタムフィールドの値を文字列または文字列の配列として取り出します。
// 空の値は false を返します
func decodeCustomValue(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	result := gjson.ParseBytes(raw)
	switch {
	case result.IsArray():
		var items []string
		result.ForEach(func(_, v gjson.Result) bool {
			if s := v.String(); s != "" {
				items = append(items, s)
			}
			return true
		})
		if len(items) == 0 {
			return nil, false
		}
		return items, true
	case result.Type == gjson.Null:
		return nil, false
	default:
		s := result.String()
		if s == "" {
			return nil, false
		}
		return s, true
	}
}

// resolveUsers はユーザー選択型の値をユーザー参照に変換します。解決できない値は null になります
func (t *IssueTransformer) resolveUsers(value any) any {
	switch v := value.(type) {
	case string:
		if ref := t.users.Ref(v); ref != "" {
			return ref
		}
		return nil
	case []string:
		refs := make([]string, 0, len(v))
		for _, id := range v {
			if ref := t.users.Ref(id); ref != "" {
				refs = append(refs, ref)
			}
		}
		return refs
	default:
		return value
	}
}

func (t *IssueTransformer) attachments(source []models.SourceAttachment) []models.TargetAttachment {
	attachments := make([]models.TargetAttachment, 0, len(source))
	for _, a := range source {
		attachments = append(attachments, models.TargetAttachment{
			Name:        a.Filename,
			Attacher:    t.users.RefPtr(a.Author),
			Created:     a.CreatedOn,
			URI:         t.attachmentURI(a.ContentURL),
			Description: a.Description,
		})
	}
	return attachments
}

// attachmentURI は Redmine のダウンロードURLを中継サーバーのURLに書き換えます
func (t *IssueTransformer) attachmentURI(contentURL string) string {
	if t.sourceURL == "" || t.attachmentURL == "" {
		return contentURL
	}
	return strings.ReplaceAll(contentURL, t.sourceURL, t.attachmentURL)
}

func (t *IssueTransformer) comments(journals []models.JournalEntry) []models.TargetComment {
	comments := make([]models.TargetComment, 0)
	for _, j := range journals {
		if j.Notes == "" {
			continue
		}
		comments = append(comments, models.TargetComment{
			Body:    t.sanitizer.CorrectText(j.Notes),
			Author:  t.users.RefPtr(j.User),
			Created: j.CreatedOn,
		})
	}
	return comments
}

// labels はタグ名をラベルにします。JIRA のラベルに空白は使えないため "_" に置き換えます
func labels(tags []models.SourceTag) []string {
	labels := make([]string, 0, len(tags))
	for _, tag := range tags {
		name := strings.Join(strings.Fields(tag.Name), "_")
		if name == "" {
			name = strconv.Itoa(tag.ID)
		}
		labels = append(labels, name)
	}
	return labels
}
