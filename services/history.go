package services

import (
	"strings"

	"redminetojira/config"
	"redminetojira/models"
	"redminetojira/utils"
)

// property は journal detail の変更種別です
type property int

const (
	propertyUnknown property = iota
	propertyCustomField
	propertyAttribute
	propertyRelation
	propertyAttachment
)

func parseProperty(name string) property {
	switch name {
	case "cf":
		return propertyCustomField
	case "attr":
		return propertyAttribute
	case "relation":
		return propertyRelation
	case "attachment":
		return propertyAttachment
	default:
		return propertyUnknown
	}
}

// HistoryTranslator は Redmine の journal を JIRA の変更履歴に変換します
type HistoryTranslator struct {
	registry  *Registry
	mappings  *config.Mappings
	sanitizer *TextSanitizer
	users     UserResolver
}

// NewHistoryTranslator は新しい HistoryTranslator を作成します
func NewHistoryTranslator(registry *Registry, mappings *config.Mappings, sanitizer *TextSanitizer, users UserResolver) *HistoryTranslator {
	return &HistoryTranslator{
		registry:  registry,
		mappings:  mappings,
		sanitizer: sanitizer,
		users:     users,
	}
}

// Translate は journal を順序どおりに変換します。変更項目が残らないエントリは出力しません
func (h *HistoryTranslator) Translate(journals []models.JournalEntry) []models.ChangeLogEntry {
	history := make([]models.ChangeLogEntry, 0, len(journals))

	for _, journal := range journals {
		var items []models.ChangeItem
		for _, detail := range journal.Details {
			if item := h.translateDetail(detail); item != nil {
				items = append(items, *item)
			}
		}
		if len(items) == 0 {
			continue
		}

		history = append(history, models.ChangeLogEntry{
			Author:  h.users.RefPtr(journal.User),
			Created: journal.CreatedOn,
			Items:   items,
		})
	}

	return history
}

func (h *HistoryTranslator) translateDetail(detail models.JournalDetail) *models.ChangeItem {
	switch parseProperty(detail.Property) {
	case propertyCustomField:
		return h.customFieldChange(detail)
	case propertyAttribute:
		return h.attributeChange(detail)
	case propertyRelation:
		return h.relationChange(detail)
	case propertyAttachment:
		return attachmentChange(detail)
	default:
		utils.LogError("不明な変更種別です: %q", detail.Property)
		return nil
	}
}

func (h *HistoryTranslator) customFieldChange(detail models.JournalDetail) *models.ChangeItem {
	name := h.registry.MapCustomField(detail.Name)
	if name == "" {
		// Redmine で削除されたカスタムフィールド
		return nil
	}

	item := &models.ChangeItem{Field: name, FieldType: "custom"}

	spec, ok := h.mappings.CustomFields[name]
	if !ok {
		utils.LogError("カスタムフィールド変更を変換できません: %s の設定がありません", name)
	}

	switch spec.History {
	case config.HistoryUser:
		h.userPair(item, detail)
	case config.HistoryVersion:
		item.FromString = models.StringPtr(h.registry.MapVersion(detail.OldValue))
		item.ToString = models.StringPtr(h.registry.MapVersion(detail.NewValue))
	case config.HistoryRaw:
		item.FromString = models.StringPtr(detail.OldValue)
		item.ToString = models.StringPtr(detail.NewValue)
	}

	return item
}

func (h *HistoryTranslator) attributeChange(detail models.JournalDetail) *models.ChangeItem {
	field, ok := h.mappings.Attributes[detail.Name]
	if !ok {
		utils.LogWarn("属性変更を変換できません: 不明な属性 %s", detail.Name)
		return nil
	}

	item := &models.ChangeItem{Field: field.String()}
	var from, to string

	switch field {
	case config.FieldStatus:
		from, to = h.registry.MapState(detail.OldValue), h.registry.MapState(detail.NewValue)
	case config.FieldFixVersions:
		from, to = h.registry.MapVersion(detail.OldValue), h.registry.MapVersion(detail.NewValue)
	case config.FieldPriority:
		from, to = h.registry.MapPriority(detail.OldValue), h.registry.MapPriority(detail.NewValue)
	case config.FieldAssignee:
		h.userPair(item, detail)
		return dropIfEmpty(item)
	case config.FieldIssueType:
		from, to = h.registry.MapIssueType(detail.OldValue), h.registry.MapIssueType(detail.NewValue)
	case config.FieldParentLink:
		from = h.sanitizer.LinkDescription(detail.OldValue, h.mappings.ParentLinkPhrase)
		to = h.sanitizer.LinkDescription(detail.NewValue, h.mappings.ParentLinkPhrase)
	case config.FieldComponents:
		from, to = h.registry.MapCategory(detail.OldValue), h.registry.MapCategory(detail.NewValue)
	case config.FieldSummary, config.FieldDescription:
		from, to = h.sanitizer.CorrectText(detail.OldValue), h.sanitizer.CorrectText(detail.NewValue)
		if h.isCorrupt(from) || h.isCorrupt(to) {
			// Redmine の不具合で本文以外のデータが記録されている
			return nil
		}
	case config.FieldLabels:
		from, to = detail.OldValue, detail.NewValue
	case config.FieldIgnored:
		return nil
	default:
		utils.LogError("属性変更を変換できません: フィールド %s の変換がありません", field)
		return nil
	}

	item.FromString = models.StringPtr(from)
	item.ToString = models.StringPtr(to)
	return dropIfEmpty(item)
}

func (h *HistoryTranslator) relationChange(detail models.JournalDetail) *models.ChangeItem {
	phrase, ok := h.mappings.LinkPhrases[detail.Name]
	if !ok {
		utils.LogWarn("関連の変更を変換できません: 不明な関連種別 %s", detail.Name)
		return nil
	}

	return &models.ChangeItem{
		Field:      "link",
		FromString: models.StringPtr(h.sanitizer.LinkDescription(detail.OldValue, phrase)),
		ToString:   models.StringPtr(h.sanitizer.LinkDescription(detail.NewValue, phrase)),
	}
}

func attachmentChange(detail models.JournalDetail) *models.ChangeItem {
	return &models.ChangeItem{
		Field:      "Attachment",
		FromString: models.StringPtr(detail.OldValue),
		ToString:   models.StringPtr(detail.NewValue),
	}
}

// userPair は from/to にユーザー参照、fromString/toString に表示名を設定します
func (h *HistoryTranslator) userPair(item *models.ChangeItem, detail models.JournalDetail) {
	item.From = models.StringPtr(h.users.Ref(detail.OldValue))
	item.To = models.StringPtr(h.users.Ref(detail.NewValue))
	item.FromString = models.StringPtr(h.users.Name(detail.OldValue))
	item.ToString = models.StringPtr(h.users.Name(detail.NewValue))
}

func (h *HistoryTranslator) isCorrupt(text string) bool {
	for _, marker := range h.mappings.CorruptTextMarkers {
		if marker != "" && strings.HasPrefix(text, marker) {
			return true
		}
	}
	return false
}

// dropIfEmpty は変更前後の表示値が両方ない項目 (削除済みのバージョンなど) を捨てます
func dropIfEmpty(item *models.ChangeItem) *models.ChangeItem {
	if item.FromString == nil && item.ToString == nil {
		return nil
	}
	return item
}
