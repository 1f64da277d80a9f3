package services

import (
	"redminetojira/models"
	"redminetojira/utils"
)

// LinkExtractor は Redmine の関連から JIRA のリンクを作ります
type LinkExtractor struct {
	linkTypes map[string]string
	sanitizer *TextSanitizer
}

// NewLinkExtractor は新しい LinkExtractor を作成します
func NewLinkExtractor(linkTypes map[string]string, sanitizer *TextSanitizer) *LinkExtractor {
	return &LinkExtractor{linkTypes: linkTypes, sanitizer: sanitizer}
}

// Extract はイシュー issueID を起点とする関連だけをリンクに変換します。
// Redmine は関連を両方のイシューに記録するため、逆向きの記録は無視します
func (l *LinkExtractor) Extract(relations []models.SourceRelation, issueID int) []models.TargetLink {
	var links []models.TargetLink

	for _, rel := range relations {
		if rel.IssueID != issueID {
			continue
		}

		name, ok := l.linkTypes[rel.RelationType]
		if !ok {
			utils.LogWarn("関連種別 %s を変換できません (イシュー %d → %d)", rel.RelationType, rel.IssueID, rel.IssueToID)
			continue
		}

		links = append(links, models.TargetLink{
			Name:          name,
			SourceID:      l.sanitizer.IssueKey(rel.IssueID),
			DestinationID: l.sanitizer.IssueKey(rel.IssueToID),
		})
	}

	return links
}
