package services

import (
	"redminetojira/models"
)

// ExportAssembler は変換済みのイシューとプロジェクト単位の情報から
// JIRA インポート用のドキュメントを組み立てます
type ExportAssembler struct {
	projectKey  string
	projectName string
	users       UserResolver
}

// NewExportAssembler は新しい ExportAssembler を作成します
func NewExportAssembler(projectKey, projectName string, users UserResolver) *ExportAssembler {
	return &ExportAssembler{projectKey: projectKey, projectName: projectName, users: users}
}

// Assemble はインポート用ドキュメントを作成します
func (a *ExportAssembler) Assemble(issues []models.TargetIssue, versions []models.SourceVersion, categories []models.SourceCategory, links []models.TargetLink) models.ImportDocument {
	if issues == nil {
		issues = []models.TargetIssue{}
	}
	if links == nil {
		links = []models.TargetLink{}
	}

	project := models.TargetProject{
		Key:        a.projectKey,
		Name:       a.projectName,
		Issues:     issues,
		Versions:   make([]models.TargetVersion, 0, len(versions)),
		Components: make([]models.TargetComponent, 0, len(categories)),
	}

	for _, v := range versions {
		project.Versions = append(project.Versions, models.TargetVersion{
			Name:        v.Name,
			ReleaseDate: v.DueDate,
			Released:    v.Status == "closed",
		})
	}

	for _, c := range categories {
		component := models.TargetComponent{Name: c.Name}
		if c.AssignedTo != nil {
			component.Lead = a.users.RefPtr(c.AssignedTo)
		}
		project.Components = append(project.Components, component)
	}

	return models.ImportDocument{
		Projects: []models.TargetProject{project},
		Links:    links,
	}
}
