package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"redminetojira/models"
)

func TestAssemble(t *testing.T) {
	registry := newTestRegistry(t)
	source := newFakeSource()
	assembler := NewExportAssembler("PRJ", "Web", NewUserResolver(registry, false))

	issues := []models.TargetIssue{{Key: "PRJ-1"}, {Key: "PRJ-2"}}
	links := []models.TargetLink{{Name: "Blocks", SourceID: "PRJ-1", DestinationID: "PRJ-2"}}

	doc := assembler.Assemble(issues, source.versions, source.categories, links)

	require.Len(t, doc.Projects, 1)
	project := doc.Projects[0]
	assert.Equal(t, "PRJ", project.Key)
	assert.Equal(t, "Web", project.Name)
	assert.Equal(t, issues, project.Issues)
	assert.Equal(t, links, doc.Links)

	require.Len(t, project.Versions, 3)
	assert.Equal(t, models.TargetVersion{Name: "1.0", ReleaseDate: "2020-01-31", Released: true}, project.Versions[0])
	assert.False(t, project.Versions[1].Released)

	require.Len(t, project.Components, 2)
	assert.Equal(t, "UI", project.Components[0].Name)
	assert.Equal(t, ptr("bob"), project.Components[0].Lead)
	assert.Nil(t, project.Components[1].Lead)
	assert.True(t, registry.IsReferenced("2"))
}

func TestAssembleJSONShape(t *testing.T) {
	registry := newTestRegistry(t)
	source := newFakeSource()
	assembler := NewExportAssembler("PRJ", "", NewUserResolver(registry, false))

	data, err := json.Marshal(assembler.Assemble(nil, source.versions, source.categories, nil))
	require.NoError(t, err)

	out := gjson.ParseBytes(data)
	assert.True(t, out.Get("links").IsArray())
	assert.Equal(t, "PRJ", out.Get("projects.0.key").String())
	assert.False(t, out.Get("projects.0.name").Exists())
	assert.True(t, out.Get("projects.0.issues").IsArray())
	assert.Equal(t, "bob", out.Get("projects.0.components.0.lead").String())
	assert.Equal(t, "Backend", out.Get("projects.0.components.1").String())
	assert.True(t, out.Get("projects.0.versions.0.released").Bool())
	assert.False(t, out.Get("projects.0.versions.1.releaseDate").Exists())
}
