package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"redminetojira/models"
)

func sampleIssue() models.SourceIssue {
	return models.SourceIssue{
		ID:           17,
		Tracker:      &models.Ref{ID: 1, Name: "Bug"},
		Status:       &models.Ref{ID: 2, Name: "In Progress"},
		Priority:     &models.Ref{ID: 5, Name: "Urgent"},
		Author:       &models.Ref{ID: 1, Name: "Alice Smith"},
		AssignedTo:   &models.Ref{ID: 2, Name: "Bob Jones"},
		Category:     &models.Ref{ID: 4, Name: "UI"},
		FixedVersion: &models.Ref{ID: 925, Name: "Sprint 12"},
		Subject:      "Crash when saving, see #3",
		Description:  "<pre>panic</pre>",
		CreatedOn:    "2020-01-01T09:00:00Z",
		UpdatedOn:    "2020-01-05T09:00:00Z",
		CustomFields: []models.SourceCustomField{
			{ID: 5, Name: "QA-Contact", Value: json.RawMessage(`"1"`)},
			{ID: 7, Name: "Customer", Value: json.RawMessage(`"ACME"`)},
			{ID: 8, Name: "Freshdesk URL", Value: json.RawMessage(`""`)},
			{ID: 9, Name: "Affected Version", Value: json.RawMessage(`null`)},
			{ID: 10, Name: "Merge Request", Multiple: true, Value: json.RawMessage(`["https://git/1","https://git/2"]`)},
		},
		Attachments: []models.SourceAttachment{
			{
				ID: 12, Filename: "screen.png", Description: "screenshot",
				ContentURL: "https://redmine.example.com/attachments/download/12/screen.png",
				Author:     &models.Ref{ID: 2}, CreatedOn: "2020-01-02T09:00:00Z",
			},
		},
		Journals: []models.JournalEntry{
			{ID: 1, User: &models.Ref{ID: 2}, Notes: "duplicate of #4", CreatedOn: "2020-01-03T09:00:00Z"},
			{
				ID: 2, User: &models.Ref{ID: 1}, CreatedOn: "2020-01-04T09:00:00Z",
				Details: []models.JournalDetail{{Property: "attr", Name: "status_id", OldValue: "1", NewValue: "2"}},
			},
		},
		Relations: []models.SourceRelation{
			{ID: 1, IssueID: 17, IssueToID: 4, RelationType: "duplicates"},
			{ID: 2, IssueID: 3, IssueToID: 17, RelationType: "blocks"},
		},
		Tags: []models.SourceTag{{ID: 1, Name: "needs triage"}, {ID: 2}},
	}
}

func TestTransform(t *testing.T) {
	cfg := newTestConfig(t)
	registry := newTestRegistry(t)
	transformer := NewIssueTransformer(cfg, registry)

	issue, links, err := transformer.Transform(sampleIssue())
	require.NoError(t, err)

	assert.Equal(t, "PRJ-17", issue.Key)
	assert.Equal(t, ptr("alice"), issue.Reporter)
	assert.Equal(t, ptr("bob"), issue.Assignee)
	assert.Equal(t, "Bug", issue.IssueType)
	assert.Equal(t, "Crash when saving, see PRJ-3", issue.Summary)
	assert.Equal(t, "{code}panic{code}", issue.Description)
	assert.Equal(t, "2020-01-01T09:00:00Z", issue.Created)
	assert.Equal(t, "2020-01-05T09:00:00Z", issue.Updated)
	assert.Equal(t, []string{"UI"}, issue.Components)
	assert.Equal(t, []string{"Backlog"}, issue.FixedVersions)
	assert.Equal(t, ptr("In progress"), issue.Status)
	assert.Equal(t, "Highest", issue.Priority)
	assert.Equal(t, []string{"needs_triage", "2"}, issue.Labels)

	require.Len(t, issue.CustomFieldValues, 3)
	assert.Equal(t, "QA-Contact", issue.CustomFieldValues[0].FieldName)
	assert.Equal(t, "com.atlassian.jira.plugin.system.customfieldtypes:userpicker", issue.CustomFieldValues[0].FieldType)
	assert.Equal(t, "alice", issue.CustomFieldValues[0].Value)
	assert.Equal(t, "ACME", issue.CustomFieldValues[1].Value)
	assert.Equal(t, []string{"https://git/1", "https://git/2"}, issue.CustomFieldValues[2].Value)

	require.Len(t, issue.Attachments, 1)
	assert.Equal(t, models.TargetAttachment{
		Name:        "screen.png",
		Attacher:    ptr("bob"),
		Created:     "2020-01-02T09:00:00Z",
		URI:         "http://relay.example.com:3001/attachments/download/12/screen.png",
		Description: "screenshot",
	}, issue.Attachments[0])

	require.Len(t, issue.Comments, 1)
	assert.Equal(t, models.TargetComment{Body: "duplicate of PRJ-4", Author: ptr("bob"), Created: "2020-01-03T09:00:00Z"}, issue.Comments[0])

	require.Len(t, issue.History, 1)
	assert.Equal(t, ptr("To do"), issue.History[0].Items[0].FromString)

	assert.Equal(t, []models.TargetLink{{Name: "Duplicate", SourceID: "PRJ-17", DestinationID: "PRJ-4"}}, links)
}

func TestTransformWithoutRelations(t *testing.T) {
	cfg := newTestConfig(t)
	registry := newTestRegistry(t)
	transformer := NewIssueTransformer(cfg, registry)

	withRelations := sampleIssue()
	withoutRelations := sampleIssue()
	withoutRelations.Relations = nil

	expected, _, err := transformer.Transform(withRelations)
	require.NoError(t, err)
	issue, links, err := transformer.Transform(withoutRelations)
	require.NoError(t, err)

	assert.Empty(t, links)
	assert.Equal(t, expected, issue)
}

func TestTransformUnmappedCustomFieldIsFatal(t *testing.T) {
	cfg := newTestConfig(t)
	registry := newTestRegistry(t)
	transformer := NewIssueTransformer(cfg, registry)

	issue := sampleIssue()
	issue.CustomFields = append(issue.CustomFields, models.SourceCustomField{ID: 99, Name: "Severity", Value: json.RawMessage(`"S1"`)})

	_, _, err := transformer.Transform(issue)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnmappedCustomField))

	var cfErr *CustomFieldError
	require.True(t, errors.As(err, &cfErr))
	assert.Equal(t, "Severity", cfErr.Name)
	assert.Contains(t, err.Error(), "イシュー 17")
}

func TestTransformInvalidCustomFieldType(t *testing.T) {
	cfg := newTestConfig(t)
	spec := cfg.Mappings.CustomFields["Customer"]
	spec.Type = "com.example:unknown"
	cfg.Mappings.CustomFields["Customer"] = spec

	_, _, err := NewIssueTransformer(cfg, newTestRegistry(t)).Transform(sampleIssue())
	require.ErrorIs(t, err, ErrUnmappedCustomField)
}

// 値が空のカスタムフィールドは型の設定がなくても無視されます
func TestTransformSkipsEmptyCustomFields(t *testing.T) {
	cfg := newTestConfig(t)
	transformer := NewIssueTransformer(cfg, newTestRegistry(t))

	issue := sampleIssue()
	issue.CustomFields = []models.SourceCustomField{
		{ID: 99, Name: "Severity", Value: json.RawMessage(`""`)},
		{ID: 98, Name: "Severity", Value: json.RawMessage(`[]`)},
		{ID: 97, Name: "Severity"},
	}

	target, _, err := transformer.Transform(issue)
	require.NoError(t, err)
	assert.Empty(t, target.CustomFieldValues)
	assert.NotNil(t, target.CustomFieldValues)
}

func TestTransformNullableReferences(t *testing.T) {
	cfg := newTestConfig(t)
	transformer := NewIssueTransformer(cfg, newTestRegistry(t))

	issue := sampleIssue()
	issue.AssignedTo = nil
	issue.Author = &models.Ref{ID: 404}
	issue.Category = nil
	issue.FixedVersion = nil
	issue.CustomFields = []models.SourceCustomField{{ID: 5, Name: "QA-Contact", Value: json.RawMessage(`"404"`)}}

	target, _, err := transformer.Transform(issue)
	require.NoError(t, err)
	assert.Nil(t, target.Assignee)
	assert.Nil(t, target.Reporter)
	assert.Nil(t, target.Components)
	assert.Nil(t, target.FixedVersions)
	require.Len(t, target.CustomFieldValues, 1)
	assert.Nil(t, target.CustomFieldValues[0].Value)

	data, err := json.Marshal(target)
	require.NoError(t, err)
	out := gjson.ParseBytes(data)
	assert.Equal(t, gjson.Null, out.Get("reporter").Type)
	assert.False(t, out.Get("assignee").Exists())
	assert.False(t, out.Get("components").Exists())
	assert.Equal(t, gjson.Null, out.Get("customFieldValues.0.value").Type)
}

func TestTransformUsesAccountIDs(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.UseTargetAccountIDs = true
	registry := newTestRegistry(t)
	registry.SetTargetID("1", "acc-alice")
	registry.SetTargetID("2", "acc-bob")

	target, _, err := NewIssueTransformer(cfg, registry).Transform(sampleIssue())
	require.NoError(t, err)

	assert.Equal(t, ptr("acc-alice"), target.Reporter)
	assert.Equal(t, ptr("acc-bob"), target.Assignee)
	assert.Equal(t, "acc-alice", target.CustomFieldValues[0].Value)
	assert.Equal(t, ptr("acc-bob"), target.Comments[0].Author)
}

func TestTransformMarksReferencedUsers(t *testing.T) {
	cfg := newTestConfig(t)
	registry := newTestRegistry(t)

	issue := sampleIssue()
	issue.AssignedTo = nil
	issue.Attachments = nil
	issue.Journals = nil
	issue.CustomFields = nil

	_, _, err := NewIssueTransformer(cfg, registry).Transform(issue)
	require.NoError(t, err)
	assert.True(t, registry.IsReferenced("1"))
	assert.False(t, registry.IsReferenced("2"))
}
