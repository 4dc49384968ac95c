package codec

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
)

func sampleSnapshot() *taxonomy.Snapshot {
	three := 3
	zero := 0
	return &taxonomy.Snapshot{
		Metadata: taxonomy.Metadata{
			ExportDate:               time.Date(2026, 5, 4, 8, 15, 0, 0, time.UTC),
			SourceServer:             "vc01.lab.local",
			ToolVersion:              "1.4.0",
			IncludesUsageData:        true,
			ExcludedSystemCategories: true,
		},
		Statistics: taxonomy.Statistics{TotalCategories: 2, TotalTags: 2, ExcludedCategories: 1},
		Categories: []taxonomy.Category{
			{Name: "App", Description: "Owning application", Cardinality: taxonomy.CardinalitySingle, EntityTypes: []string{"VirtualMachine"}, RemoteID: "urn:vmomi:InventoryServiceCategory:1:GLOBAL"},
			{Name: "Env", Cardinality: taxonomy.CardinalityMultiple},
		},
		Tags: []taxonomy.Tag{
			{Name: "Finance", CategoryName: "App", Description: "Finance <apps>", RemoteID: "urn:vmomi:InventoryServiceTag:2:GLOBAL", AssignmentCount: &three, AssignedEntityTypes: []string{"VirtualMachine"}},
			{Name: "Prod", CategoryName: "Env", AssignmentCount: &zero},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatYAML} {
		t.Run(f.String(), func(t *testing.T) {
			want := sampleSnapshot()

			data, err := Marshal(want, f)
			require.NoError(t, err)

			got, err := Unmarshal(data, f)
			require.NoError(t, err)
			assert.True(t, want.Metadata.ExportDate.Equal(got.Metadata.ExportDate))
			got.Metadata.ExportDate = want.Metadata.ExportDate
			assert.Equal(t, want, got)
		})
	}
}

func TestEncode_FieldNames(t *testing.T) {
	data, err := Marshal(sampleSnapshot(), FormatJSON)
	require.NoError(t, err)
	out := string(data)

	for _, key := range []string{`"ExportMetadata"`, `"ExportDate": "2026-05-04T08:15:00Z"`, `"TagCategories"`, `"EntityType": []`, `"Cardinality": "Multiple"`, `"AssignmentCount": 0`, `"Finance <apps>"`} {
		assert.Contains(t, out, key)
	}
}

func TestDecode_MissingSectionsAreMalformed(t *testing.T) {
	tests := map[string]string{
		"no categories": `{"ExportMetadata": {}, "Tags": []}`,
		"no tags":       `{"TagCategories": []}`,
		"null tags":     `{"TagCategories": [], "Tags": null}`,
		"not json":      `TagCategories: [`,
		"empty":         "  \n",
		"bad card":      `{"TagCategories": [{"Name": "App", "Cardinality": "Many"}], "Tags": []}`,
		"bad date":      `{"ExportMetadata": {"ExportDate": "yesterday"}, "TagCategories": [], "Tags": []}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(input), FormatJSON)
			assert.ErrorIs(t, err, taxonomy.ErrMalformedSnapshot)
		})
	}
}

func TestDecode_DanglingCategoryIsAccepted(t *testing.T) {
	input := "\xef\xbb\xbf" + `{
  "TagCategories": [],
  "Tags": [{"Name": "Orphan", "CategoryName": "Missing", "Id": ""}]
}`
	snap, err := Decode(strings.NewReader(input), FormatJSON)
	require.NoError(t, err)
	require.Len(t, snap.Tags, 1)
	assert.Equal(t, "Missing", snap.Tags[0].CategoryName)
	assert.Nil(t, snap.Tags[0].AssignmentCount)
}

func TestDecode_WireCardinalityAndLocalDate(t *testing.T) {
	input := `
ExportMetadata:
  ExportDate: "2025-11-02T09:00:00"
TagCategories:
  - Name: Backup
    Cardinality: MULTIPLE
    EntityType: [VirtualMachine, Datastore]
Tags: []
`
	snap, err := Unmarshal([]byte(input), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, taxonomy.CardinalityMultiple, snap.Categories[0].Cardinality)
	assert.Equal(t, []string{"VirtualMachine", "Datastore"}, snap.Categories[0].EntityTypes)
	assert.Equal(t, 2025, snap.Metadata.ExportDate.Year())
	assert.Empty(t, snap.Tags)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out/snap.json", "out/snap.yml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, sampleSnapshot()))

		got, err := ReadFile(path)
		require.NoError(t, err)
		assert.Len(t, got.Categories, 2)
		assert.Len(t, got.Tags, 2)
	}

	assert.Equal(t, FormatYAML, FormatFromPath("a/b.YAML"))
	assert.Equal(t, FormatJSON, FormatFromPath("snapshot"))

	_, err := ReadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, taxonomy.ErrMalformedSnapshot)
}
