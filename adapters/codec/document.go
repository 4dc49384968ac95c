package codec

import (
	"fmt"
	"time"

	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
)

// document mirrors the on-disk layout. Section fields are pointers so a
// missing section can be told apart from an empty one.
type document struct {
	ExportMetadata *metadataDoc   `json:"ExportMetadata" yaml:"ExportMetadata"`
	Statistics     *statisticsDoc `json:"Statistics" yaml:"Statistics"`
	TagCategories  *[]categoryDoc `json:"TagCategories" yaml:"TagCategories"`
	Tags           *[]tagDoc      `json:"Tags" yaml:"Tags"`
}

type metadataDoc struct {
	ExportDate               string `json:"ExportDate" yaml:"ExportDate"`
	SourceServer             string `json:"SourceServer" yaml:"SourceServer"`
	ToolVersion              string `json:"ToolVersion" yaml:"ToolVersion"`
	IncludesUsageData        bool   `json:"IncludesUsageData" yaml:"IncludesUsageData"`
	ExcludedSystemCategories bool   `json:"ExcludedSystemCategories" yaml:"ExcludedSystemCategories"`
}

type statisticsDoc struct {
	TotalCategories    int `json:"TotalCategories" yaml:"TotalCategories"`
	TotalTags          int `json:"TotalTags" yaml:"TotalTags"`
	ExcludedCategories int `json:"ExcludedCategories,omitempty" yaml:"ExcludedCategories,omitempty"`
}

type categoryDoc struct {
	Name        string   `json:"Name" yaml:"Name"`
	Description string   `json:"Description" yaml:"Description"`
	Cardinality string   `json:"Cardinality" yaml:"Cardinality"`
	EntityType  []string `json:"EntityType" yaml:"EntityType"`
	Id          string   `json:"Id" yaml:"Id"`
}

type tagDoc struct {
	Name                string   `json:"Name" yaml:"Name"`
	Description         string   `json:"Description" yaml:"Description"`
	CategoryName        string   `json:"CategoryName" yaml:"CategoryName"`
	Id                  string   `json:"Id" yaml:"Id"`
	AssignmentCount     *int     `json:"AssignmentCount,omitempty" yaml:"AssignmentCount,omitempty"`
	AssignedEntityTypes []string `json:"AssignedEntityTypes,omitempty" yaml:"AssignedEntityTypes,omitempty"`
}

// Layouts accepted for ExportDate, tried in order.
var exportDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toDocument(s *taxonomy.Snapshot) (*document, error) {
	categories := make([]categoryDoc, 0, len(s.Categories))
	for _, c := range s.Categories {
		card, err := c.Cardinality.MarshalText()
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", c.Name, err)
		}
		entityTypes := c.EntityTypes
		if entityTypes == nil {
			entityTypes = []string{}
		}
		categories = append(categories, categoryDoc{
			Name:        c.Name,
			Description: c.Description,
			Cardinality: string(card),
			EntityType:  entityTypes,
			Id:          c.RemoteID,
		})
	}

	tags := make([]tagDoc, 0, len(s.Tags))
	for _, t := range s.Tags {
		tags = append(tags, tagDoc{
			Name:                t.Name,
			Description:         t.Description,
			CategoryName:        t.CategoryName,
			Id:                  t.RemoteID,
			AssignmentCount:     t.AssignmentCount,
			AssignedEntityTypes: t.AssignedEntityTypes,
		})
	}

	exportDate := ""
	if !s.Metadata.ExportDate.IsZero() {
		exportDate = s.Metadata.ExportDate.UTC().Format(time.RFC3339)
	}

	return &document{
		ExportMetadata: &metadataDoc{
			ExportDate:               exportDate,
			SourceServer:             s.Metadata.SourceServer,
			ToolVersion:              s.Metadata.ToolVersion,
			IncludesUsageData:        s.Metadata.IncludesUsageData,
			ExcludedSystemCategories: s.Metadata.ExcludedSystemCategories,
		},
		Statistics: &statisticsDoc{
			TotalCategories:    s.Statistics.TotalCategories,
			TotalTags:          s.Statistics.TotalTags,
			ExcludedCategories: s.Statistics.ExcludedCategories,
		},
		TagCategories: &categories,
		Tags:          &tags,
	}, nil
}

// fromDocument rebuilds a snapshot. Tag to category references are left
// unchecked; they are resolved per item during reconciliation.
func fromDocument(d *document) (*taxonomy.Snapshot, error) {
	if d.TagCategories == nil {
		return nil, fmt.Errorf("%w: missing TagCategories section", taxonomy.ErrMalformedSnapshot)
	}
	if d.Tags == nil {
		return nil, fmt.Errorf("%w: missing Tags section", taxonomy.ErrMalformedSnapshot)
	}

	snap := &taxonomy.Snapshot{
		Categories: make([]taxonomy.Category, 0, len(*d.TagCategories)),
		Tags:       make([]taxonomy.Tag, 0, len(*d.Tags)),
	}

	if m := d.ExportMetadata; m != nil {
		exportDate, err := parseExportDate(m.ExportDate)
		if err != nil {
			return nil, err
		}
		snap.Metadata = taxonomy.Metadata{
			ExportDate:               exportDate,
			SourceServer:             m.SourceServer,
			ToolVersion:              m.ToolVersion,
			IncludesUsageData:        m.IncludesUsageData,
			ExcludedSystemCategories: m.ExcludedSystemCategories,
		}
	}
	if st := d.Statistics; st != nil {
		snap.Statistics = taxonomy.Statistics{
			TotalCategories:    st.TotalCategories,
			TotalTags:          st.TotalTags,
			ExcludedCategories: st.ExcludedCategories,
		}
	}

	for i, c := range *d.TagCategories {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: category #%d has no name", taxonomy.ErrMalformedSnapshot, i)
		}
		card := taxonomy.CardinalitySingle
		if c.Cardinality != "" {
			parsed, err := taxonomy.ParseCardinality(c.Cardinality)
			if err != nil {
				return nil, fmt.Errorf("%w: category %q: %w", taxonomy.ErrMalformedSnapshot, c.Name, err)
			}
			card = parsed
		}
		var entityTypes []string
		if len(c.EntityType) > 0 {
			entityTypes = c.EntityType
		}
		snap.Categories = append(snap.Categories, taxonomy.Category{
			Name:        c.Name,
			Description: c.Description,
			Cardinality: card,
			EntityTypes: entityTypes,
			RemoteID:    c.Id,
		})
	}

	for i, t := range *d.Tags {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: tag #%d has no name", taxonomy.ErrMalformedSnapshot, i)
		}
		var assigned []string
		if len(t.AssignedEntityTypes) > 0 {
			assigned = t.AssignedEntityTypes
		}
		snap.Tags = append(snap.Tags, taxonomy.Tag{
			Name:                t.Name,
			CategoryName:        t.CategoryName,
			Description:         t.Description,
			RemoteID:            t.Id,
			AssignmentCount:     t.AssignmentCount,
			AssignedEntityTypes: assigned,
		})
	}

	return snap, nil
}

func parseExportDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range exportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: ExportDate %q is not ISO-8601", taxonomy.ErrMalformedSnapshot, s)
}
