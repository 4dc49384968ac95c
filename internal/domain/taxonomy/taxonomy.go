package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Cardinality int

const (
	CardinalitySingle Cardinality = iota
	CardinalityMultiple
)

var (
	ErrInvalidCardinality = errors.New("cardinality must be Single or Multiple")
	ErrMalformedSnapshot  = errors.New("malformed snapshot")
	ErrCategoryNotFound   = errors.New("category not found")
	ErrTagNotFound        = errors.New("tag not found")
	// ErrSessionLost marks gateway failures that invalidate the whole session.
	ErrSessionLost = errors.New("remote session lost")
)

func (c Cardinality) String() string {
	switch c {
	case CardinalitySingle:
		return "Single"
	case CardinalityMultiple:
		return "Multiple"
	}
	return fmt.Sprintf("Cardinality(%d)", int(c))
}

// ParseCardinality accepts both the snapshot form ("Single") and the
// vCenter wire form ("SINGLE").
func ParseCardinality(s string) (Cardinality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return CardinalitySingle, nil
	case "multiple":
		return CardinalityMultiple, nil
	}
	return CardinalitySingle, fmt.Errorf("%w: %q", ErrInvalidCardinality, s)
}

func (c Cardinality) MarshalText() ([]byte, error) {
	switch c {
	case CardinalitySingle, CardinalityMultiple:
		return []byte(c.String()), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidCardinality, int(c))
}

func (c *Cardinality) UnmarshalText(b []byte) error {
	parsed, err := ParseCardinality(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

type Category struct {
	Name        string
	Description string
	Cardinality Cardinality
	EntityTypes []string
	RemoteID    string
}

type Tag struct {
	Name         string
	CategoryName string
	Description  string
	RemoteID     string

	// Usage is only populated by exports that request it.
	AssignmentCount     *int
	AssignedEntityTypes []string
}

// Key identifies a tag within a taxonomy.
func (t Tag) Key() TagKey {
	return TagKey{Name: t.Name, CategoryName: t.CategoryName}
}

type TagKey struct {
	Name         string
	CategoryName string
}

type Metadata struct {
	ExportDate               time.Time
	SourceServer             string
	ToolVersion              string
	IncludesUsageData        bool
	ExcludedSystemCategories bool
}

// Statistics are informational and never re-validated on import.
type Statistics struct {
	TotalCategories    int
	TotalTags          int
	ExcludedCategories int
}

type Snapshot struct {
	Metadata   Metadata
	Statistics Statistics
	Categories []Category
	Tags       []Tag
}

type CategoryUpdate struct {
	Description *string
	Cardinality *Cardinality
}

func (u CategoryUpdate) IsEmpty() bool {
	return u.Description == nil && u.Cardinality == nil
}

type TagUpdate struct {
	Description *string
}

func (u TagUpdate) IsEmpty() bool {
	return u.Description == nil
}

type TagUsage struct {
	AssignmentCount int
	EntityTypes     []string
}

// Gateway is the narrow view of a remote tag store. Implementations bind
// to one authenticated session; the core never sees vendor client types.
type Gateway interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ListTags(ctx context.Context) ([]Tag, error)
	CreateCategory(ctx context.Context, c Category) (Category, error)
	UpdateCategory(ctx context.Context, name string, fields CategoryUpdate) (Category, error)
	CreateTag(ctx context.Context, t Tag) (Tag, error)
	UpdateTag(ctx context.Context, name, categoryName string, fields TagUpdate) (Tag, error)
	ListAssignments(ctx context.Context, t Tag) (TagUsage, error)
}

type Session interface {
	Gateway
	// Server identifies the remote instance the session is bound to.
	Server() string
	Close(ctx context.Context) error
}

func FindCategory(categories []Category, name string) (*Category, bool) {
	for i := range categories {
		if categories[i].Name == name {
			return &categories[i], true
		}
	}
	return nil, false
}

func FindTag(tags []Tag, name, categoryName string) (*Tag, bool) {
	for i := range tags {
		if tags[i].Name == name && tags[i].CategoryName == categoryName {
			return &tags[i], true
		}
	}
	return nil, false
}
