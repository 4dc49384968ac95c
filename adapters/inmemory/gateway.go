// Package inmemory provides a process-local tag store that satisfies the
// taxonomy gateway. It backs tests and offline simulations of a restore.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
)

type Op string

const (
	OpListCategories  Op = "ListCategories"
	OpListTags        Op = "ListTags"
	OpCreateCategory  Op = "CreateCategory"
	OpUpdateCategory  Op = "UpdateCategory"
	OpCreateTag       Op = "CreateTag"
	OpUpdateTag       Op = "UpdateTag"
	OpListAssignments Op = "ListAssignments"
)

// FailFunc lets tests inject errors. name is the category or tag name the
// operation targets, empty for list calls.
type FailFunc func(op Op, name string) error

type Store struct {
	mu          sync.Mutex
	categories  []taxonomy.Category
	tags        []taxonomy.Tag
	assignments map[taxonomy.TagKey]taxonomy.TagUsage
	nextID      int
	calls       map[Op]int

	Fail FailFunc
}

func NewStore() *Store {
	return &Store{
		assignments: make(map[taxonomy.TagKey]taxonomy.TagUsage),
		calls:       make(map[Op]int),
	}
}

// Seed installs live state without counting as mutations.
func (s *Store) Seed(categories []taxonomy.Category, tags []taxonomy.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range categories {
		if c.RemoteID == "" {
			c.RemoteID = s.newID("category")
		}
		c.EntityTypes = slices.Clone(c.EntityTypes)
		s.categories = append(s.categories, c)
	}
	for _, t := range tags {
		if t.RemoteID == "" {
			t.RemoteID = s.newID("tag")
		}
		s.tags = append(s.tags, t)
	}
}

func (s *Store) Assign(tag taxonomy.TagKey, usage taxonomy.TagUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[tag] = usage
}

func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Mutations counts create and update calls that reached the store.
func (s *Store) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[OpCreateCategory] + s.calls[OpUpdateCategory] + s.calls[OpCreateTag] + s.calls[OpUpdateTag]
}

func (s *Store) Category(name string) (taxonomy.Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := taxonomy.FindCategory(s.categories, name)
	if !ok {
		return taxonomy.Category{}, false
	}
	return *c, true
}

func (s *Store) Tag(name, categoryName string) (taxonomy.Tag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := taxonomy.FindTag(s.tags, name, categoryName)
	if !ok {
		return taxonomy.Tag{}, false
	}
	return *t, true
}

func (s *Store) newID(kind string) string {
	s.nextID++
	return fmt.Sprintf("urn:inmemory:%s:%d", kind, s.nextID)
}

func (s *Store) enter(op Op, name string) error {
	s.calls[op]++
	if s.Fail != nil {
		return s.Fail(op, name)
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]taxonomy.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListCategories, ""); err != nil {
		return nil, err
	}
	out := make([]taxonomy.Category, len(s.categories))
	for i, c := range s.categories {
		c.EntityTypes = slices.Clone(c.EntityTypes)
		out[i] = c
	}
	return out, nil
}

func (s *Store) ListTags(ctx context.Context) ([]taxonomy.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListTags, ""); err != nil {
		return nil, err
	}
	return slices.Clone(s.tags), nil
}

func (s *Store) CreateCategory(ctx context.Context, c taxonomy.Category) (taxonomy.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCreateCategory, c.Name); err != nil {
		return taxonomy.Category{}, err
	}
	if _, exists := taxonomy.FindCategory(s.categories, c.Name); exists {
		return taxonomy.Category{}, fmt.Errorf("category %q already exists", c.Name)
	}
	c.RemoteID = s.newID("category")
	c.EntityTypes = slices.Clone(c.EntityTypes)
	s.categories = append(s.categories, c)
	return c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, name string, fields taxonomy.CategoryUpdate) (taxonomy.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateCategory, name); err != nil {
		return taxonomy.Category{}, err
	}
	c, ok := taxonomy.FindCategory(s.categories, name)
	if !ok {
		return taxonomy.Category{}, fmt.Errorf("%w: %s", taxonomy.ErrCategoryNotFound, name)
	}
	if fields.Description != nil {
		c.Description = *fields.Description
	}
	if fields.Cardinality != nil {
		c.Cardinality = *fields.Cardinality
	}
	return *c, nil
}

func (s *Store) CreateTag(ctx context.Context, t taxonomy.Tag) (taxonomy.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCreateTag, t.Name); err != nil {
		return taxonomy.Tag{}, err
	}
	if _, ok := taxonomy.FindCategory(s.categories, t.CategoryName); !ok {
		return taxonomy.Tag{}, fmt.Errorf("%w: %s", taxonomy.ErrCategoryNotFound, t.CategoryName)
	}
	if _, exists := taxonomy.FindTag(s.tags, t.Name, t.CategoryName); exists {
		return taxonomy.Tag{}, fmt.Errorf("tag %q already exists in category %q", t.Name, t.CategoryName)
	}
	created := taxonomy.Tag{
		Name:         t.Name,
		CategoryName: t.CategoryName,
		Description:  t.Description,
		RemoteID:     s.newID("tag"),
	}
	s.tags = append(s.tags, created)
	return created, nil
}

func (s *Store) UpdateTag(ctx context.Context, name, categoryName string, fields taxonomy.TagUpdate) (taxonomy.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateTag, name); err != nil {
		return taxonomy.Tag{}, err
	}
	t, ok := taxonomy.FindTag(s.tags, name, categoryName)
	if !ok {
		return taxonomy.Tag{}, fmt.Errorf("%w: %s/%s", taxonomy.ErrTagNotFound, categoryName, name)
	}
	if fields.Description != nil {
		t.Description = *fields.Description
	}
	return *t, nil
}

func (s *Store) ListAssignments(ctx context.Context, t taxonomy.Tag) (taxonomy.TagUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListAssignments, t.Name); err != nil {
		return taxonomy.TagUsage{}, err
	}
	usage := s.assignments[t.Key()]
	usage.EntityTypes = slices.Clone(usage.EntityTypes)
	return usage, nil
}

type session struct {
	*Store
	server string
	closed bool
}

func (s *session) Server() string { return s.server }

func (s *session) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

// Dialer hands out sessions bound to per-server stores.
type Dialer struct {
	mu      sync.Mutex
	stores  map[string]*Store
	DialErr error
	Default string
}

func NewDialer(defaultServer string) *Dialer {
	return &Dialer{stores: make(map[string]*Store), Default: defaultServer}
}

// Store returns the store for server, creating an empty one on first use.
func (d *Dialer) Store(server string) *Store {
	d.mu.Lock()
	defer d.mu.Unlock()
	if server == "" {
		server = d.Default
	}
	st, ok := d.stores[server]
	if !ok {
		st = NewStore()
		d.stores[server] = st
	}
	return st
}

func (d *Dialer) Dial(ctx context.Context, target service.Target) (taxonomy.Session, error) {
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	server := target.Server
	if server == "" {
		server = d.Default
	}
	return &session{Store: d.Store(server), server: server}, nil
}
