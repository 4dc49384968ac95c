// Package vcenter implements the taxonomy gateway over the vSphere
// Automation tagging API.
package vcenter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/vmware/govmomi/vapi/rest"
	"github.com/vmware/govmomi/vapi/tags"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
	"github.com/khoahotran/tagvault/pkg/logger"
)

// Session is one authenticated REST session. Every gateway call goes
// through it; there is no package level connection state.
type Session struct {
	rc     *rest.Client
	mgr    *tags.Manager
	server string
	logger logger.Logger
}

var _ taxonomy.Session = (*Session)(nil)

// NewSession wraps an already logged in REST client.
func NewSession(rc *rest.Client, server string, log logger.Logger) *Session {
	return &Session{
		rc:     rc,
		mgr:    tags.NewManager(rc),
		server: server,
		logger: log.With(zap.String("server", server)),
	}
}

func (s *Session) Server() string { return s.server }

func (s *Session) Close(ctx context.Context) error {
	if err := s.rc.Logout(ctx); err != nil {
		return fmt.Errorf("logout from %s: %w", s.server, err)
	}
	s.logger.Debug("vCenter session closed")
	return nil
}

func (s *Session) ListCategories(ctx context.Context) ([]taxonomy.Category, error) {
	remote, err := s.mgr.GetCategories(ctx)
	if err != nil {
		return nil, s.wrap("list categories", err)
	}
	out := make([]taxonomy.Category, 0, len(remote))
	for _, c := range remote {
		out = append(out, s.toCategory(c))
	}
	return out, nil
}

func (s *Session) ListTags(ctx context.Context) ([]taxonomy.Tag, error) {
	categories, err := s.mgr.GetCategories(ctx)
	if err != nil {
		return nil, s.wrap("list categories", err)
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	remote, err := s.mgr.GetTags(ctx)
	if err != nil {
		return nil, s.wrap("list tags", err)
	}
	out := make([]taxonomy.Tag, 0, len(remote))
	for _, t := range remote {
		categoryName, ok := names[t.CategoryID]
		if !ok {
			s.logger.Warn("Tag references an unknown category", zap.String("tag", t.Name), zap.String("category_id", t.CategoryID))
		}
		out = append(out, taxonomy.Tag{
			Name:         t.Name,
			CategoryName: categoryName,
			Description:  t.Description,
			RemoteID:     t.ID,
		})
	}
	return out, nil
}

func (s *Session) CreateCategory(ctx context.Context, c taxonomy.Category) (taxonomy.Category, error) {
	id, err := s.mgr.CreateCategory(ctx, &tags.Category{
		Name:            c.Name,
		Description:     c.Description,
		Cardinality:     wireCardinality(c.Cardinality),
		AssociableTypes: slices.Clone(c.EntityTypes),
	})
	if err != nil {
		return taxonomy.Category{}, s.wrap(fmt.Sprintf("create category %q", c.Name), err)
	}
	c.RemoteID = id
	s.logger.Info("Category created", zap.String("category", c.Name), zap.String("id", id))
	return c, nil
}

func (s *Session) UpdateCategory(ctx context.Context, name string, fields taxonomy.CategoryUpdate) (taxonomy.Category, error) {
	current, err := s.mgr.GetCategory(ctx, name)
	if err != nil {
		return taxonomy.Category{}, s.wrap(fmt.Sprintf("find category %q", name), err)
	}
	if fields.Description != nil {
		current.Description = *fields.Description
	}
	if fields.Cardinality != nil {
		current.Cardinality = wireCardinality(*fields.Cardinality)
	}
	if err := s.mgr.UpdateCategory(ctx, current); err != nil {
		return taxonomy.Category{}, s.wrap(fmt.Sprintf("update category %q", name), err)
	}
	s.logger.Info("Category updated", zap.String("category", name))
	return s.toCategory(*current), nil
}

func (s *Session) CreateTag(ctx context.Context, t taxonomy.Tag) (taxonomy.Tag, error) {
	category, err := s.mgr.GetCategory(ctx, t.CategoryName)
	if err != nil {
		return taxonomy.Tag{}, s.wrap(fmt.Sprintf("find category %q", t.CategoryName), err)
	}
	id, err := s.mgr.CreateTag(ctx, &tags.Tag{
		Name:        t.Name,
		Description: t.Description,
		CategoryID:  category.ID,
	})
	if err != nil {
		return taxonomy.Tag{}, s.wrap(fmt.Sprintf("create tag %q", t.Name), err)
	}
	s.logger.Info("Tag created", zap.String("tag", t.Name), zap.String("category", t.CategoryName), zap.String("id", id))
	return taxonomy.Tag{
		Name:         t.Name,
		CategoryName: t.CategoryName,
		Description:  t.Description,
		RemoteID:     id,
	}, nil
}

func (s *Session) UpdateTag(ctx context.Context, name, categoryName string, fields taxonomy.TagUpdate) (taxonomy.Tag, error) {
	current, err := s.mgr.GetTagForCategory(ctx, name, categoryName)
	if err != nil {
		return taxonomy.Tag{}, s.wrap(fmt.Sprintf("find tag %q in category %q", name, categoryName), err)
	}
	if fields.Description != nil {
		current.Description = *fields.Description
	}
	if err := s.mgr.UpdateTag(ctx, current); err != nil {
		return taxonomy.Tag{}, s.wrap(fmt.Sprintf("update tag %q", name), err)
	}
	s.logger.Info("Tag updated", zap.String("tag", name), zap.String("category", categoryName))
	return taxonomy.Tag{
		Name:         current.Name,
		CategoryName: categoryName,
		Description:  current.Description,
		RemoteID:     current.ID,
	}, nil
}

func (s *Session) ListAssignments(ctx context.Context, t taxonomy.Tag) (taxonomy.TagUsage, error) {
	id := t.RemoteID
	if id == "" {
		current, err := s.mgr.GetTagForCategory(ctx, t.Name, t.CategoryName)
		if err != nil {
			return taxonomy.TagUsage{}, s.wrap(fmt.Sprintf("find tag %q in category %q", t.Name, t.CategoryName), err)
		}
		id = current.ID
	}
	refs, err := s.mgr.ListAttachedObjects(ctx, id)
	if err != nil {
		return taxonomy.TagUsage{}, s.wrap(fmt.Sprintf("list objects attached to %q", t.Name), err)
	}
	kinds := make([]string, 0, len(refs))
	for _, ref := range refs {
		kinds = append(kinds, ref.Reference().Type)
	}
	slices.Sort(kinds)
	return taxonomy.TagUsage{
		AssignmentCount: len(refs),
		EntityTypes:     slices.Compact(kinds),
	}, nil
}

func (s *Session) toCategory(c tags.Category) taxonomy.Category {
	card, err := taxonomy.ParseCardinality(c.Cardinality)
	if err != nil {
		s.logger.Warn("Unknown cardinality, treating as single", zap.String("category", c.Name), zap.String("cardinality", c.Cardinality))
	}
	return taxonomy.Category{
		Name:        c.Name,
		Description: c.Description,
		Cardinality: card,
		EntityTypes: slices.Clone(c.AssociableTypes),
		RemoteID:    c.ID,
	}
}

// wrap marks errors that mean the session can no longer be used so the
// engine aborts instead of failing every remaining item.
func (s *Session) wrap(action string, err error) error {
	if isSessionLost(err) {
		s.logger.Error("vCenter session lost", err, zap.String("action", action))
		return fmt.Errorf("%s: %w: %w", action, taxonomy.ErrSessionLost, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}

func isSessionLost(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "401 Unauthorized") || strings.Contains(msg, "unauthenticated")
}

func wireCardinality(c taxonomy.Cardinality) string {
	return strings.ToUpper(c.String())
}
