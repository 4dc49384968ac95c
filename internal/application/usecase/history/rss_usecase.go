package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/internal/domain/history"
	"github.com/khoahotran/tagvault/pkg/logger"
)

type RSSUseCase struct {
	repo    history.Repository
	baseURL string
	logger  logger.Logger
	now     func() time.Time
}

func NewRSSUseCase(repo history.Repository, baseURL string, log logger.Logger) *RSSUseCase {
	return &RSSUseCase{
		repo:    repo,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  log,
		now:     time.Now,
	}
}

func (uc *RSSUseCase) Execute(ctx context.Context) (*feeds.Feed, error) {
	uc.logger.Info("Generating RSS feed...")

	feed := &feeds.Feed{
		Title:       "tagvault - reconciliation runs",
		Link:        &feeds.Link{Href: uc.baseURL + "/api/admin/runs"},
		Description: "Recent tag taxonomy restores and dry runs.",
		Author:      &feeds.Author{Name: "tagvault"},
		Created:     uc.now(),
	}

	runs, err := uc.repo.ListRuns(ctx, defaultPageSize, 0)
	if err != nil {
		uc.logger.Error("Failed to list runs for RSS", err)
		return nil, err
	}

	feedItems := make([]*feeds.Item, 0, len(runs))
	for _, run := range runs {
		mode := "live"
		if run.DryRun {
			mode = "dry run"
		}
		item := &feeds.Item{
			Id:      run.ID.String(),
			Title:   fmt.Sprintf("[%s] %s restore on %s", run.Status, mode, run.TargetServer),
			Link:    &feeds.Link{Href: fmt.Sprintf("%s/api/admin/runs#%s", uc.baseURL, run.ID)},
			Created: run.StartedAt,
			Updated: run.FinishedAt,
		}
		if run.Report != nil {
			item.Description = run.Report.Summary()
		}
		feedItems = append(feedItems, item)
	}

	feed.Items = feedItems
	uc.logger.Info("RSS feed generated successfully", zap.Int("item_count", len(feed.Items)))
	return feed, nil
}
