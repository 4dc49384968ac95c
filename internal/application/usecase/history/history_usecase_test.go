package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/tagvault/adapters/codec"
	"github.com/khoahotran/tagvault/adapters/inmemory"
	"github.com/khoahotran/tagvault/internal/domain/history"
	"github.com/khoahotran/tagvault/internal/domain/reconcile"
	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/logger"
)

func seedRuns(t *testing.T, repo *inmemory.HistoryRepo, n int) time.Time {
	t.Helper()
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := range n {
		report := reconcile.NewReport(i%2 == 0)
		report.RecordCategory("App", reconcile.Created())
		require.NoError(t, repo.SaveRun(context.Background(), &history.Run{
			ID:           uuid.New(),
			TargetServer: "vc02.lab",
			DryRun:       i%2 == 0,
			Status:       history.StatusFor(report),
			Report:       report,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
			FinishedAt:   base.Add(time.Duration(i)*time.Minute + time.Second),
		}))
	}
	return base
}

func TestListRuns_PagingDefaults(t *testing.T) {
	repo := inmemory.NewHistoryRepo()
	base := seedRuns(t, repo, 25)
	uc := NewHistoryUseCase(repo, logger.NewNopLogger())

	runs, err := uc.ListRuns(context.Background(), ListInput{})
	require.NoError(t, err)
	assert.Len(t, runs, defaultPageSize)
	assert.Equal(t, base.Add(24*time.Minute), runs[0].StartedAt)

	runs, err = uc.ListRuns(context.Background(), ListInput{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Len(t, runs, 25)

	runs, err = uc.ListRuns(context.Background(), ListInput{Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Len(t, runs, 5)
}

func TestGetSnapshot_DecodesDocument(t *testing.T) {
	repo := inmemory.NewHistoryRepo()
	uc := NewHistoryUseCase(repo, logger.NewNopLogger())
	doc, err := codec.Marshal(&taxonomy.Snapshot{Categories: []taxonomy.Category{{Name: "App"}}}, codec.FormatJSON)
	require.NoError(t, err)
	id := uuid.New()
	require.NoError(t, repo.SaveSnapshot(context.Background(), &history.ArchivedSnapshot{ID: id, Document: doc, CategoryCount: 1}))

	out, err := uc.GetSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "App", out.Snapshot.Categories[0].Name)

	list, err := uc.ListSnapshots(context.Background(), ListInput{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Document)

	_, err = uc.GetSnapshot(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRSS_OneItemPerRun(t *testing.T) {
	repo := inmemory.NewHistoryRepo()
	seedRuns(t, repo, 2)
	uc := NewRSSUseCase(repo, "https://tagvault.lab/", logger.NewNopLogger())

	feed, err := uc.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, feed.Items, 2)
	assert.Equal(t, "[succeeded] live restore on vc02.lab", feed.Items[0].Title)
	assert.Equal(t, "[succeeded] dry run restore on vc02.lab", feed.Items[1].Title)
	assert.Contains(t, feed.Items[0].Description, "Categories created=1")
	assert.Equal(t, "https://tagvault.lab/api/admin/runs", feed.Link.Href)

	rss, err := feed.ToRss()
	require.NoError(t, err)
	assert.Contains(t, rss, "vc02.lab")
}
