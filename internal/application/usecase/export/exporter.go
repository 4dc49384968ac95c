package export

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
	"github.com/khoahotran/tagvault/pkg/logger"
)

// ToolVersion is stamped into every snapshot. Overridden at link time.
var ToolVersion = "1.4.0"

const DefaultSystemCategoryPrefix = "vSphere"

var tracer = otel.Tracer("export_usecase")

type Options struct {
	SourceServer            string
	ExcludeSystemCategories bool
	IncludeUsage            bool
	// SystemCategoryPrefix names the reserved namespace. Empty means
	// DefaultSystemCategoryPrefix.
	SystemCategoryPrefix string
}

// Exporter captures the live taxonomy behind a gateway. It only reads.
type Exporter struct {
	logger logger.Logger
	now    func() time.Time
}

func NewExporter(log logger.Logger) *Exporter {
	return &Exporter{logger: log, now: time.Now}
}

// Export fails as a whole when any remote call fails; there is no partial
// snapshot.
func (e *Exporter) Export(ctx context.Context, gw taxonomy.Gateway, opts Options) (*taxonomy.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Export")
	defer span.End()

	prefix := opts.SystemCategoryPrefix
	if prefix == "" {
		prefix = DefaultSystemCategoryPrefix
	}

	categories, err := gw.ListCategories(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list categories: %w", err)
	}
	tags, err := gw.ListTags(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list tags: %w", err)
	}

	excluded := 0
	if opts.ExcludeSystemCategories {
		kept := make([]taxonomy.Category, 0, len(categories))
		keptNames := make(map[string]struct{}, len(categories))
		for _, c := range categories {
			if strings.HasPrefix(c.Name, prefix) {
				excluded++
				continue
			}
			kept = append(kept, c)
			keptNames[c.Name] = struct{}{}
		}
		categories = kept
		tags = slices.DeleteFunc(tags, func(t taxonomy.Tag) bool {
			_, ok := keptNames[t.CategoryName]
			return !ok
		})
		e.logger.Debug("System categories excluded", zap.String("prefix", prefix), zap.Int("excluded", excluded))
	}

	if opts.IncludeUsage {
		for i := range tags {
			usage, err := gw.ListAssignments(ctx, tags[i])
			if err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("list assignments of tag %s/%s: %w", tags[i].CategoryName, tags[i].Name, err)
			}
			count := usage.AssignmentCount
			tags[i].AssignmentCount = &count
			tags[i].AssignedEntityTypes = distinctSorted(usage.EntityTypes)
		}
	}

	snap := &taxonomy.Snapshot{
		Metadata: taxonomy.Metadata{
			ExportDate:               e.now().UTC().Truncate(time.Second),
			SourceServer:             opts.SourceServer,
			ToolVersion:              ToolVersion,
			IncludesUsageData:        opts.IncludeUsage,
			ExcludedSystemCategories: opts.ExcludeSystemCategories,
		},
		Statistics: taxonomy.Statistics{
			TotalCategories:    len(categories),
			TotalTags:          len(tags),
			ExcludedCategories: excluded,
		},
		Categories: categories,
		Tags:       tags,
	}

	span.SetAttributes(
		attribute.String("source_server", opts.SourceServer),
		attribute.Int("categories", len(categories)),
		attribute.Int("tags", len(tags)),
	)
	e.logger.Info("Taxonomy exported",
		zap.String("source_server", opts.SourceServer),
		zap.Int("categories", len(categories)),
		zap.Int("tags", len(tags)),
		zap.Int("excluded_categories", excluded),
		zap.Bool("usage", opts.IncludeUsage),
	)
	return snap, nil
}

func distinctSorted(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
