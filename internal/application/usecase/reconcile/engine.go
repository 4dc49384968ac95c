package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/internal/domain/reconcile"
	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
	"github.com/khoahotran/tagvault/pkg/logger"
)

var tracer = otel.Tracer("reconcile_usecase")

// Engine converges a remote taxonomy toward a desired snapshot. Categories
// are always processed to completion before any tag, items are handled in
// snapshot order, and a failing item never stops the run unless the
// session itself is gone.
type Engine struct {
	logger logger.Logger
}

func NewEngine(log logger.Logger) *Engine {
	return &Engine{logger: log}
}

// Run never mutates desired. The returned report is non-nil even when err
// is set; in that case it is partial and marked aborted.
func (e *Engine) Run(ctx context.Context, gw taxonomy.Gateway, desired *taxonomy.Snapshot, opts Options) (*reconcile.Report, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("dry_run", opts.DryRun),
		attribute.Bool("update_existing", opts.UpdateExisting),
		attribute.Int("desired.categories", len(desired.Categories)),
		attribute.Int("desired.tags", len(desired.Tags)),
	)

	report := reconcile.NewReport(opts.DryRun)

	liveCategories, err := gw.ListCategories(ctx)
	if err != nil {
		return e.abort(report, span, fmt.Errorf("list live categories: %w", err))
	}
	liveTags, err := gw.ListTags(ctx)
	if err != nil {
		return e.abort(report, span, fmt.Errorf("list live tags: %w", err))
	}

	working, err := e.reconcileCategories(ctx, gw, desired.Categories, liveCategories, opts, report)
	if err != nil {
		return e.abort(report, span, err)
	}

	if !opts.DryRun {
		working, err = gw.ListCategories(ctx)
		if err != nil {
			return e.abort(report, span, fmt.Errorf("refresh live categories: %w", err))
		}
	}

	if err := e.reconcileTags(ctx, gw, desired.Tags, liveTags, working, opts, report); err != nil {
		return e.abort(report, span, err)
	}

	span.SetAttributes(
		attribute.Int("categories.failed", report.Categories.Failed),
		attribute.Int("tags.failed", report.Tags.Failed),
	)
	e.logger.Info("Reconciliation finished",
		zap.Bool("dry_run", opts.DryRun),
		zap.Any("categories", report.Categories),
		zap.Any("tags", report.Tags),
	)
	return report, nil
}

func (e *Engine) reconcileCategories(
	ctx context.Context,
	gw taxonomy.Gateway,
	desired []taxonomy.Category,
	live []taxonomy.Category,
	opts Options,
	report *reconcile.Report,
) ([]taxonomy.Category, error) {
	ctx, span := tracer.Start(ctx, "Categories")
	defer span.End()

	// The lookup set is the live list captured before the phase. Only an
	// opted-in dry run extends it with simulated categories.
	working := slices.Clone(live)

	for _, want := range desired {
		outcome, err := guard(func() (reconcile.Outcome, error) {
			current, _ := taxonomy.FindCategory(live, want.Name)
			return e.applyCategory(ctx, gw, want, current, opts)
		})
		report.RecordCategory(want.Name, outcome)
		if outcome.Kind == reconcile.OutcomeFailed {
			e.logger.Warn("Category reconciliation failed", zap.String("category", want.Name), zap.String("reason", outcome.Reason))
		}
		if err != nil {
			return working, err
		}
		if opts.DryRun && opts.SimulateDependencies && outcome.Kind == reconcile.OutcomeCreated {
			working = append(working, want)
		}
	}

	span.SetAttributes(attribute.Int("created", report.Categories.Created), attribute.Int("failed", report.Categories.Failed))
	return working, nil
}

func (e *Engine) applyCategory(ctx context.Context, gw taxonomy.Gateway, want taxonomy.Category, current *taxonomy.Category, opts Options) (reconcile.Outcome, error) {
	plan := PlanCategory(want, current, opts)
	switch plan.Action {
	case ActionCreate:
		if opts.DryRun {
			return reconcile.Created(), nil
		}
		if _, err := gw.CreateCategory(ctx, want); err != nil {
			return itemFailure(err)
		}
		return reconcile.Created(), nil
	case ActionUpdate:
		if _, err := gw.UpdateCategory(ctx, want.Name, plan.Delta); err != nil {
			return itemFailure(err)
		}
		return reconcile.Updated(), nil
	case ActionSkipUnchanged:
		return reconcile.SkippedUnchanged(), nil
	case ActionSkipExists:
		return reconcile.SkippedExists(), nil
	}
	return reconcile.Failed(fmt.Sprintf("unexpected plan %s", plan.Action)), nil
}

func (e *Engine) reconcileTags(
	ctx context.Context,
	gw taxonomy.Gateway,
	desired []taxonomy.Tag,
	live []taxonomy.Tag,
	categories []taxonomy.Category,
	opts Options,
	report *reconcile.Report,
) error {
	ctx, span := tracer.Start(ctx, "Tags")
	defer span.End()

	for _, want := range desired {
		outcome, err := guard(func() (reconcile.Outcome, error) {
			current, _ := taxonomy.FindTag(live, want.Name, want.CategoryName)
			_, visible := taxonomy.FindCategory(categories, want.CategoryName)
			return e.applyTag(ctx, gw, want, current, visible, opts)
		})
		report.RecordTag(want.Name, want.CategoryName, outcome)
		if outcome.Kind == reconcile.OutcomeFailed {
			e.logger.Warn("Tag reconciliation failed",
				zap.String("tag", want.Name),
				zap.String("category", want.CategoryName),
				zap.String("reason", outcome.Reason),
			)
		}
		if err != nil {
			return err
		}
	}

	span.SetAttributes(attribute.Int("created", report.Tags.Created), attribute.Int("failed", report.Tags.Failed))
	return nil
}

func (e *Engine) applyTag(ctx context.Context, gw taxonomy.Gateway, want taxonomy.Tag, current *taxonomy.Tag, categoryVisible bool, opts Options) (reconcile.Outcome, error) {
	plan := PlanTag(want, current, categoryVisible, opts)
	switch plan.Action {
	case ActionCreate:
		if opts.DryRun {
			return reconcile.Created(), nil
		}
		if _, err := gw.CreateTag(ctx, want); err != nil {
			return itemFailure(err)
		}
		return reconcile.Created(), nil
	case ActionUpdate:
		if _, err := gw.UpdateTag(ctx, want.Name, want.CategoryName, plan.Delta); err != nil {
			return itemFailure(err)
		}
		return reconcile.Updated(), nil
	case ActionSkipUnchanged:
		return reconcile.SkippedUnchanged(), nil
	case ActionSkipExists:
		return reconcile.SkippedExists(), nil
	case ActionFail:
		return reconcile.Failed(plan.Reason), nil
	}
	return reconcile.Failed(fmt.Sprintf("unexpected plan %s", plan.Action)), nil
}

func (e *Engine) abort(report *reconcile.Report, span trace.Span, err error) (*reconcile.Report, error) {
	report.Abort(err.Error())
	span.RecordError(err)
	e.logger.Error("Reconciliation aborted", err,
		zap.Any("categories", report.Categories),
		zap.Any("tags", report.Tags),
	)
	return report, err
}

// itemFailure folds a gateway error into a per-item outcome. Errors that
// invalidate the session are also returned so the run can stop.
func itemFailure(err error) (reconcile.Outcome, error) {
	outcome := reconcile.Failed(err.Error())
	if isFatal(err) {
		return outcome, err
	}
	return outcome, nil
}

func isFatal(err error) bool {
	return errors.Is(err, taxonomy.ErrSessionLost) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// guard recovers a panic raised while handling a single item and records
// it as that item's failure.
func guard(fn func() (reconcile.Outcome, error)) (outcome reconcile.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = reconcile.Failed(fmt.Sprintf("unexpected error: %v", r))
			err = nil
		}
	}()
	return fn()
}
