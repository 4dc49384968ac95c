package reconcile

import (
	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
)

type Options struct {
	UpdateExisting bool
	DryRun         bool
	// SimulateDependencies makes a dry run treat simulated categories as
	// live, so tags depending on them plan as Created instead of Failed.
	SimulateDependencies bool
}

type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionSkipUnchanged
	ActionSkipExists
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionSkipUnchanged:
		return "skip-unchanged"
	case ActionSkipExists:
		return "skip-exists"
	case ActionFail:
		return "fail"
	}
	return "unknown"
}

type CategoryPlan struct {
	Action Action
	Delta  taxonomy.CategoryUpdate
}

type TagPlan struct {
	Action Action
	Delta  taxonomy.TagUpdate
	Reason string
}

const reasonCategoryNotFound = "category not found"

// CategoryDelta compares the fields an update may change. Cardinality is
// compared through its canonical string form.
func CategoryDelta(desired, live taxonomy.Category) taxonomy.CategoryUpdate {
	var delta taxonomy.CategoryUpdate
	if desired.Description != live.Description {
		d := desired.Description
		delta.Description = &d
	}
	if desired.Cardinality.String() != live.Cardinality.String() {
		c := desired.Cardinality
		delta.Cardinality = &c
	}
	return delta
}

func TagDelta(desired, live taxonomy.Tag) taxonomy.TagUpdate {
	var delta taxonomy.TagUpdate
	if desired.Description != live.Description {
		d := desired.Description
		delta.Description = &d
	}
	return delta
}

// PlanCategory decides what to do with one desired category given its live
// counterpart (nil when absent). It performs no I/O.
func PlanCategory(desired taxonomy.Category, live *taxonomy.Category, opts Options) CategoryPlan {
	if live == nil {
		return CategoryPlan{Action: ActionCreate}
	}
	if !opts.UpdateExisting || opts.DryRun {
		return CategoryPlan{Action: ActionSkipExists}
	}
	delta := CategoryDelta(desired, *live)
	if delta.IsEmpty() {
		return CategoryPlan{Action: ActionSkipUnchanged}
	}
	return CategoryPlan{Action: ActionUpdate, Delta: delta}
}

// PlanTag decides what to do with one desired tag. categoryVisible reports
// whether the tag's category resolves in the working category set.
func PlanTag(desired taxonomy.Tag, live *taxonomy.Tag, categoryVisible bool, opts Options) TagPlan {
	if live != nil {
		if !opts.UpdateExisting || opts.DryRun {
			return TagPlan{Action: ActionSkipExists}
		}
		delta := TagDelta(desired, *live)
		if delta.IsEmpty() {
			return TagPlan{Action: ActionSkipUnchanged}
		}
		return TagPlan{Action: ActionUpdate, Delta: delta}
	}
	if !categoryVisible {
		return TagPlan{Action: ActionFail, Reason: reasonCategoryNotFound}
	}
	return TagPlan{Action: ActionCreate}
}
