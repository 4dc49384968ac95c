package reconcile

import (
	"fmt"
	"strings"
)

type OutcomeKind int

const (
	OutcomeCreated OutcomeKind = iota
	OutcomeUpdated
	OutcomeSkippedUnchanged
	OutcomeSkippedExists
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreated:
		return "Created"
	case OutcomeUpdated:
		return "Updated"
	case OutcomeSkippedUnchanged:
		return "SkippedUnchanged"
	case OutcomeSkippedExists:
		return "SkippedExists"
	case OutcomeFailed:
		return "Failed"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *OutcomeKind) UnmarshalText(b []byte) error {
	for _, candidate := range []OutcomeKind{OutcomeCreated, OutcomeUpdated, OutcomeSkippedUnchanged, OutcomeSkippedExists, OutcomeFailed} {
		if candidate.String() == string(b) {
			*k = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", string(b))
}

type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func Created() Outcome          { return Outcome{Kind: OutcomeCreated} }
func Updated() Outcome          { return Outcome{Kind: OutcomeUpdated} }
func SkippedUnchanged() Outcome { return Outcome{Kind: OutcomeSkippedUnchanged} }
func SkippedExists() Outcome    { return Outcome{Kind: OutcomeSkippedExists} }

func Failed(reason string) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason}
}

func (o Outcome) String() string {
	if o.Kind == OutcomeFailed && o.Reason != "" {
		return fmt.Sprintf("Failed(%s)", o.Reason)
	}
	return o.Kind.String()
}

type EntityKind int

const (
	EntityCategory EntityKind = iota
	EntityTag
)

func (e EntityKind) String() string {
	switch e {
	case EntityCategory:
		return "category"
	case EntityTag:
		return "tag"
	}
	return fmt.Sprintf("EntityKind(%d)", int(e))
}

func (e EntityKind) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *EntityKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "category":
		*e = EntityCategory
	case "tag":
		*e = EntityTag
	default:
		return fmt.Errorf("unknown entity kind %q", string(b))
	}
	return nil
}

type Counts struct {
	Created          int `json:"created"`
	Updated          int `json:"updated"`
	SkippedUnchanged int `json:"skipped_unchanged"`
	SkippedExists    int `json:"skipped_exists"`
	Failed           int `json:"failed"`
}

func (c *Counts) add(kind OutcomeKind) {
	switch kind {
	case OutcomeCreated:
		c.Created++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeSkippedUnchanged:
		c.SkippedUnchanged++
	case OutcomeSkippedExists:
		c.SkippedExists++
	case OutcomeFailed:
		c.Failed++
	}
}

func (c Counts) Total() int {
	return c.Created + c.Updated + c.SkippedUnchanged + c.SkippedExists + c.Failed
}

type ItemResult struct {
	Entity       EntityKind  `json:"entity"`
	Name         string      `json:"name"`
	CategoryName string      `json:"category_name,omitempty"`
	Outcome      OutcomeKind `json:"outcome"`
	Reason       string      `json:"reason,omitempty"`
}

// Report aggregates per-item outcomes. A report is always produced, even
// when the run aborts part way through a phase.
type Report struct {
	DryRun      bool         `json:"dry_run"`
	Categories  Counts       `json:"categories"`
	Tags        Counts       `json:"tags"`
	Items       []ItemResult `json:"items"`
	Aborted     bool         `json:"aborted"`
	AbortReason string       `json:"abort_reason,omitempty"`
}

const (
	ExitOK           = 0
	ExitItemFailures = 1
	ExitFatal        = 2
)

func NewReport(dryRun bool) *Report {
	return &Report{DryRun: dryRun, Items: []ItemResult{}}
}

func (r *Report) RecordCategory(name string, o Outcome) {
	r.Categories.add(o.Kind)
	r.Items = append(r.Items, ItemResult{Entity: EntityCategory, Name: name, Outcome: o.Kind, Reason: o.Reason})
}

func (r *Report) RecordTag(name, categoryName string, o Outcome) {
	r.Tags.add(o.Kind)
	r.Items = append(r.Items, ItemResult{Entity: EntityTag, Name: name, CategoryName: categoryName, Outcome: o.Kind, Reason: o.Reason})
}

func (r *Report) Abort(reason string) {
	r.Aborted = true
	r.AbortReason = reason
}

func (r *Report) Failures() int {
	return r.Categories.Failed + r.Tags.Failed
}

func (r *Report) HasFailures() bool {
	return r.Failures() > 0
}

func (r *Report) ExitCode() int {
	switch {
	case r.Aborted:
		return ExitFatal
	case r.HasFailures():
		return ExitItemFailures
	}
	return ExitOK
}

func (r *Report) Summary() string {
	var b strings.Builder
	mode := "live"
	if r.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(&b, "Reconciliation summary (%s)\n", mode)
	for _, row := range []struct {
		label string
		c     Counts
	}{{"Categories", r.Categories}, {"Tags", r.Tags}} {
		fmt.Fprintf(&b, "  %-10s created=%d updated=%d unchanged=%d exists=%d failed=%d\n",
			row.label, row.c.Created, row.c.Updated, row.c.SkippedUnchanged, row.c.SkippedExists, row.c.Failed)
	}
	for _, item := range r.Items {
		if item.Outcome != OutcomeFailed {
			continue
		}
		if item.Entity == EntityTag {
			fmt.Fprintf(&b, "  failed tag %s/%s: %s\n", item.CategoryName, item.Name, item.Reason)
		} else {
			fmt.Fprintf(&b, "  failed category %s: %s\n", item.Name, item.Reason)
		}
	}
	if r.Aborted {
		fmt.Fprintf(&b, "  run aborted: %s\n", r.AbortReason)
	}
	return b.String()
}
