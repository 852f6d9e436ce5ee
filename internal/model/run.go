package model

import "time"

// TargetStatus is the terminal state of one target's pagination run.
type TargetStatus string

const (
	// TargetRunning is the transient state while pages are being fetched.
	TargetRunning TargetStatus = "running"
	// TargetExhausted means pagination completed normally (no more pages).
	TargetExhausted TargetStatus = "exhausted"
	// TargetFailed means the target stopped early on a non-retryable error,
	// a malformed first page, or the loop-safety ceiling. Records collected
	// before the failure are retained.
	TargetFailed TargetStatus = "failed"
)

// SkipReason classifies why an entry or nested item was dropped during
// normalization. Skips are diagnostics, never errors: they are counted and
// reported but never abort a target.
type SkipReason string

const (
	SkipMalformedRegion   SkipReason = "malformed_region_stat"
	SkipMalformedSurface  SkipReason = "malformed_surface_stat"
	SkipEmptyVariation    SkipReason = "empty_variation"
	SkipDuplicateCreative SkipReason = "duplicate_creative"
	SkipMalformedEntry    SkipReason = "malformed_entry"
)

// MissingRequiredField returns the skip reason for a missing top-level
// required field.
func MissingRequiredField(field string) SkipReason {
	return SkipReason("missing_required_field:" + field)
}

// Flag marks a tolerated upstream anomaly: the data was kept (possibly with
// a default substituted) but the condition is surfaced in diagnostics.
type Flag string

const (
	FlagUnknownFormat      Flag = "unknown_format"
	FlagUnmappedBucket     Flag = "unmapped_impression_bucket"
	FlagClampedImpressions Flag = "clamped_impressions"
	FlagMissingCursor      Flag = "missing_cursor_defensive_stop"
	FlagMaxPageCeiling     Flag = "max_page_ceiling"
	FlagCursorCycle        Flag = "cursor_cycle"
	FlagMalformedPage      Flag = "malformed_page"
)

// Diagnostics accumulates per-target extraction counters. It is owned by a
// single pagination driver and must not be shared across goroutines.
type Diagnostics struct {
	RecordsEmitted int                `json:"recordsEmitted"`
	PagesFetched   int                `json:"pagesFetched"`
	Skips          map[SkipReason]int `json:"recordsSkipped,omitempty"`
	Flags          map[Flag]int       `json:"flags,omitempty"`
}

// NewDiagnostics returns an empty diagnostics accumulator.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{
		Skips: make(map[SkipReason]int),
		Flags: make(map[Flag]int),
	}
}

// Skip counts one skipped entry or nested item.
func (d *Diagnostics) Skip(reason SkipReason) {
	if d.Skips == nil {
		d.Skips = make(map[SkipReason]int)
	}
	d.Skips[reason]++
}

// Flag counts one tolerated anomaly.
func (d *Diagnostics) Flag(flag Flag) {
	if d.Flags == nil {
		d.Flags = make(map[Flag]int)
	}
	d.Flags[flag]++
}

// SkipCount returns the total number of skips across all reasons.
func (d *Diagnostics) SkipCount() int {
	var n int
	for _, c := range d.Skips {
		n += c
	}
	return n
}

// Merge folds other's counters into d.
func (d *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	d.RecordsEmitted += other.RecordsEmitted
	d.PagesFetched += other.PagesFetched
	for reason, count := range other.Skips {
		if d.Skips == nil {
			d.Skips = make(map[SkipReason]int)
		}
		d.Skips[reason] += count
	}
	for flag, count := range other.Flags {
		if d.Flags == nil {
			d.Flags = make(map[Flag]int)
		}
		d.Flags[flag] += count
	}
}

// TargetResult is the outcome of one target's pagination run: the records
// collected in discovery order plus status and diagnostics. Present even for
// failed targets, carrying whatever was collected before the failure.
type TargetResult struct {
	Target      TargetSpec   `json:"target"`
	Status      TargetStatus `json:"status"`
	Records     []AdRecord   `json:"records,omitempty"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// RunStatus is the overall state of a scrape run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial" // completed with failed targets
	RunStatusFailed   RunStatus = "failed"  // coordinator-level fault
)

// Run is one scrape invocation across a set of targets, as persisted in the
// run log.
type Run struct {
	ID            string       `json:"id"`
	Status        RunStatus    `json:"status"`
	Targets       int          `json:"targets"`
	FailedTargets []string     `json:"failed_targets,omitempty"`
	Records       int          `json:"records"`
	Diagnostics   *Diagnostics `json:"diagnostics,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    *time.Time   `json:"finished_at,omitempty"`
}
