// Package screen defines the screening-run aggregate: runs, per-compound
// score records, and the terminal ranking artifact.
package screen

import (
	"time"

	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

// RunStatus is the lifecycle state of a screening run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsValid reports whether s is a known run status.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is one execution of the screening pipeline over a feature profile.
type Run struct {
	ID     common.ID `json:"id"`
	Screen string    `json:"screen"`

	// ProfileObject is the object-storage key of the input profile CSV.
	ProfileObject string `json:"profile_object"`

	// ReferenceGroup and ControlGroup are the metadata group labels used
	// for the signature partition; CompoundColumn and GroupColumn name
	// the metadata columns they live in.
	GroupColumn    string `json:"group_column"`
	CompoundColumn string `json:"compound_column"`
	ReferenceGroup string `json:"reference_group"`
	ControlGroup   string `json:"control_group"`

	// ParamsJSON is the snapshot of the pipeline parameters the run was
	// executed with, serialised at submission time so reruns are exact.
	ParamsJSON []byte `json:"params_json,omitempty"`

	Status    RunStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Transition moves the run to next, enforcing the pending → running →
// completed|failed lifecycle.
func (r *Run) Transition(next RunStatus, now time.Time) error {
	if !next.IsValid() {
		return errors.Newf(errors.ErrCodeRunStateInvalid, "unknown status %q", next)
	}
	ok := false
	switch r.Status {
	case RunStatusPending:
		ok = next == RunStatusRunning || next == RunStatusFailed
	case RunStatusRunning:
		ok = next.IsTerminal()
	}
	if !ok {
		return errors.Newf(errors.ErrCodeRunStateInvalid, "cannot transition %s → %s", r.Status, next)
	}
	r.Status = next
	switch next {
	case RunStatusRunning:
		r.StartedAt = now
	case RunStatusCompleted, RunStatusFailed:
		r.EndedAt = now
	}
	return nil
}

// ClusterRef records one retained cluster that contributed to a score,
// keyed by its population so labels from unrelated populations can never
// collide.
type ClusterRef struct {
	Population common.PopulationID `json:"population"`
	Label      int                 `json:"label"`
	Cells      int                 `json:"cells"`
}

// CompoundScore is the per-compound score record: the on/off pair plus the
// provenance of the clusters that produced it. Records are immutable after
// creation; rank assignment happens on copies held by the Ranking.
type CompoundScore struct {
	RunID    common.ID         `json:"run_id"`
	Compound common.CompoundID `json:"compound"`

	OnScore  float64 `json:"on_score"`
	OffScore float64 `json:"off_score"`

	// TreatmentClusters and ControlClusters record which retained
	// clusters contributed to the divergences.
	TreatmentClusters []ClusterRef `json:"treatment_clusters,omitempty"`
	ControlClusters   []ClusterRef `json:"control_clusters,omitempty"`

	// Excluded marks compounds dropped from the ranking; Reason records
	// the degenerate-input condition that caused the exclusion.
	Excluded bool   `json:"excluded,omitempty"`
	Reason   string `json:"reason,omitempty"`

	// Rank is 1-based within the run's ranking; zero for excluded
	// compounds.
	Rank int `json:"rank,omitempty"`
}

// Ranking is the ordered terminal artifact of a run. Entries are sorted
// best-first; excluded compounds follow the ranked block with Rank 0.
type Ranking struct {
	RunID    common.ID       `json:"run_id"`
	Strategy string          `json:"strategy"`
	Entries  []CompoundScore `json:"entries"`
}

// Hits returns the top n ranked entries (excluded compounds never count).
func (r *Ranking) Hits(n int) []CompoundScore {
	var out []CompoundScore
	for _, e := range r.Entries {
		if e.Excluded {
			continue
		}
		out = append(out, e)
		if len(out) == n {
			break
		}
	}
	return out
}
