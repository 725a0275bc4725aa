package metadata

import (
	"time"
)

// Patch is a partial update. A nil field leaves that slice untouched; a
// non-nil Deployments (even empty) replaces the deployment list.
type Patch struct {
	Session     *SessionPatch     `json:"evaluationSession,omitempty"`
	Dataset     *DatasetSelection `json:"dataset,omitempty"`
	Deployment  *Deployment       `json:"deployment,omitempty"`
	Deployments []Deployment      `json:"deployments,omitempty"`
	Metrics     *MetricsConfig    `json:"metrics,omitempty"`
	Execution   *Execution        `json:"execution,omitempty"`
}

// SessionPatch carries the session fields a caller may set. LastModified and
// Status are always computed by Merge.
type SessionPatch struct {
	ID          *string    `json:"id,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	CurrentStep *int       `json:"currentStep,omitempty"`
}

// startsSession reports whether the patch writes any wizard selection.
func (p Patch) startsSession() bool {
	return p.Dataset != nil || p.Deployment != nil || p.Deployments != nil || p.Metrics != nil
}

// IsEmpty reports whether the patch touches nothing.
func (p Patch) IsEmpty() bool {
	return p.Session == nil && !p.startsSession() && p.Execution == nil
}

// Merge applies patch on top of current and returns a new record; current is
// not modified. Top-level slices are replaced wholesale except the session,
// which is merged field by field. The session starts (id, createdAt) on the
// first write that touches a selection, lastModified is always stamped, the
// legacy deployment mirrors deployments[0], and the status is re-derived.
func Merge(current *EvaluationMetadata, patch Patch, now time.Time, newID func() string) *EvaluationMetadata {
	var out *EvaluationMetadata
	if current == nil {
		out = Default(now)
	} else {
		out = current.Clone()
	}
	out.normalizeDeployments()

	sess := &out.EvaluationSession
	if sess.ID == "" && patch.startsSession() {
		sess.ID = newID()
		created := now
		sess.CreatedAt = &created
	}

	if p := patch.Session; p != nil {
		if p.ID != nil && *p.ID != "" {
			sess.ID = *p.ID
		}
		if p.CreatedAt != nil {
			sess.CreatedAt = cloneTime(p.CreatedAt)
		}
		if p.CurrentStep != nil && *p.CurrentStep > 0 {
			sess.CurrentStep = *p.CurrentStep
		}
	}

	if patch.Dataset != nil {
		out.Dataset = patch.Dataset.clone()
	}

	switch {
	case patch.Deployments != nil:
		out.Deployments = make([]Deployment, len(patch.Deployments))
		for i := range patch.Deployments {
			out.Deployments[i] = *patch.Deployments[i].clone()
		}
		out.mirrorDeployment()
	case patch.Deployment != nil:
		out.Deployments = []Deployment{*patch.Deployment.clone()}
		out.mirrorDeployment()
	}

	if patch.Metrics != nil {
		m := patch.Metrics.clone()
		m.Categories.Normalize()
		m.TotalSelected = m.Categories.TotalSelected()
		m.SelectedCategory = ""
		if c, ok := m.Categories.SelectedCategory(); ok {
			m.SelectedCategory = c.ID
		}
		out.Metrics = m
	}

	if patch.Execution != nil && !out.Execution.supersedes(patch.Execution) {
		out.Execution = patch.Execution.clone()
	}

	sess.LastModified = now
	sess.Status = out.DeriveStatus()
	return out
}

// normalizeDeployments upgrades records that only carry the legacy field.
func (m *EvaluationMetadata) normalizeDeployments() {
	if len(m.Deployments) == 0 && m.Deployment != nil && m.Deployment.ID != "" {
		m.Deployments = []Deployment{*m.Deployment.clone()}
	}
	m.mirrorDeployment()
}

func (m *EvaluationMetadata) mirrorDeployment() {
	if len(m.Deployments) == 0 {
		m.Deployment = nil
		return
	}
	m.Deployment = m.Deployments[0].clone()
}

// supersedes reports whether e is the finished state of the same run that
// next still describes as queued or running. A late progress write must not
// revert a finished run.
func (e *Execution) supersedes(next *Execution) bool {
	if e == nil || e.RunID == "" || e.RunID != next.RunID {
		return false
	}
	return e.Finished() && !next.Finished()
}
