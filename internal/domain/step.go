package domain

import (
	"encoding/json"
	"time"
)

// StepStatus is the status of one Step inside an Order.
type StepStatus string

const (
	StepPending          StepStatus = "pending"
	StepInProgress       StepStatus = "in_progress"
	StepAwaitingApproval StepStatus = "awaiting_approval"
	StepApproved         StepStatus = "approved"
	StepRejected         StepStatus = "rejected"
	StepCompleted        StepStatus = "completed"
)

var stepStatuses = []StepStatus{
	StepPending, StepInProgress, StepAwaitingApproval, StepApproved, StepRejected, StepCompleted,
}

// Valid reports whether s is a known step status.
func (s StepStatus) Valid() bool {
	for _, known := range stepStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Started reports whether work on the step has begun.
func (s StepStatus) Started() bool {
	return s != StepPending && s != ""
}

// DocumentsKey is the step_data sub-map read by the approval gate.
const DocumentsKey = "documentos"

// StepData is the opaque, template-shaped payload of a Step.
type StepData map[string]any

// Clone returns a shallow copy with the documents sub-map copied too.
func (d StepData) Clone() StepData {
	out := make(StepData, len(d))
	for k, v := range d {
		out[k] = v
	}
	if docs, ok := d[DocumentsKey].(map[string]any); ok {
		cp := make(map[string]any, len(docs))
		for k, v := range docs {
			cp[k] = v
		}
		out[DocumentsKey] = cp
	}
	return out
}

// Documents returns the documents sub-map, or nil when absent or malformed.
func (d StepData) Documents() map[string]any {
	docs, _ := d[DocumentsKey].(map[string]any)
	return docs
}

// Merge overlays payload on a copy of d. Top-level keys are replaced; the
// documents sub-map is merged key by key so evidence can be attached
// incrementally.
func (d StepData) Merge(payload StepData) StepData {
	out := d.Clone()
	for k, v := range payload {
		if k == DocumentsKey {
			incoming, ok := v.(map[string]any)
			if !ok {
				out[k] = v
				continue
			}
			docs := out.Documents()
			if docs == nil {
				docs = make(map[string]any, len(incoming))
			}
			for dk, dv := range incoming {
				docs[dk] = dv
			}
			out[DocumentsKey] = docs
			continue
		}
		out[k] = v
	}
	return out
}

// MarshalJSON keeps nil data as an empty object on the wire.
func (d StepData) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(d))
}

// StepTransition is one entry of a step's history.
type StepTransition struct {
	From    StepStatus `json:"from"`
	To      StepStatus `json:"to"`
	Actor   string     `json:"actor"`
	Comment string     `json:"comment,omitempty"`
	At      time.Time  `json:"at"`
}

// Step is one stage of an Order's template.
type Step struct {
	ID            string           `json:"id"`
	OrderID       string           `json:"order_id"`
	Ordem         int              `json:"ordem"`
	Name          string           `json:"name"`
	TemplateKey   string           `json:"template_key"`
	Status        StepStatus       `json:"status"`
	Data          StepData         `json:"step_data"`
	ResponsibleID string           `json:"responsible_id,omitempty"`
	ApproverID    string           `json:"approver_id,omitempty"`
	Comment       string           `json:"comment,omitempty"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	DueAt         *time.Time       `json:"due_at,omitempty"`
	History       []StepTransition `json:"history"`
	Version       int64            `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// StepPatch is the result of one state-machine transition, applied by the
// store under a version guard. Append holds history entries to add.
type StepPatch struct {
	Status        *StepStatus
	Data          StepData
	ResponsibleID *string
	ApproverID    *string
	Comment       *string
	StartedAt     *time.Time
	CompletedAt   *time.Time
	DueAt         *time.Time
	Append        []StepTransition
}

// Apply returns a copy of s with the patch applied and the version bumped.
func (p StepPatch) Apply(s Step, now time.Time) Step {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Data != nil {
		s.Data = p.Data.Clone()
	}
	if p.ResponsibleID != nil {
		s.ResponsibleID = *p.ResponsibleID
	}
	if p.ApproverID != nil {
		s.ApproverID = *p.ApproverID
	}
	if p.Comment != nil {
		s.Comment = *p.Comment
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		s.StartedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		s.CompletedAt = &t
	}
	if p.DueAt != nil {
		t := *p.DueAt
		s.DueAt = &t
	}
	if len(p.Append) > 0 {
		hist := make([]StepTransition, 0, len(s.History)+len(p.Append))
		hist = append(hist, s.History...)
		s.History = append(hist, p.Append...)
	}
	s.Version++
	s.UpdatedAt = now
	return s
}

// FindByOrdem returns the step with the given ordem, or nil.
func FindByOrdem(steps []Step, ordem int) *Step {
	for i := range steps {
		if steps[i].Ordem == ordem {
			return &steps[i]
		}
	}
	return nil
}
