package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type TaskState string

const (
	StatePending    TaskState = "P"
	StateInProgress TaskState = "N"
	StateCompleted  TaskState = "C"
)

func (s TaskState) Valid() bool {
	switch s {
	case StatePending, StateInProgress, StateCompleted:
		return true
	}
	return false
}

func (s *TaskState) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	st := TaskState(v)
	if !st.Valid() {
		return fmt.Errorf("unknown task state %q", v)
	}
	*s = st
	return nil
}

type Priority string

const (
	PriorityHigh   Priority = "A"
	PriorityNormal Priority = "N"
	PriorityLow    Priority = "B"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

type RepetitionType string

const (
	RepeatDaily   RepetitionType = "diaria"
	RepeatWeekly  RepetitionType = "semanal"
	RepeatMonthly RepetitionType = "mensual"
	RepeatYearly  RepetitionType = "anual"
	RepeatCustom  RepetitionType = "personalizada"
)

type Repetition struct {
	Type     RepetitionType `json:"tipo" validate:"required,oneof=diaria semanal mensual anual personalizada"`
	Interval int            `json:"intervalo" validate:"min=1"`
}

type Task struct {
	ID          int         `json:"idTarea" db:"id"`
	ListID      *int        `json:"idLista" db:"list_id"`
	CreatorID   int         `json:"idUsuario" db:"creator_id"`
	Name        string      `json:"nombre" db:"name"`
	Description string      `json:"descripcion,omitempty" db:"description"`
	State       TaskState   `json:"estado" db:"state"`
	Priority    Priority    `json:"prioridad" db:"priority"`
	DueDate     *time.Time  `json:"fechaVencimiento" db:"due_date"`
	MyDay       bool        `json:"miDia" db:"my_day"`
	AssigneeID  *int        `json:"idUsuarioAsignado" db:"assignee_id"`
	Important   bool        `json:"importante" db:"important"`
	Steps       []string    `json:"pasos" db:"steps"`
	Repetition  *Repetition `json:"repeticion" db:"repetition"`
	CreatedAt   time.Time   `json:"fechaCreacion" db:"created_at"`
	UpdatedAt   time.Time   `json:"fechaActualizacion" db:"updated_at"`
}

// Overdue reports whether an unfinished task is past its due date, comparing
// calendar days in now's location.
func (t *Task) Overdue(now time.Time) bool {
	if t.DueDate == nil || t.State == StateCompleted {
		return false
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return t.DueDate.In(now.Location()).Before(today)
}

type CreateTaskRequest struct {
	ListID      *int        `json:"idLista"`
	Name        string      `json:"nombre" validate:"required,min=1,max=255"`
	Description string      `json:"descripcion" validate:"max=2000"`
	State       TaskState   `json:"estado" validate:"omitempty,oneof=P N C"`
	Priority    Priority    `json:"prioridad" validate:"omitempty,oneof=A N B"`
	DueDate     *time.Time  `json:"fechaVencimiento"`
	MyDay       bool        `json:"miDia"`
	Important   bool        `json:"importante"`
	Steps       []string    `json:"pasos" validate:"dive,max=500"`
	Repetition  *Repetition `json:"repeticion"`
}

type UpdateTaskRequest struct {
	Name        *string     `json:"nombre,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string     `json:"descripcion,omitempty" validate:"omitempty,max=2000"`
	Priority    *Priority   `json:"prioridad,omitempty" validate:"omitempty,oneof=A N B"`
	DueDate     *time.Time  `json:"fechaVencimiento,omitempty"`
	Important   *bool       `json:"importante,omitempty"`
	Steps       []string    `json:"pasos,omitempty" validate:"omitempty,dive,max=500"`
	Repetition  *Repetition `json:"repeticion,omitempty"`
}

type ChangeStateRequest struct {
	State TaskState `json:"estado" validate:"required,oneof=P N C"`
}

type MyDayRequest struct {
	MyDay bool `json:"miDia"`
}

type AssignRequest struct {
	AssigneeID int `json:"idUsuarioAsignado" validate:"required,min=1"`
}
