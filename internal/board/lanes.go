package board

import (
	"time"

	"taskeer/internal/models"
)

type Lane string

const (
	LanePending    Lane = "pendientes"
	LaneInProgress Lane = "en-progreso"
	LaneCompleted  Lane = "completadas"
	LaneMyDay      Lane = "mi-dia"
	LaneOverdue    Lane = "vencidas"
	LaneImportant  Lane = "importantes"
)

// StatusLanes are the lanes a task can be dragged between.
var StatusLanes = []Lane{LanePending, LaneInProgress, LaneCompleted}

var allLanes = []Lane{LanePending, LaneInProgress, LaneCompleted, LaneMyDay, LaneOverdue, LaneImportant}

// State returns the task state a status lane stands for.
func (l Lane) State() (models.TaskState, bool) {
	switch l {
	case LanePending:
		return models.StatePending, true
	case LaneInProgress:
		return models.StateInProgress, true
	case LaneCompleted:
		return models.StateCompleted, true
	}
	return "", false
}

func laneForState(s models.TaskState) Lane {
	switch s {
	case models.StateInProgress:
		return LaneInProgress
	case models.StateCompleted:
		return LaneCompleted
	}
	return LanePending
}

// redistribute derives every lane from the canonical order in one pass.
func redistribute(tasks []models.Task, now time.Time) map[Lane][]int {
	lanes := make(map[Lane][]int, len(allLanes))
	for _, l := range allLanes {
		lanes[l] = []int{}
	}
	for i := range tasks {
		t := &tasks[i]
		lanes[laneForState(t.State)] = append(lanes[laneForState(t.State)], t.ID)
		if t.State == models.StateCompleted {
			continue
		}
		if t.MyDay {
			lanes[LaneMyDay] = append(lanes[LaneMyDay], t.ID)
		}
		if t.Overdue(now) {
			lanes[LaneOverdue] = append(lanes[LaneOverdue], t.ID)
		}
		if t.Important {
			lanes[LaneImportant] = append(lanes[LaneImportant], t.ID)
		}
	}
	return lanes
}
