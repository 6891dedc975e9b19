package lifecycle

import (
	"fmt"
	"slices"

	"wheres-my-laundry/pkg/models"
)

// sequences lists every status a method passes through, in order.
var sequences = map[models.Method][]models.Status{
	models.MethodDropoff: {
		models.StatusInProgress,
		models.StatusCompleted,
	},
	models.MethodPickup: {
		models.StatusWaitingForPickup,
		models.StatusCollected,
		models.StatusInProgress,
		models.StatusReadyForDelivery,
		models.StatusCompleted,
	},
	models.MethodDelivery: {
		models.StatusInProgress,
		models.StatusReadyForDelivery,
		models.StatusOutForDelivery,
		models.StatusCompleted,
	},
}

// courierStatuses are written by the external driver workflow, never by Advance.
var courierStatuses = []models.Status{
	models.StatusWaitingForPickup,
	models.StatusCollected,
}

// State is a status bound to the method whose sequence defines it.
// The zero value is invalid; use NewState.
type State struct {
	method models.Method
	status models.Status
}

func NewState(method models.Method, status models.Status) (State, error) {
	seq, ok := sequences[method]
	if !ok {
		return State{}, fmt.Errorf("%w: unknown method %q", ErrPrecondition, method)
	}
	if !slices.Contains(seq, status) {
		return State{}, fmt.Errorf("%w: status %q is not part of the %s sequence", ErrPrecondition, status, method)
	}
	return State{method: method, status: status}, nil
}

func (s State) Method() models.Method { return s.method }
func (s State) Status() models.Status { return s.status }

func (s State) Terminal() bool {
	return s.status == models.StatusCompleted
}

// Advance returns the next state in the method's sequence. The second result is
// false when s is terminal or waiting on the courier; the state is then returned
// unchanged so a repeated request stays harmless.
func (s State) Advance() (State, bool) {
	if s.Terminal() || slices.Contains(courierStatuses, s.status) {
		return s, false
	}
	seq := sequences[s.method]
	idx := slices.Index(seq, s.status)
	if idx < 0 || idx+1 >= len(seq) {
		return s, false
	}
	return State{method: s.method, status: seq[idx+1]}, true
}

// WeighingSource is the status a pickup placeholder must hold before it can be
// weighed. Other methods create their item at weighing time.
func WeighingSource(method models.Method) (models.Status, bool) {
	if method == models.MethodPickup {
		return models.StatusCollected, true
	}
	return "", false
}

// Stage names the bucket a record belongs to.
type Stage int

const (
	StageIntake Stage = iota
	StageActive
	StageArchived
)

func (s Stage) String() string {
	switch s {
	case StageIntake:
		return "intake"
	case StageActive:
		return "active"
	case StageArchived:
		return "archived"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// StageOf derives the bucket of an order from its item, if any.
func StageOf(item *models.OrderItem) Stage {
	if item == nil || !item.Weighed() {
		return StageIntake
	}
	switch item.Status {
	case models.StatusCompleted:
		return StageArchived
	case models.StatusWaitingForPickup, models.StatusCollected:
		return StageIntake
	}
	return StageActive
}

func isActive(status models.Status) bool {
	return slices.Contains(models.ActiveStatuses, status)
}
