package model

// Transition is the outcome of a state-machine-guarded mutation. Guarded
// mutators never fail for being called in the wrong state; they report NoOp
// and leave the aggregate unchanged.
type Transition int

const (
	TransitionNoOp Transition = iota
	TransitionApplied
)

// Applied reports whether the mutation took effect.
func (t Transition) Applied() bool {
	return t == TransitionApplied
}

// PositionStatus is the closed status set of an AMM position.
type PositionStatus string

const (
	PositionPending PositionStatus = "PENDING"
	PositionOpen    PositionStatus = "OPEN"
	PositionClosed  PositionStatus = "CLOSED"
	PositionError   PositionStatus = "ERROR"
)

func (s PositionStatus) Valid() bool {
	switch s {
	case PositionPending, PositionOpen, PositionClosed, PositionError:
		return true
	}
	return false
}

// OrderStatus is the closed status set of an AMM order.
type OrderStatus string

const (
	OrderProcessing OrderStatus = "PROCESSING"
	OrderSuccess    OrderStatus = "SUCCESS"
	OrderError      OrderStatus = "ERROR"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderProcessing, OrderSuccess, OrderError:
		return true
	}
	return false
}

// LockStatus is the closed status set of a balance lock.
type LockStatus string

const (
	LockLocked   LockStatus = "LOCKED"
	LockReleased LockStatus = "RELEASED"
)

func (s LockStatus) Valid() bool {
	switch s {
	case LockLocked, LockReleased:
		return true
	}
	return false
}
