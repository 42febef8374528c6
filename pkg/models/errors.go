package models

import "errors"

var (
	// ErrFlowWithoutTrigger is returned when a flow has no entry node.
	ErrFlowWithoutTrigger = errors.New("flow has no trigger node")

	// ErrDuplicateNodeID is returned when two nodes share an id.
	ErrDuplicateNodeID = errors.New("duplicate node id in flow")

	// ErrDanglingEdge is returned when an edge references a missing node.
	ErrDanglingEdge = errors.New("edge references unknown node")

	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("invalid schedule configuration")

	// ErrInvalidException is returned when exception validation fails.
	ErrInvalidException = errors.New("invalid exception configuration")
)
