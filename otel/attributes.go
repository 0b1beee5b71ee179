package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrTask       = attribute.Key("task.name")
	AttrPartition  = attribute.Key("task.partition")
	AttrTopic      = attribute.Key("messaging.destination.name")
	AttrOffset     = attribute.Key("messaging.kafka.offset")
	AttrStatus     = attribute.Key("task.status")
	AttrErrorPhase = attribute.Key("task.error.phase")
	AttrCommitKind = attribute.Key("task.commit.kind")
)

// Status values
const (
	StatusSuccess = "success"
	StatusDropped = "dropped"
	StatusFailed  = "failed"
)

// Error phase values
const (
	PhaseProcess  = "process"
	PhaseWindow   = "window"
	PhaseDispatch = "dispatch"
	PhaseCommit   = "commit"
	PhaseRead     = "read"
	PhaseStartup  = "startup"
)

// Commit kinds
const (
	CommitOffsets = "offsets"
	CommitState   = "state"
)
