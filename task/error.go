package task

import (
	"errors"
	"fmt"
)

// ProcessError is returned when a task fails to process a message. The message is
// not acknowledged and the instance stops.
type ProcessError struct {
	Cause     error
	Task      string
	Partition int32
	Topic     string
	Offset    int64
	Key       []byte
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf(
		"task %s partition %d: process %s@%d: %v", e.Task, e.Partition, e.Topic, e.Offset, e.Cause,
	)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

func NewProcessError(cause error, task string, partition int32, msg SourceMessage) error {
	return &ProcessError{
		Cause:     cause,
		Task:      task,
		Partition: partition,
		Topic:     msg.SourceTopic,
		Offset:    msg.Offset,
		Key:       msg.Key,
	}
}

func AsProcessError(err error) (*ProcessError, bool) {
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe, true
	}

	return nil, false
}

// WindowError wraps failures from Window and from publishing its results.
type WindowError struct {
	Cause     error
	Task      string
	Partition int32
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("task %s partition %d: window: %v", e.Task, e.Partition, e.Cause)
}

func (e *WindowError) Unwrap() error {
	return e.Cause
}

func NewWindowError(cause error, task string, partition int32) error {
	return &WindowError{Cause: cause, Task: task, Partition: partition}
}

func AsWindowError(err error) (*WindowError, bool) {
	var we *WindowError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// SerdeError wraps payloads that are not valid JSON.
type SerdeError struct {
	Cause  error
	Topic  string
	Offset int64
}

func (e *SerdeError) Error() string {
	return fmt.Sprintf("decode %s@%d: %v", e.Topic, e.Offset, e.Cause)
}

func (e *SerdeError) Unwrap() error {
	return e.Cause
}

func NewSerdeError(cause error, topic string, offset int64) error {
	return &SerdeError{Cause: cause, Topic: topic, Offset: offset}
}

func AsSerdeError(err error) (*SerdeError, bool) {
	var de *SerdeError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// ProductionError wraps errors that occur while publishing a result.
type ProductionError struct {
	Cause error
	Topic string
}

func (e *ProductionError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Topic, e.Cause)
}

func (e *ProductionError) Unwrap() error {
	return e.Cause
}

func NewProductionError(cause error, topic string) error {
	return &ProductionError{Cause: cause, Topic: topic}
}

func AsProductionError(err error) (*ProductionError, bool) {
	var pe *ProductionError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
