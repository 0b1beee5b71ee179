package task

import (
	"context"
	"time"
)

// Task is the capability a runtime drives. Process is never called concurrently for
// the same instance; every instance gets its own Task value from its Factory.
type Task interface {
	SourceTopics() []string
	Process(ctx context.Context, msg SourceMessage, state any) ([]Result, error)
}

// ResultTopicsDeclarer lists the topics a task may publish to. Tasks without it may
// not publish at all.
type ResultTopicsDeclarer interface {
	ResultTopics() []string
}

// Initializer receives the merged configuration once, before any reader starts.
type Initializer interface {
	Init(config map[string]any) error
}

// Windowed tasks get Window called every WindowInterval. Offsets of messages
// processed inside a window only become commit eligible once the window fired.
type Windowed interface {
	WindowInterval() time.Duration
	Window(ctx context.Context, state any) ([]Result, error)
}

// StateFactory provides the initial state. It must return a pointer or a
// proto.Message so committed state can be loaded back into it.
type StateFactory interface {
	NewState() any
}

// Result is one message a task wants published.
type Result struct {
	Topic string
	// Key is required; results with a nil key are dropped.
	Key   []byte
	Value any
}

func NewResult(topic, key string, value any) Result {
	return Result{Topic: topic, Key: []byte(key), Value: value}
}

func ResultTopics(t Task) []string {
	if d, ok := t.(ResultTopicsDeclarer); ok {
		return d.ResultTopics()
	}
	return nil
}

// WindowInterval returns the window interval of t, or false if t is not windowed.
func WindowInterval(t Task) (time.Duration, bool) {
	w, ok := t.(Windowed)
	if !ok || w.WindowInterval() <= 0 {
		return 0, false
	}
	return w.WindowInterval(), true
}

func NewState(t Task) any {
	if f, ok := t.(StateFactory); ok {
		return f.NewState()
	}
	return nil
}
