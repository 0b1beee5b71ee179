package storage

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("blob not found")

// Backend persists opaque blobs by name. Save must be atomic: after a crash a blob
// holds either the previous or the new content, never a mix.
type Backend interface {
	Load(name string) ([]byte, error)
	Save(name string, data []byte) error
	Close() error
}

// InstanceSeparator joins task name and partition in blob names. Task names must not
// contain it, so every (task, partition) pair maps to its own blobs.
const InstanceSeparator = "@"

// Name builds the blob name for one kind of data owned by a task instance.
func Name(task string, partition int32, kind string) string {
	return fmt.Sprintf("%s%s%d.%s", task, InstanceSeparator, partition, kind)
}
