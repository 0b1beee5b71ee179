//go:build unit

package kafka

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kerr"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"plain io error", errors.New("connection refused"), false},
		{"retriable protocol error", fmt.Errorf("fetch: %w", kerr.NotLeaderForPartition), false},
		{"non-retriable protocol error", fmt.Errorf("fetch: %w", kerr.TopicAuthorizationFailed), true},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()

				err := classify(tt.err)
				require.Equal(t, tt.fatal, IsFatal(err))
				if tt.err != nil {
					require.ErrorIs(t, err, tt.err)
				}
			},
		)
	}
}
