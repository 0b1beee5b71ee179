//go:build unit

package offsetstore_test

import (
	"errors"
	"testing"

	"github.com/hugolhafner/go-tasks/logger"
	mocklogger "github.com/hugolhafner/go-tasks/logger/mock"
	"github.com/hugolhafner/go-tasks/offsetstore"
	"github.com/hugolhafner/go-tasks/storage"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T, backend storage.Backend) *offsetstore.Store {
	t.Helper()

	s, err := offsetstore.Open(backend, "clicks-0.offsets", logger.NewNoopLogger())
	require.NoError(t, err)
	return s
}

func TestStore_GetUnknownReturnsStart(t *testing.T) {
	t.Parallel()

	s := open(t, storage.NewMemoryBackend())
	require.Equal(t, offsetstore.Start, s.Get("clicks"))
	require.False(t, s.IsModified())
}

func TestStore_SetIsMonotonic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sets    []int64
		want    int64
		results []bool
	}{
		{"increasing", []int64{1, 2, 5}, 5, []bool{true, true, true}},
		{"equal is allowed", []int64{3, 3}, 3, []bool{true, true}},
		{"regression ignored", []int64{10, 4, 11, 9}, 11, []bool{true, false, true, false}},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()

				s := open(t, storage.NewMemoryBackend())
				for i, p := range tt.sets {
					require.Equal(t, tt.results[i], s.Set("clicks", p), "set #%d (%d)", i, p)
				}
				require.Equal(t, tt.want, s.Get("clicks"))
			},
		)
	}
}

func TestStore_ForceSetAlwaysWinsAndWarns(t *testing.T) {
	t.Parallel()

	l := mocklogger.New()
	s, err := offsetstore.Open(storage.NewMemoryBackend(), "clicks-0.offsets", l)
	require.NoError(t, err)

	s.Set("clicks", 100)
	s.ForceSet("clicks", 60)

	require.Equal(t, int64(60), s.Get("clicks"))
	require.True(t, s.IsModified())
	require.Equal(t, int64(60), s.Committable()["clicks"])
	l.AssertCalledWithLevelAndMessage(t, logger.WarnLevel, "Force setting offset")
}

func TestStore_SetIsNotEligibleUntilApplied(t *testing.T) {
	t.Parallel()

	s := open(t, storage.NewMemoryBackend())

	s.Set("clicks", 1)
	s.Set("clicks", 2)
	require.False(t, s.IsModified())
	require.Empty(t, s.Committable())

	s.ApplyNewOffsets()
	require.True(t, s.IsModified())
	require.Equal(t, map[string]int64{"clicks": 2}, s.Committable())
}

func TestStore_ApplyWithoutChangesKeepsClean(t *testing.T) {
	t.Parallel()

	backend := storage.NewMemoryBackend()
	s := open(t, backend)
	s.Set("clicks", 4)
	s.ApplyNewOffsets()
	require.NoError(t, s.Commit())

	s.ApplyNewOffsets()
	require.False(t, s.IsModified())
}

func TestStore_CommitRoundTrip(t *testing.T) {
	t.Parallel()

	backend := storage.NewMemoryBackend()
	s := open(t, backend)

	s.Set("clicks", 5)
	s.Set("views", 12)
	s.ApplyNewOffsets()
	require.NoError(t, s.Commit())
	require.False(t, s.IsModified())

	raw, err := backend.Load("clicks-0.offsets")
	require.NoError(t, err)
	require.JSONEq(t, `{"offsets":{"clicks":5,"views":12}}`, string(raw))
	require.NotContains(t, string(raw), " ")

	reopened := open(t, backend)
	require.Equal(t, int64(5), reopened.Get("clicks"))
	require.Equal(t, int64(12), reopened.Get("views"))
	require.False(t, reopened.IsModified())
}

func TestStore_CommitPersistsOnlyEligible(t *testing.T) {
	t.Parallel()

	backend := storage.NewMemoryBackend()
	s := open(t, backend)

	s.Set("clicks", 3)
	s.ApplyNewOffsets()
	s.Set("clicks", 9)
	require.NoError(t, s.Commit())

	reopened := open(t, backend)
	require.Equal(t, int64(3), reopened.Get("clicks"))
}

func TestStore_CommitFailureKeepsDirty(t *testing.T) {
	t.Parallel()

	backend := storage.NewMemoryBackend()
	boom := errors.New("disk full")
	backend.SetSaveErrorFunc(func(string) error { return boom })

	s := open(t, backend)
	s.Set("clicks", 1)
	s.ApplyNewOffsets()

	err := s.Commit()
	require.ErrorIs(t, err, boom)
	require.True(t, s.IsModified())

	backend.SetSaveErrorFunc(nil)
	require.NoError(t, s.Commit())
	require.False(t, s.IsModified())
}

func TestStore_OpenCorruptBlob(t *testing.T) {
	t.Parallel()

	backend := storage.NewMemoryBackend()
	require.NoError(t, backend.Save("clicks-0.offsets", []byte("not json")))

	_, err := offsetstore.Open(backend, "clicks-0.offsets", nil)
	require.Error(t, err)
}
