//go:build unit

package serde_test

import (
	"testing"

	"github.com/hugolhafner/go-tasks/serde"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestJSON_Compact(t *testing.T) {
	t.Parallel()

	data, err := serde.JSON().Marshal(map[string]any{"count": 5, "user": "u1"})
	require.NoError(t, err)
	require.Equal(t, `{"count":5,"user":"u1"}`, string(data))

	var out map[string]int
	require.NoError(t, serde.JSON().Unmarshal([]byte(`{"count":5}`), &out))
	require.Equal(t, 5, out["count"])
}

func TestProtoCodecs_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, codec := range []serde.Codec{serde.Protobuf(), serde.ProtoJSON()} {
		t.Run(
			codec.Name(), func(t *testing.T) {
				in, err := structpb.NewStruct(map[string]any{"clicks": 5.0})
				require.NoError(t, err)

				data, err := codec.Marshal(in)
				require.NoError(t, err)

				out := &structpb.Struct{}
				require.NoError(t, codec.Unmarshal(data, out))
				require.Equal(t, 5.0, out.Fields["clicks"].GetNumberValue())
			},
		)
	}
}

func TestProtoCodecs_RejectNonProto(t *testing.T) {
	t.Parallel()

	_, err := serde.Protobuf().Marshal(map[string]int{})
	require.Error(t, err)
	require.Error(t, serde.ProtoJSON().Unmarshal([]byte("{}"), &map[string]int{}))
}

func TestFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "protojson", serde.For(&structpb.Struct{}).Name())
	require.Equal(t, "json", serde.For(&map[string]int{}).Name())
	require.Equal(t, "json", serde.For(nil).Name())
}
