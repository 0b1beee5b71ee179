package serde

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

type protobufCodec struct{}

// Protobuf returns a Codec using the binary protobuf wire format. Values must be proto.Message.
func Protobuf() Codec {
	return protobufCodec{}
}

func (protobufCodec) Marshal(value any) ([]byte, error) {
	m, ok := value.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("protobuf codec: %T is not a proto.Message", value)
	}
	return proto.Marshal(m)
}

func (protobufCodec) Unmarshal(data []byte, target any) error {
	m, ok := target.(proto.Message)
	if !ok {
		return fmt.Errorf("protobuf codec: %T is not a proto.Message", target)
	}
	return proto.Unmarshal(data, m)
}

func (protobufCodec) Name() string {
	return "protobuf"
}

type protoJSONCodec struct{}

// ProtoJSON returns a Codec using the canonical protobuf JSON mapping.
func ProtoJSON() Codec {
	return protoJSONCodec{}
}

func (protoJSONCodec) Marshal(value any) ([]byte, error) {
	m, ok := value.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("protojson codec: %T is not a proto.Message", value)
	}
	return protojson.Marshal(m)
}

func (protoJSONCodec) Unmarshal(data []byte, target any) error {
	m, ok := target.(proto.Message)
	if !ok {
		return fmt.Errorf("protojson codec: %T is not a proto.Message", target)
	}
	return protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(data, m)
}

func (protoJSONCodec) Name() string {
	return "protojson"
}

// For picks ProtoJSON for proto.Message values and JSON for everything else.
func For(value any) Codec {
	if _, ok := value.(proto.Message); ok {
		return ProtoJSON()
	}
	return JSON()
}
