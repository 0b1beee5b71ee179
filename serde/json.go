package serde

import "encoding/json"

type jsonCodec struct{}

// JSON returns a Codec producing compact JSON.
func JSON() Codec {
	return jsonCodec{}
}

func (jsonCodec) Marshal(value any) ([]byte, error) {
	return json.Marshal(value)
}

func (jsonCodec) Unmarshal(data []byte, target any) error {
	return json.Unmarshal(data, target)
}

func (jsonCodec) Name() string {
	return "json"
}
