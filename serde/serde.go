package serde

// Codec turns values into bytes and back. Unmarshal targets must be pointers.
type Codec interface {
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, target any) error
	Name() string
}
