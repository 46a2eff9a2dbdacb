package storage

import (
	"encoding/json"

	pkgerrors "github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Marshaller is the codec contract shared by cached values and coherence
// bus control messages. Both must round-trip through it without loss.
type Marshaller interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONMarshaller implements Marshaller using encoding/json. It is the
// default.
type JSONMarshaller struct{}

// Marshal serializes a value to JSON.
func (JSONMarshaller) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, WrapSerialization(err, "storage: json marshal failed")
	}
	return b, nil
}

// Unmarshal deserializes a value from JSON.
func (JSONMarshaller) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return WrapSerialization(err, "storage: json unmarshal failed")
	}
	return nil
}

// NewJSONMarshaller creates a new JSON marshaller.
func NewJSONMarshaller() Marshaller { return JSONMarshaller{} }

// MsgpackMarshaller implements Marshaller using vmihailenco/msgpack, for
// hosts that want a smaller wire format for high-volume sync traffic.
type MsgpackMarshaller struct{}

// Marshal serializes a value to msgpack.
func (MsgpackMarshaller) Marshal(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, WrapSerialization(err, "storage: msgpack marshal failed")
	}
	return b, nil
}

// Unmarshal deserializes a value from msgpack.
func (MsgpackMarshaller) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return WrapSerialization(err, "storage: msgpack unmarshal failed")
	}
	return nil
}

// NewMsgpackMarshaller creates a new msgpack marshaller.
func NewMsgpackMarshaller() Marshaller { return MsgpackMarshaller{} }

// GetMarshaller returns the Marshaller for a named serialization format
// ("json" or "msgpack").
func GetMarshaller(format string) (Marshaller, error) {
	switch format {
	case "", "json":
		return NewJSONMarshaller(), nil
	case "msgpack":
		return NewMsgpackMarshaller(), nil
	default:
		return nil, pkgerrors.Errorf("storage: unsupported serialization format %q", format)
	}
}
