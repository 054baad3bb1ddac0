package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yourusername/quantstream/pkg/model"
)

// Codec selects the wire format of live tick payloads.
type Codec string

const (
	// CodecJSON is the analytics backend's packet as a JSON object.
	CodecJSON Codec = "json"
	// CodecProto carries the same keys in a protobuf Struct.
	CodecProto Codec = "proto"
)

// ErrUnknownCodec is returned for a codec name other than json or proto.
var ErrUnknownCodec = errors.New("unknown tick codec")

// ParseCodec maps a config value to a Codec; empty means json.
func ParseCodec(s string) (Codec, error) {
	switch Codec(strings.ToLower(strings.TrimSpace(s))) {
	case "", CodecJSON:
		return CodecJSON, nil
	case CodecProto:
		return CodecProto, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCodec, s)
}

// EncodeTick serializes a tick.
func EncodeTick(c Codec, tick model.LiveTick) ([]byte, error) {
	fields := tick.Fields()
	switch c {
	case CodecJSON, "":
		return json.Marshal(fields)
	case CodecProto:
		st, err := structpb.NewStruct(fields)
		if err != nil {
			return nil, fmt.Errorf("encode tick: %w", err)
		}
		return proto.Marshal(st)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, c)
}

// DecodeTick parses a payload. Only a missing or unreadable time is an
// error; other bad fields come back absent.
func DecodeTick(c Codec, data []byte) (model.LiveTick, error) {
	var payload map[string]any
	switch c {
	case CodecJSON, "":
		if err := json.Unmarshal(data, &payload); err != nil {
			return model.LiveTick{}, fmt.Errorf("%w: %v", model.ErrMalformedTick, err)
		}
	case CodecProto:
		var st structpb.Struct
		if err := proto.Unmarshal(data, &st); err != nil {
			return model.LiveTick{}, fmt.Errorf("%w: %v", model.ErrMalformedTick, err)
		}
		payload = st.AsMap()
	default:
		return model.LiveTick{}, fmt.Errorf("%w: %q", ErrUnknownCodec, c)
	}
	return model.DecodeLiveTick(payload)
}
