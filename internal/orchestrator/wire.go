// ABOUTME: Hand-rolled protobuf wire encoding for the orchestrator messages
// ABOUTME: Field numbers must stay in sync with proto/orchestrator.proto

package orchestrator

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// wireMessage is implemented by every message exchanged with the
// orchestrator. The message set is small and fixed, so the encoding is
// written by hand against protowire instead of carrying generated code.
type wireMessage interface {
	marshalWire() []byte
	unmarshalWire(data []byte) error
}

// processMessageRequest mirrors ProcessMessageRequest in orchestrator.proto.
type processMessageRequest struct {
	SessionID string // field 1
	UserID    string // field 2
	Message   string // field 3
	TraceID   string // field 4
}

func (m *processMessageRequest) marshalWire() []byte {
	var b []byte
	b = appendStringField(b, 1, m.SessionID)
	b = appendStringField(b, 2, m.UserID)
	b = appendStringField(b, 3, m.Message)
	b = appendStringField(b, 4, m.TraceID)
	return b
}

func (m *processMessageRequest) unmarshalWire(data []byte) error {
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.SessionID = string(v)
		case 2:
			m.UserID = string(v)
		case 3:
			m.Message = string(v)
		case 4:
			m.TraceID = string(v)
		}
		return nil
	})
}

// processChunk mirrors ProcessChunk in orchestrator.proto.
type processChunk struct {
	JSON string // field 1
}

func (m *processChunk) marshalWire() []byte {
	return appendStringField(nil, 1, m.JSON)
}

func (m *processChunk) unmarshalWire(data []byte) error {
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == 1 {
			m.JSON = string(v)
		}
		return nil
	})
}

// testToolRequest mirrors TestToolRequest in orchestrator.proto.
type testToolRequest struct {
	ToolName      string // field 1
	ArgumentsJSON string // field 2
	TraceID       string // field 3
}

func (m *testToolRequest) marshalWire() []byte {
	var b []byte
	b = appendStringField(b, 1, m.ToolName)
	b = appendStringField(b, 2, m.ArgumentsJSON)
	b = appendStringField(b, 3, m.TraceID)
	return b
}

func (m *testToolRequest) unmarshalWire(data []byte) error {
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.ToolName = string(v)
		case 2:
			m.ArgumentsJSON = string(v)
		case 3:
			m.TraceID = string(v)
		}
		return nil
	})
}

// testToolResponse mirrors TestToolResponse in orchestrator.proto.
type testToolResponse struct {
	Success    bool   // field 1
	ResultJSON string // field 2
	Error      string // field 3
}

func (m *testToolResponse) marshalWire() []byte {
	var b []byte
	if m.Success {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	b = appendStringField(b, 2, m.ResultJSON)
	b = appendStringField(b, 3, m.Error)
	return b
}

func (m *testToolResponse) unmarshalWire(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Success = v != 0
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ResultJSON = string(v)
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Error = string(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

// appendStringField appends a length-delimited string field, omitting
// empty values per proto3 presence rules.
func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// consumeFields walks a wire-format buffer, handing length-delimited
// fields to fn and skipping everything else.
func consumeFields(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, v); err != nil {
				return err
			}
			data = data[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
	}
	return nil
}

// wireCodec lets gRPC carry the hand-encoded messages. The name "proto"
// keeps the content-type interoperable with a protoc-generated peer.
type wireCodec struct{}

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("wireCodec: cannot marshal %T", v)
	}
	return m.marshalWire(), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("wireCodec: cannot unmarshal into %T", v)
	}
	return m.unmarshalWire(data)
}

func (wireCodec) Name() string {
	return "proto"
}
