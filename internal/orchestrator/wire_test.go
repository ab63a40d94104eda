// ABOUTME: Tests for the hand-rolled protobuf wire encoding
// ABOUTME: Round-trips each message and checks proto3 empty-field omission

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessMessageRequestRoundTrip(t *testing.T) {
	in := &processMessageRequest{
		SessionID: "sess-1",
		UserID:    "user-1",
		Message:   "hello there",
		TraceID:   "trace-1",
	}

	out := &processMessageRequest{}
	require.NoError(t, out.unmarshalWire(in.marshalWire()))
	assert.Equal(t, in, out)
}

func TestProcessChunkRoundTrip(t *testing.T) {
	in := &processChunk{JSON: `{"type":"token","content":"hi"}`}

	out := &processChunk{}
	require.NoError(t, out.unmarshalWire(in.marshalWire()))
	assert.Equal(t, in.JSON, out.JSON)
}

func TestTestToolMessagesRoundTrip(t *testing.T) {
	req := &testToolRequest{
		ToolName:      "search_products",
		ArgumentsJSON: `{"query":"shoes"}`,
		TraceID:       "trace-9",
	}
	gotReq := &testToolRequest{}
	require.NoError(t, gotReq.unmarshalWire(req.marshalWire()))
	assert.Equal(t, req, gotReq)

	resp := &testToolResponse{Success: true, ResultJSON: `{"count":3}`}
	gotResp := &testToolResponse{}
	require.NoError(t, gotResp.unmarshalWire(resp.marshalWire()))
	assert.Equal(t, resp, gotResp)

	failure := &testToolResponse{Error: "tool not found"}
	gotFailure := &testToolResponse{}
	require.NoError(t, gotFailure.unmarshalWire(failure.marshalWire()))
	assert.False(t, gotFailure.Success)
	assert.Equal(t, "tool not found", gotFailure.Error)
}

func TestEmptyFieldsOmitted(t *testing.T) {
	// Proto3 presence: empty strings and false produce no bytes at all.
	empty := &processMessageRequest{}
	assert.Empty(t, empty.marshalWire())

	partial := &processMessageRequest{SessionID: "sess-1"}
	out := &processMessageRequest{}
	require.NoError(t, out.unmarshalWire(partial.marshalWire()))
	assert.Equal(t, "sess-1", out.SessionID)
	assert.Empty(t, out.UserID)
}

func TestWireCodec(t *testing.T) {
	codec := wireCodec{}
	assert.Equal(t, "proto", codec.Name())

	data, err := codec.Marshal(&processChunk{JSON: "{}"})
	require.NoError(t, err)

	chunk := &processChunk{}
	require.NoError(t, codec.Unmarshal(data, chunk))
	assert.Equal(t, "{}", chunk.JSON)

	_, err = codec.Marshal("not a wire message")
	assert.Error(t, err)
	assert.Error(t, codec.Unmarshal(data, "not a wire message"))
}
