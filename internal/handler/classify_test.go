package handler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
)

func TestClassify_SystemFrame(t *testing.T) {
	raw := []byte(`{"type":"ping","timestamp":1234}`)
	env, err := Classify(raw)
	require.NoError(t, err)
	assert.Equal(t, model.KindSystem, env.Kind)
	assert.Equal(t, "ping", env.Type)
	assert.Equal(t, int64(1234), env.Timestamp)
	assert.Equal(t, model.PriorityHigh, env.Priority)
}

func TestClassify_AuthFrame(t *testing.T) {
	raw := []byte(`{"type":"auth","data":{"user_id":"u1","token":"abcdefgh","player_id":"p1"}}`)
	env, err := Classify(raw)
	require.NoError(t, err)
	assert.Equal(t, model.KindSystem, env.Kind)
	assert.Equal(t, "auth", env.Type)
	assert.JSONEq(t, `{"user_id":"u1","token":"abcdefgh","player_id":"p1"}`, string(env.Data))
}

func TestClassify_BusinessFrame(t *testing.T) {
	raw := []byte(`{"type":"frame","data":{"msg_id":1001,"sequence":"s1","player_id":"p1","body":{"x":1}}}`)
	env, err := Classify(raw)
	require.NoError(t, err)
	assert.Equal(t, model.KindBusiness, env.Kind)
	assert.Equal(t, int32(1001), env.MsgID)
	assert.Equal(t, "s1", env.Sequence)
	assert.Equal(t, "p1", env.PlayerID)
	assert.JSONEq(t, `{"x":1}`, string(env.Data))
	assert.Equal(t, model.PriorityNormal, env.Priority)
}

func TestClassify_GatewayFrame(t *testing.T) {
	raw := []byte(`{"type":"frame","data":{"msg_id":9000}}`)
	env, err := Classify(raw)
	require.NoError(t, err)
	assert.Equal(t, model.KindGateway, env.Kind)
	assert.Equal(t, int32(9000), env.MsgID)
}

func TestClassify_UnknownTypeErrors(t *testing.T) {
	_, err := Classify([]byte(`{"type":"bogus"}`))
	assert.Error(t, err)
}

func TestClassify_MalformedJSONErrors(t *testing.T) {
	_, err := Classify([]byte(`not json`))
	assert.Error(t, err)
}

func TestMarshal_RoundTripsBusinessEnvelope(t *testing.T) {
	data, err := Marshal(&model.Envelope{
		Kind: model.KindBusiness,
		Type: "frame",
		Data: json.RawMessage(`{"msg_id":1001,"sequence":"s1","player_id":"p1","body":{"x":1}}`),
	})
	require.NoError(t, err)

	got, err := Classify(data)
	require.NoError(t, err)
	assert.Equal(t, int32(1001), got.MsgID)
	assert.Equal(t, "p1", got.PlayerID)
}

func TestMarshal_ErrorEnvelopeSynthesizesDataFromCode(t *testing.T) {
	env := &model.Envelope{Kind: model.KindError, Type: "error", ErrorCode: "NOT_AUTHENTICATED", Message: "not authenticated"}
	data, err := Marshal(env)
	require.NoError(t, err)

	var decoded struct {
		Type string `json:"type"`
		Data struct {
			ErrorCode string `json:"error_code"`
			Message   string `json:"message"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "error", decoded.Type)
	assert.Equal(t, "NOT_AUTHENTICATED", decoded.Data.ErrorCode)
	assert.Equal(t, "not authenticated", decoded.Data.Message)
}
