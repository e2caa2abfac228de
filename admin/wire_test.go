package admin

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeWireFormat(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want string
	}{
		{
			name: "execute",
			env:  Envelope{Token: "t0k", Payload: Payload{Execute: &ExecuteSetupc{Args: []string{"install", "PortName=COM#", "PortName=-"}, Cwd: `C:\Program Files\com0com`}}},
			want: `{"token":"t0k","payload":{"ExecuteSetupc":{"args":["install","PortName=COM#","PortName=-"],"cwd":"C:\\Program Files\\com0com"}}}`,
		},
		{
			name: "execute without args",
			env:  Envelope{Token: "t0k", Payload: Payload{Execute: &ExecuteSetupc{}}},
			want: `{"token":"t0k","payload":{"ExecuteSetupc":{"args":[],"cwd":""}}}`,
		},
		{
			name: "shutdown",
			env:  Envelope{Token: "t0k", Payload: Payload{Shutdown: true}},
			want: `{"token":"t0k","payload":"Shutdown"}`,
		},
		{
			name: "with request id",
			env:  Envelope{Token: "t0k", Payload: Payload{Shutdown: true}, ID: "01J"},
			want: `{"token":"t0k","payload":"Shutdown","id":"01J"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.env)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestEnvelopeDecode(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"token":"abc","payload":{"ExecuteSetupc":{"args":["remove","3"],"cwd":"C:\\x"}}}`), &env))
	assert.Equal(t, "abc", env.Token)
	require.NotNil(t, env.Payload.Execute)
	assert.Equal(t, []string{"remove", "3"}, env.Payload.Execute.Args)
	assert.Equal(t, `C:\x`, env.Payload.Execute.Cwd)
	assert.False(t, env.Payload.Shutdown)

	env = Envelope{}
	require.NoError(t, json.Unmarshal([]byte(`{"token":"abc","payload":"Shutdown"}`), &env))
	assert.True(t, env.Payload.Shutdown)
	assert.Nil(t, env.Payload.Execute)
}

func TestEnvelopeDecodeRejectsUnknownPayloads(t *testing.T) {
	for _, raw := range []string{
		`{"token":"abc","payload":"Reboot"}`,
		`{"token":"abc","payload":{"Format":{"drive":"C"}}}`,
		`{"token":"abc","payload":42}`,
	} {
		var env Envelope
		assert.Error(t, json.Unmarshal([]byte(raw), &env), raw)
	}
}

func TestEmptyPayloadDoesNotEncode(t *testing.T) {
	_, err := json.Marshal(Envelope{Token: "abc"})
	assert.Error(t, err)
}

func TestResponseWireFormat(t *testing.T) {
	b, err := json.Marshal(Response{Success: true, Stdout: "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"stdout":"ok","stderr":"","error":null}`, string(b))

	b, err = json.Marshal(failure("boom"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"stdout":"","stderr":"","error":"boom"}`, string(b))
}

func TestResponseReason(t *testing.T) {
	assert.Equal(t, "boom", failure("boom").Reason())
	assert.Equal(t, "denied", Response{Stderr: "denied"}.Reason())
	assert.NotEmpty(t, Response{}.Reason())
}
