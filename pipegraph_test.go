package pipegraph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name      string
		connector string
		role      Role
	}{
		{"sqlite_source", "sqlite", RoleSource},
		{"hello_world_destination", "hello_world", RoleDestination},
		{"mycelial_net", "mycelial_net", RoleNone},
		{"_source", "", RoleSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, r := ParseName(tt.name)
			assert.Equal(t, tt.connector, c)
			assert.Equal(t, tt.role, r)
		})
	}
}

func TestStageUnmarshal(t *testing.T) {
	t.Run("suffix sets role and fields stay flat", func(t *testing.T) {
		var st Stage
		require.NoError(t, json.Unmarshal([]byte(`{"name":"sqlite_source","path":"/a","clientId":"d1"}`), &st))
		assert.Equal(t, "sqlite", st.Connector)
		assert.Equal(t, RoleSource, st.Role)
		assert.Equal(t, "d1", st.ClientID)
		assert.Equal(t, map[string]any{"path": "/a"}, st.Fields)
	})

	t.Run("flags set role when name has no suffix", func(t *testing.T) {
		var st Stage
		require.NoError(t, json.Unmarshal([]byte(`{"name":"mycelial_net","isDestination":true}`), &st))
		assert.Equal(t, RoleDestination, st.Role)
		assert.Empty(t, st.Fields)
	})

	t.Run("suffix wins over flags", func(t *testing.T) {
		var st Stage
		require.NoError(t, json.Unmarshal([]byte(`{"name":"file_destination","isSource":true}`), &st))
		assert.Equal(t, RoleDestination, st.Role)
	})

	t.Run("numbers are kept as json.Number", func(t *testing.T) {
		var st Stage
		require.NoError(t, json.Unmarshal([]byte(`{"name":"hello_world_source","interval_milis":250}`), &st))
		assert.Equal(t, json.Number("250"), st.Fields["interval_milis"])
	})

	for _, in := range []string{`{"path":"/a"}`, `{"name":""}`, `null`, `[1]`, `{"name":"x","clientId":3}`} {
		t.Run("invalid "+in, func(t *testing.T) {
			var st Stage
			err := json.Unmarshal([]byte(in), &st)
			assert.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}

func TestStageMarshal(t *testing.T) {
	st := Stage{Connector: "sqlite", Role: RoleDestination, Fields: map[string]any{"path": "/b"}}
	data, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"sqlite_destination","isDestination":true,"path":"/b"}`, string(data))

	cfg := PipeConfig{ID: 3, WorkspaceID: 1, Stages: []Stage{st}}
	data, err = json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"workspace_id":1,"pipe":[{"name":"sqlite_destination","isDestination":true,"path":"/b"}]}`, string(data))

	relay := Stage{Connector: "mycelial_net", ClientID: "d1", Fields: map[string]any{}}
	data, err = json.Marshal(relay)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"mycelial_net","clientId":"d1"}`, string(data))
}

func TestStageRoundTripKeepsRole(t *testing.T) {
	for _, role := range []Role{RoleNone, RoleSource, RoleDestination} {
		st := Stage{Connector: "file", Role: role, Fields: map[string]any{"path": "/a"}}
		data, err := json.Marshal(st)
		require.NoError(t, err)

		var back Stage
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, role, back.Role)
		assert.Equal(t, map[string]any{"path": "/a"}, back.Fields)
	}
}

func TestStageCloneIsolatesFields(t *testing.T) {
	st := Stage{Connector: "file", Fields: map[string]any{"path": "/a"}}
	c := st.WithRole(RoleSource)
	c.Fields["path"] = "/b"

	assert.Equal(t, "/a", st.Fields["path"])
	assert.Equal(t, RoleNone, st.Role)
	assert.Equal(t, RoleSource, c.Role)
	assert.NotNil(t, Stage{}.Clone().Fields)
}
