package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/pipegraph"
)

func TestDefaultCatalog(t *testing.T) {
	cat := Default()

	d, ok := cat.Lookup(SQLite)
	require.True(t, ok)
	assert.Equal(t, "SQLite", d.DisplayName)

	_, ok = cat.Lookup("nope")
	assert.False(t, ok)

	assert.True(t, cat.IsFanOut(MycelialNet))
	assert.False(t, cat.IsFanOut(SQLite))
	assert.False(t, cat.IsFanOut("nope"))

	all := cat.All()
	require.NotEmpty(t, all)
	assert.Equal(t, HelloWorld, all[0].Type)
}

func TestNewStage(t *testing.T) {
	cat := Default()

	st, err := cat.NewStage(HelloWorld, pipegraph.RoleSource)
	require.NoError(t, err)
	assert.Equal(t, "hello_world_source", st.Name())
	assert.Equal(t, map[string]any{"message": "Hello!", "interval_milis": int64(5000)}, st.Fields)

	_, err = cat.NewStage("nope", pipegraph.RoleNone)
	assert.ErrorIs(t, err, pipegraph.ErrUnknownConnector)

	_, err = cat.NewStage(Excel, pipegraph.RoleDestination)
	assert.ErrorIs(t, err, pipegraph.ErrInvalidFormat)
}

func TestNormalize(t *testing.T) {
	cat := Default()

	tests := []struct {
		name    string
		stage   pipegraph.Stage
		want    map[string]any
		wantErr error
	}{
		{
			name:  "fills defaults",
			stage: pipegraph.Stage{Connector: SQLite, Fields: map[string]any{"path": "/a"}},
			want:  map[string]any{"path": "/a", "tables": "*", "strict": true},
		},
		{
			name:  "coerces json numbers",
			stage: pipegraph.Stage{Connector: HelloWorld, Fields: map[string]any{"interval_milis": json.Number("10")}},
			want:  map[string]any{"message": "Hello!", "interval_milis": int64(10)},
		},
		{
			name:  "coerces whole floats",
			stage: pipegraph.Stage{Connector: Postgres, Fields: map[string]any{"poll_interval": float64(3)}},
			want:  map[string]any{"url": "", "schema": "public", "tables": "*", "poll_interval": int64(3)},
		},
		{
			name:    "rejects fractional int",
			stage:   pipegraph.Stage{Connector: Postgres, Fields: map[string]any{"poll_interval": 1.5}},
			wantErr: pipegraph.ErrInvalidFormat,
		},
		{
			name:    "rejects wrong kind",
			stage:   pipegraph.Stage{Connector: SQLite, Fields: map[string]any{"strict": "yes"}},
			wantErr: pipegraph.ErrInvalidFormat,
		},
		{
			name:    "rejects undeclared field",
			stage:   pipegraph.Stage{Connector: File, Fields: map[string]any{"colour": "red"}},
			wantErr: pipegraph.ErrInvalidFormat,
		},
		{
			name:    "rejects unknown connector",
			stage:   pipegraph.Stage{Connector: "ftp"},
			wantErr: pipegraph.ErrUnknownConnector,
		},
		{
			name:    "rejects unsupported role",
			stage:   pipegraph.Stage{Connector: Excel, Role: pipegraph.RoleDestination},
			wantErr: pipegraph.ErrInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cat.Normalize(tt.stage)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Fields)
		})
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := pipegraph.Stage{Connector: SQLite, Fields: map[string]any{"path": "/a"}}
	_, err := Default().Normalize(in)
	require.NoError(t, err)
	assert.Len(t, in.Fields, 1)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "string", KindString.String())
	assert.Equal(t, "bool", KindBool.String())
	assert.Equal(t, "int", KindInt.String())
}
