package tool

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftpad-ai/artifact-platform/internal/model"
	"github.com/craftpad-ai/artifact-platform/internal/store"
)

func newTestExecutor(t *testing.T) (*Executor, *Registry, store.ArtifactStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	r := NewRegistry()
	RegisterArtifactTools(r, s)
	return NewExecutor(r), r, s
}

var testScope = Scope{TenantID: "tenant-1", ConversationID: "conv-1"}

func TestExecuteUnknownTool(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	res := e.Execute(context.Background(), testScope, "launch_rockets", nil)
	assert.Equal(t, ResultUnknownTool, res.Kind)
	assert.Contains(t, res.Err, "launch_rockets")
}

func TestExecuteValidationError(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	// missing required fields
	res := e.Execute(context.Background(), testScope, "create_artifact", json.RawMessage(`{"kind":"code"}`))
	assert.Equal(t, ResultValidationError, res.Kind)

	// malformed JSON
	res = e.Execute(context.Background(), testScope, "create_artifact", json.RawMessage(`{nope`))
	assert.Equal(t, ResultValidationError, res.Kind)

	// unknown kind
	res = e.Execute(context.Background(), testScope, "create_artifact",
		json.RawMessage(`{"kind":"sculpture","title":"t","content":"c"}`))
	assert.Equal(t, ResultValidationError, res.Kind)
}

func TestExecuteCreateArtifact(t *testing.T) {
	e, _, s := newTestExecutor(t)
	ctx := context.Background()

	res := e.Execute(ctx, testScope, "create_artifact",
		json.RawMessage(`{"kind":"code","title":"button","content":"<Button/>","language":"tsx"}`))
	require.True(t, res.OK(), "unexpected result: %+v", res)

	artifact, ok := res.Payload.(*model.Artifact)
	require.True(t, ok)
	assert.Equal(t, "tenant-1", artifact.TenantID)
	assert.Equal(t, "conv-1", artifact.ConversationID)

	stored, err := s.Get(ctx, "tenant-1", artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, "button", stored.Title)
}

func TestExecuteUpdateMissingArtifactIsExecutionError(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	res := e.Execute(context.Background(), testScope, "update_artifact",
		json.RawMessage(`{"id":"missing","title":"x"}`))
	assert.Equal(t, ResultExecutionError, res.Kind)
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Tool{
		Name:        "explode",
		Description: "always panics",
		NewInput:    func() Input { return &ArtifactIDInput{} },
		Handler: func(ctx context.Context, scope Scope, input Input) (any, error) {
			panic("boom")
		},
	})
	e := NewExecutor(r)

	res := e.Execute(context.Background(), testScope, "explode", json.RawMessage(`{"id":"x"}`))
	assert.Equal(t, ResultExecutionError, res.Kind)
	assert.Contains(t, res.Err, "boom")
}

func TestRegistryReadOnlyNames(t *testing.T) {
	_, r, _ := newTestExecutor(t)

	assert.ElementsMatch(t, []string{"get_artifact", "list_artifacts"}, r.ReadOnlyNames())
	assert.Equal(t, 5, r.Count())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, r, _ := newTestExecutor(t)

	err := r.Register(&Tool{
		Name:     "create_artifact",
		NewInput: func() Input { return &CreateArtifactInput{} },
		Handler: func(ctx context.Context, scope Scope, input Input) (any, error) {
			return nil, errors.New("unused")
		},
	})
	assert.Error(t, err)
}
