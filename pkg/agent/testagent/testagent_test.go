package testagent

import (
	"context"
	"errors"
	"testing"

	"github.com/kadirpekel/wikiforge/pkg/stage"
	"github.com/stretchr/testify/require"
)

func TestConstantReturnsCopyNotAliased(t *testing.T) {
	base := map[string]any{"k": "v"}
	a := NewConstant(stage.Research, base)

	out, err := a.Process(context.Background(), nil)
	require.NoError(t, err)
	out["k"] = "mutated"

	require.Equal(t, "v", base["k"])
}

func TestFailureSequenceFailsThenSucceeds(t *testing.T) {
	sentinel := errors.New("boom")
	a := NewFailureSequence(stage.Extraction, 2, sentinel, map[string]any{"extracted_entities": []any{}})

	_, err := a.Process(context.Background(), nil)
	require.ErrorIs(t, err, sentinel)

	_, err = a.Process(context.Background(), nil)
	require.ErrorIs(t, err, sentinel)

	out, err := a.Process(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []any{}, out["extracted_entities"])
	require.Equal(t, 3, a.Calls())
}

func TestFailureSequenceHealthCheckOverride(t *testing.T) {
	a := NewFailureSequence(stage.Research, 0, errors.New("x"), nil)
	require.True(t, a.HealthCheck(context.Background()).Healthy)

	a.SetHealthy(false)
	require.False(t, a.HealthCheck(context.Background()).Healthy)
}
