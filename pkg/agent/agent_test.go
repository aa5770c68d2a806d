package agent_test

import (
	"context"
	"testing"

	"github.com/kadirpekel/wikiforge/pkg/agent"
	"github.com/kadirpekel/wikiforge/pkg/agent/testagent"
	"github.com/kadirpekel/wikiforge/pkg/stage"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := agent.NewRegistry()
	_, ok := r.Get(stage.Research)
	require.False(t, ok)

	r.Register(testagent.NewConstant(stage.Research, map[string]any{agent.FieldResearchCompleted: true}))
	got, ok := r.Get(stage.Research)
	require.True(t, ok)
	require.Equal(t, stage.Research, got.Stage())
}

func TestRegistryStagesPreservesOrder(t *testing.T) {
	r := agent.NewRegistry()
	r.Register(testagent.NewConstant(stage.Retrieval, nil))
	r.Register(testagent.NewConstant(stage.Research, nil))

	require.Equal(t, []stage.Id{stage.Research, stage.Retrieval}, r.Stages())
}

func TestSelectProjectsOnlyNamedKeys(t *testing.T) {
	in := map[string]any{
		agent.FieldKeyword:         "graph databases",
		agent.FieldResearchResults: []any{"doc"},
		"unrelated":                "noise",
	}
	out := agent.Select(in, agent.FieldKeyword)
	require.Equal(t, map[string]any{agent.FieldKeyword: "graph databases"}, out)
}

func TestConstantAgentHealthCheck(t *testing.T) {
	a := testagent.NewConstant(stage.Research, map[string]any{"x": 1})
	status := a.HealthCheck(context.Background())
	require.True(t, status.Healthy)
}
