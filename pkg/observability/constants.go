package observability

// Span and attribute names for the workflow-domain traces and debug
// captures this package emits (§2.2, §6.1 "otel: one span per Advance +
// child spans for lock/agent/checkpoint").
const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
	AttrWorkflowID     = "workflow.id"
	AttrStage          = "workflow.stage"
	AttrLockResource   = "lock.resource"
	AttrCheckpointKind = "checkpoint.kind"
	AttrErrorType      = "error.type"

	SpanAdvance        = "workflow.advance"
	SpanAgentInvoke    = "workflow.agent_invoke"
	SpanLockAcquire    = "workflow.lock_acquire"
	SpanCheckpointSave = "workflow.checkpoint_save"

	DefaultServiceName  = "wikiforge"
	DefaultSamplingRate = 1.0
	DefaultMetricsPath  = "/metrics"
)
