package messagesync

// Phase is a step of the per-invocation state machine.
type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhaseFetching  Phase = "FETCHING"
	PhaseDeduping  Phase = "DEDUPING"
	PhaseEmbedding Phase = "EMBEDDING"
	PhaseStoring   Phase = "STORING"
	PhaseAdvancing Phase = "ADVANCE_WATERMARK"
	PhaseDone      Phase = "DONE"
	PhaseFailed    Phase = "FAILED"
)
