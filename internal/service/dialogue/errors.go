package dialogue

import "errors"

// Port failures. Sentiment and generation backends return (or wrap) these.
var (
	ErrClassificationUnavailable = errors.New("sentiment classification unavailable")
	ErrGenerationUnavailable     = errors.New("generation unavailable")
	ErrGenerationRejected        = errors.New("generation rejected by content policy")
)

// Orchestration failures surfaced to callers.
var (
	ErrInvalidSequence     = errors.New("invalid turn sequence")
	ErrNoPendingTurn       = errors.New("no user turn to reply to")
	ErrSessionClosed       = errors.New("session closed")
	ErrReplyPending        = errors.New("previous message is still waiting for a reply")
	ErrEmptyMessage        = errors.New("message text is required")
	ErrResponseUnavailable = errors.New("reply unavailable")
	ErrAnalysisUnavailable = errors.New("session analysis unavailable")
	ErrReportMalformed     = errors.New("diagnostic report malformed")
)
