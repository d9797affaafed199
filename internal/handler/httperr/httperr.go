// Package httperr maps service errors onto HTTP statuses and stable codes.
package httperr

import (
	"context"
	"errors"
	"net/http"

	"github.com/zhouzirui/moodline/backend/internal/service/chat"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
	"github.com/zhouzirui/moodline/backend/pkg/utils"
)

var mappings = []struct {
	target error
	status int
	code   string
}{
	{chat.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{dialogue.ErrSessionClosed, http.StatusConflict, "session_closed"},
	{dialogue.ErrReplyPending, http.StatusConflict, "reply_pending"},
	{chat.ErrReportNotReady, http.StatusConflict, "report_not_ready"},
	{dialogue.ErrNoPendingTurn, http.StatusBadRequest, "no_pending_turn"},
	{dialogue.ErrEmptyMessage, http.StatusBadRequest, "empty_message"},
	{dialogue.ErrResponseUnavailable, http.StatusServiceUnavailable, "response_unavailable"},
	{dialogue.ErrAnalysisUnavailable, http.StatusServiceUnavailable, "analysis_unavailable"},
	{dialogue.ErrReportMalformed, http.StatusBadGateway, "report_malformed"},
	{dialogue.ErrInvalidSequence, http.StatusInternalServerError, "invalid_sequence"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	{context.Canceled, http.StatusRequestTimeout, "cancelled"},
}

// Classify returns the HTTP status and error code for err.
func Classify(err error) (int, string) {
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// Write responds with the classified error body.
func Write(w http.ResponseWriter, err error) {
	status, code := Classify(err)
	utils.RespondError(w, status, code, err.Error())
}
