package chat

import (
	"encoding/json"
	"strings"

	"github.com/wellnest-io/chat-client/internal/domain"
	"github.com/wellnest-io/chat-client/internal/log"
)

// handleFrame classifies an inbound frame by type and dispatches it.
// A malformed frame never stops the router: it surfaces a generic
// error, clears the typing indicator, and subsequent frames are
// processed normally.
func (s *Session) handleFrame(data []byte) {
	// Raw heartbeat replies carry no payload; liveness is already
	// handled by the transport.
	raw := strings.TrimSpace(string(data))
	if raw == domain.RawPong || raw == `"`+domain.RawPong+`"` {
		return
	}

	var base domain.BaseFrame
	if err := json.Unmarshal(data, &base); err != nil {
		s.malformed(err)
		return
	}

	switch base.Type {
	case domain.FrameHistory:
		var f domain.HistoryFrame
		if err := json.Unmarshal(data, &f); err != nil {
			s.malformed(err)
			return
		}
		s.log.ReplaceHistory(f.Messages)
		s.notifyUpdate()

	case domain.FrameUser:
		var f domain.MessageFrame
		if err := json.Unmarshal(data, &f); err != nil {
			s.malformed(err)
			return
		}
		if s.log.IsDuplicateEcho(f.Message) {
			return
		}
		s.log.Append(f.Message)
		s.record(f.Message)
		s.notifyUpdate()

	case domain.FrameAI, domain.FrameAssistant:
		var f domain.MessageFrame
		if err := json.Unmarshal(data, &f); err != nil {
			s.malformed(err)
			return
		}
		s.log.Append(f.Message)
		s.record(f.Message)
		s.clearPending()
		s.setTyping(false)
		s.notifyUpdate()

	case domain.FrameProcessing:
		s.setTyping(true)

	case domain.FrameError:
		var f domain.ErrorFrame
		if err := json.Unmarshal(data, &f); err != nil {
			s.malformed(err)
			return
		}
		// An error frame also releases the in-flight send so the user
		// can retry.
		s.clearPending()
		s.setTyping(false)
		s.surfaceError(f.Message)

	case domain.FramePing, domain.FramePong:
		// Heartbeat only, no log mutation.

	case domain.FramePlanUpdated:
		if s.opts.Hooks.OnPlanUpdated != nil {
			s.opts.Hooks.OnPlanUpdated()
		}

	default:
		l := log.L()
		l.Debug().Str(log.FieldFrameType, base.Type).Msg("ignoring unrecognized frame")
	}
}

func (s *Session) malformed(err error) {
	l := log.L()
	l.Warn().Err(err).Msg("malformed frame")
	s.setTyping(false)
	s.surfaceError("invalid message received")
}
