package session

import (
	"strings"

	"go.uber.org/zap"
)

// replayEvents applies the trailing event segment of an image poll.
// Events are implicitly numbered from startIdx; clients resend their
// whole pending buffer on retry, so any event whose absolute index has
// already been processed is skipped without dispatching. A gap means
// the carrying requests were lost: the missing events are abandoned
// permanently rather than renegotiated.
func (s *Session) replayEvents(startIdx uint64, events string) {
	idx := startIdx
	if idx > s.eventIdx {
		s.log.Warn("input events lost",
			zap.Uint64("skipped", idx-s.eventIdx),
			zap.Uint64("resume_at", idx),
		)
		s.metrics.EventsLost.Add(float64(idx - s.eventIdx))
		s.eventIdx = idx
	}

	for _, tok := range splitEventTokens(events) {
		if idx == s.eventIdx {
			if s.widget.DispatchEvent([]byte(tok)) {
				s.metrics.EventsDispatched.Inc()
			} else {
				// Malformed tokens are dropped, not fatal: the batch
				// continues and the index still advances.
				s.log.Warn("could not parse input event", zap.String("event", tok))
			}
			idx++
			s.eventIdx = idx
		} else {
			idx++
		}
	}
}

// splitEventTokens splits the slash-terminated token list of the image
// path tail ("K65/MD3_4_1/" -> ["K65", "MD3_4_1"]).
func splitEventTokens(events string) []string {
	events = strings.TrimSuffix(events, "/")
	if events == "" {
		return nil
	}
	return strings.Split(events, "/")
}
