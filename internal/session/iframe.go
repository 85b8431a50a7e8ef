package session

// IframeJob produces the response for exactly one future iframe poll.
// Jobs are drained strictly FIFO; the queue is the session's only
// push-like channel to the client, announced through the width signal.
type IframeJob func(req *Request)

// enqueueIframeJob appends a job and raises the width signal so the
// client learns, through the next image's dimensions, that it should
// poll the iframe route.
func (s *Session) enqueueIframeJob(job IframeJob) {
	s.iframeQueue = append(s.iframeQueue, job)
	s.setWidthSignal(widthSignalNewIframe)
}

func (s *Session) handleIframePoll(req *Request, mainIdx uint64) {
	if mainIdx != s.mainIdx {
		s.metrics.StaleRequests.Inc()
		req.SendText(400, "ERROR: Outdated request")
		return
	}

	if len(s.iframeQueue) == 0 {
		req.SendText(200, "OK")
		return
	}

	s.updateInactivityTimeout(false)

	job := s.iframeQueue[0]
	s.iframeQueue = s.iframeQueue[1:]

	// The signal reverts only once the queue is empty; with jobs still
	// waiting the client must keep polling.
	if len(s.iframeQueue) == 0 {
		s.setWidthSignal(widthSignalNoNewIframe)
	}

	s.metrics.IframeJobsServed.Inc()
	job(req)
}
