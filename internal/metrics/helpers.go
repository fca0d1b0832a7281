package metrics

// Attach results.
const (
	AttachResultAttached = "attached"
	AttachResultPending  = "pending"
	AttachResultRejected = "rejected"
)

// IncWriterAttach increments writer attach counter for result.
func IncWriterAttach(result string) {
	WriterAttachTotal.WithLabelValues(result).Inc()
}

// IncFrameWritten increments downstream frame counter.
func IncFrameWritten(frameType string) {
	FramesWrittenTotal.WithLabelValues(frameType).Inc()
}

// IncFrameReceived increments upstream frame counter.
func IncFrameReceived(frameType string) {
	FramesReceivedTotal.WithLabelValues(frameType).Inc()
}

// SessionOpened accounts new session.
func SessionOpened() {
	SessionsOpenedTotal.Inc()
	SessionsActive.Inc()
}

// SessionClosed accounts closed session.
func SessionClosed(immediately bool) {
	mode := "graceful"
	if immediately {
		mode = "immediate"
	}
	SessionsClosedTotal.WithLabelValues(mode).Inc()
	SessionsActive.Dec()
}
