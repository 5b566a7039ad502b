package publisher

// Recorder receives queue outcomes. *metrics.Publisher implements it.
type Recorder interface {
	EventReceived()
	EventDropped()
	EventRequeued()
	EventLost()
	SetQueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) EventReceived() {}
func (nopRecorder) EventDropped() {}
func (nopRecorder) EventRequeued() {}
func (nopRecorder) EventLost() {}
func (nopRecorder) SetQueueDepth(int) {}
