package publisher

import (
	"time"

	"github.com/ava-labs/event-publisher/pkg/event"
)

// envelope is a queued event with the ID it keeps across retries. The body
// is serialized on first publish and reused afterwards.
type envelope struct {
	id         string
	event      event.Event
	acceptedAt time.Time
	body       []byte
}

func (e *envelope) payload() ([]byte, error) {
	if e.body != nil {
		return e.body, nil
	}
	b, err := event.Marshal(e.event)
	if err != nil {
		return nil, err
	}
	e.body = b
	return b, nil
}
