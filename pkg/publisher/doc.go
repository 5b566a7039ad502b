// Package publisher delivers events to a broker at least once and in
// acceptance order.
//
// A Publisher owns a bounded queue, one publishing loop, one connection
// monitor and one session. Producers call OnEvent, which never blocks: the
// event is either queued or rejected. The loop takes events in order, waits
// while the session is not ready, and publishes. A failed publish pushes the
// event to the back of the queue; if the queue is full at that point the
// event is lost and logged with its payload.
//
// On Stop the loop exits without draining. An event it was holding goes back
// onto the queue, and events still queued are counted in a warning. They are
// published if the publisher is started again.
package publisher
