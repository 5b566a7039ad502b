// Package dispatch fans inbound events out to publishers.
//
// Fanout delivers every event to every registered listener. Scoped delivers
// an event only to listeners registered under the account the event is
// scoped to; registrations resolve their identity asynchronously and a
// listener whose identity cannot be resolved is never registered.
package dispatch
