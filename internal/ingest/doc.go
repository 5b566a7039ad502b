// Package ingest exposes an HTTP API that turns POSTed JSON documents into
// events and hands them to the publishers.
//
//	POST /events                 every publisher without a listenAs identity
//	POST /users/{user}/events    publishers listening as that user
//
// The body must be a JSON object with a non-empty string "type" field. A
// request is answered 202 once the event has been handed to the in-memory
// queues; "accepted" counts the publishers that queued it.
package ingest
