// Package queue provides a bounded, in-memory FIFO buffer that sits between
// event producers and a single background consumer.
//
// Offer never blocks. When the buffer is at capacity the newest item is
// rejected and the caller keeps it; older entries are never evicted. A run of
// consecutive rejections is a loss streak: its first rejection and every Nth
// one after that are logged at warn level, and the next accepted item ends the
// streak with a summary line.
//
// Take blocks until an item is available or the context is cancelled.
// Requeue puts an item back at the tail without touching the loss streak. It
// is meant for a consumer that failed to hand an item downstream.
package queue
