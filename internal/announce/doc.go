// Package announce implements a per-key coalescing pipeline for bursty
// announce messages.
//
// Each key owns a small queue with a trailing-edge debounce window, a hard
// capacity with a configurable drop policy, and a delivery mode: individual
// (one message per item) or collect (pending items merged into one message
// when they all target the same delivery surface).
//
// Delivery is best-effort: a failed send loses the item being sent. The
// pipeline bounds memory and burst rate, it does not guarantee delivery.
package announce
