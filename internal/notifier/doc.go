// Package notifier delivers digests to chat destinations.
//
// A destination is a plain string. The Service picks the first registered
// Transport that accepts it (a Jandi incoming webhook URL, or "telegram:{chat_id}")
// and delivers synchronously, so the calling task knows whether its digest went
// out before it persists anything.
//
// # Throttling
//
// All sends share one token bucket. Tasks that fire on the same minute queue up
// behind it instead of bursting the webhook endpoints.
//
// # History
//
// For operator visibility the service keeps a small in-memory history of recent
// deliveries, successful or not.
package notifier
