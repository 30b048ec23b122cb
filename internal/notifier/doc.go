// Package notifier delivers chat notifications: status-change messages and
// error reports produced by the poll loop.
//
// # Delivery
//
// Notify is synchronous. Each attempt waits on a token-bucket limiter, runs
// under a per-attempt timeout and failed attempts are retried with jittered
// exponential backoff. When every attempt fails Notify returns *DeliveryError.
//
// # Transport
//
// The service delegates delivery to a transport.Sender (the Telegram adapter in
// production), so formatting and throttling policy live here while the poll
// loop stays platform-agnostic.
//
// # History
//
// For debugging and operator visibility, the service keeps a small in-memory
// history of delivered notifications and optionally journals every outcome.
package notifier
