// Package ws bridges sessions to browsers over WebSocket.
//
// The Hub owns the subscription state: for each session it keeps the
// set of connected clients and a single pump goroutine that drains the
// session's event channel and fans each event out to every subscriber.
// The Handler owns the per-connection protocol: upgrading the HTTP
// request, decoding control commands (send, interrupt, confirm,
// resize, ping), and running the gorilla read/write pumps with
// keepalive deadlines.
package ws
