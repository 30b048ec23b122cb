// Package watcher runs the poll loop: fetch the latest homework status,
// compare it to the last delivered one, notify on change, sleep until the
// next schedule activation, repeat.
//
// Cycles are strictly sequential. Errors never stop the loop: they are logged
// and forwarded to the chat once per distinct message until the next
// successful poll.
package watcher
