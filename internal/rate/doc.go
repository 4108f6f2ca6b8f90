// Package rate throttles failed logins with Redis fixed-window counters.
//
// # Window semantics
//
// INCR + EXPIRE on the first hit of a window. Key prefixes (default "gl"):
//   - gl:u:<email>: failures per normalized email
//   - gl:ip:<ip>: failures per client IP, when IP throttling is enabled
//
// # What this package must NOT do
//
//   - Decide credential validity.
//   - Be imported outside the greenauth module.
package rate
