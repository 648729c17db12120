// Package async provides helpers for running background work safely.
//
// SafeGo replaces bare `go func()` calls with panic recovery, timeout
// enforcement, and structured error logging, so fire-and-forget work such as
// audit emission cannot crash the process or leak goroutines.
package async
