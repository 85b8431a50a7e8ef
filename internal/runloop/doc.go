// Package runloop provides the control loop that owns all session state.
//
// Every mutation of protocol state happens as a task on one loop
// goroutine; HTTP handlers, timer callbacks and engine notifications
// post tasks instead of touching state directly, so none of them ever
// run concurrently with each other.
package runloop
