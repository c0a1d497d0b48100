// Package journal persists shadow activity to SQLite.
//
// Applied deltas and report acknowledgements are written to the delta_log
// and ack_log tables. At startup the last applied value of every key is read
// back and restored into the device state, so desired values survive a
// restart even before the cloud sends a fresh delta.
//
// Journal implements shadow.Recorder. Its methods only enqueue; a single
// writer goroutine started by Start performs the inserts.
package journal
