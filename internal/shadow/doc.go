// Package shadow implements the shadow synchronisation engine for shadowsync.
//
// A device keeps a set of local physical quantities (light colour, ambient
// temperature, switch states, motion alarms) mirrored to a remote shadow
// document, and accepts remote deltas that drive local actuators.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                          Engine                              │
//	│                                                              │
//	│  ┌────────────┐  ┌────────────┐  ┌────────────┐  ┌────────┐  │
//	│  │  Registry  │  │  Classify  │  │BuildReport │  │ApplyDel│  │
//	│  │(registry.go│  │ (status.go)│  │ (report.go)│  │(delta) │  │
//	│  └────────────┘  └────────────┘  └────────────┘  └────────┘  │
//	│          │                                          ▲        │
//	└──────────│──────────────────────────────────────────│────────┘
//	           ▼                                          │
//	┌──────────────────────────────────────────────────────────────┐
//	│                 Transport (internal/cloud)                   │
//	│     Init • Connect • Yield • Update • RegisterDelta          │
//	└──────────────────────────────────────────────────────────────┘
//
// # Bindings
//
// A Binding associates a shadow key with a Cell, a typed reference into
// application-owned state. The registry never owns the memory behind a
// cell; the application state struct must outlive it.
//
// # Poll Loop
//
// The engine is driven by a single goroutine:
//
//	for engine.IsAlive() {
//	    if engine.Poll() {
//	        time.Sleep(backoff)
//	        continue
//	    }
//	    refreshSensors()
//	    engine.SubmitReport(nil)
//	    time.Sleep(interval)
//	}
//	engine.Shutdown()
//
// Engine.Run implements this loop with context cancellation as the explicit
// shutdown request.
//
// # Thread Safety
//
// Registry, cells and handlers are confined to the poll goroutine. Acks and
// deltas are delivered by the transport from inside Yield, on that same
// goroutine. Snapshot and State are the only methods safe to call from other
// goroutines.
package shadow
