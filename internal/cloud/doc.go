// Package cloud implements the device shadow session over MQTT.
//
// A Session publishes reported-state documents to the shadow update topic,
// matches accepted/rejected responses to submissions by client token, and
// routes delta documents to per-key handlers. It satisfies shadow.Transport,
// so the engine drives it through Init, Connect, Yield, RegisterDelta,
// Update and Disconnect.
//
// Message handling is split in two. paho callbacks copy each payload onto a
// bounded queue and return. Yield drains the queue on the caller's goroutine,
// so ack and delta callbacks never race with the engine.
//
// Usage:
//
//	session := cloud.NewSession(cloud.OptionsFromConfig(cfg))
//	engine, err := shadow.NewEngine(shadow.Options{Transport: session})
package cloud
