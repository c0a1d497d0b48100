// Package mqtt provides MQTT client connectivity for shadowsync.
//
// This package manages:
//   - Connection to the shadow service broker with auto-reconnect
//   - Mutual TLS from root CA, client certificate and private key files
//   - Message publishing with QoS guarantees
//   - Topic subscriptions restored after reconnects
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The client is the network half of the shadow session in internal/cloud.
// It knows nothing about shadow documents; it moves bytes between topics
// and handlers.
//
//	shadow.Engine ↔ cloud.Session ↔ mqtt.Client ↔ Broker
//
// # Security Considerations
//
//   - Production brokers require mutual TLS (mqtt.tls.enabled=true)
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx, "", 0); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Prefix: "$aws"}
//	err = client.Subscribe(topics.ShadowUpdateDelta("lab-board-7"), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
package mqtt
