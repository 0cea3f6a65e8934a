// Package mqtt provides MQTT client connectivity for the WhatsApp bridge.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Gray Logic uses MQTT as the internal message bus connecting the Core
// to protocol bridges. This bridge publishes WhatsApp session events and
// status onto the bus and consumes send commands from Core.
//
//	Gray Logic Core ↔ MQTT Broker ↔ whatsapp-bridge (this service)
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to send commands for all sessions
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a session event
//	topic := mqtt.Topics{}.Event("wa-main", "message")
//	client.Publish(topic, payload, 1, false)
package mqtt
