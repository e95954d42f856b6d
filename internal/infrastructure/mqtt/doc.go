// Package mqtt provides MQTT client connectivity for ESP-RFID Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is the message bus connecting the manager to the ESP-RFID devices
// and to the Home Assistant hub. Devices publish telemetry and card scans
// under a configurable base topic; the manager publishes commands back and
// mirrors state to the hub's discovery topics.
//
//	ESP-RFID devices ↔ MQTT Broker ↔ ESP-RFID Core ↔ Home Assistant
//
// # Delivery Semantics
//
// The bus is at-most-once from the manager's perspective: messages are not
// redelivered on handler failure, and outbound publishes are fire-and-forget
// beyond the broker acknowledgment. Callers get a success/failure result for
// the publish itself and nothing more.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Base: cfg.Manager.BaseTopic}
//	err = client.Subscribe(topics.AllDeviceSend(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
