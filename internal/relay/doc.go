// Package relay connects bridge sessions to the Gray Logic MQTT bus.
//
// For every registered session the relay:
//   - republishes inbound push events to graylogic/event/whatsapp/{session}/{kind}
//   - publishes status transitions retained to graylogic/status/whatsapp/{session}
//   - executes send commands arriving on graylogic/command/whatsapp/{session}/send
//     and acknowledges them on graylogic/ack/whatsapp/{session}
//
// A health reporter publishes retained bridge health to
// graylogic/health/whatsapp at a fixed interval, degrading when the MQTT
// connection or any session's push channel is down.
//
// Thread Safety: all exported methods are safe for concurrent use.
package relay
