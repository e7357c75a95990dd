// Package api implements the HTTP REST API and WebSocket server for dpmcore.
//
// This package provides:
//   - REST endpoints to list devices, run transitions and read their history
//   - DVFS governor inspection and manual control
//   - WebSocket hub streaming transition, callback and DVFS events
//   - Prometheus /metrics and /live, /ready probes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server is a thin layer over dpm.Manager and dvfs.Governor. The Hub
// implements dpm.Sink, so every report emitted while a transition runs is
// broadcast to subscribed WebSocket clients on the "transition" or
// "callback" channel. Governor step changes go to the "dvfs" channel.
//
// When an MQTT client is supplied, the same operations are reachable through
// the dpmcore/command/{transition,dvfs} topics.
//
// # Graceful Degradation
//
// MQTT, the history store and the governor are optional. Endpoints that need
// a missing component answer 404 (governor) or an empty list (history).
package api
