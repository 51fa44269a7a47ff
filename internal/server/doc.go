// Package server exposes the chatkit orchestrator over HTTP.
//
// # Endpoints
//
// Session lifecycle:
//
//	POST   /session                      create a session
//	GET    /session                      list history (live + stored)
//	GET    /session/{id}                 fetch one session, restoring it if needed
//	PATCH  /session/{id}                 rename a session
//	DELETE /session/{id}                 remove a session from history
//	DELETE /session                      clear all history
//
// Messaging:
//
//	POST   /session/{id}/message                   dispatch a request
//	POST   /session/{id}/message/{rid}/resend      resend a request
//	DELETE /session/{id}/message/{rid}             remove a request
//	POST   /session/{id}/abort                     cancel the in-flight request
//
// Transfers and agents:
//
//	POST   /transfer          record a cross-workspace transfer
//	POST   /transfer/claim    claim a waiting transfer
//	GET    /agent             list registered agents
//
// # Event streaming
//
// Change events are delivered over Server-Sent Events:
//
//	GET /event?sessionID=…   events for one session
//	GET /global/event        all events
//
// The SSE implementation is deliberately hand-rolled on the standard
// library: it is small, integrates directly with the internal event
// bus, and needs session-scoped filtering that generic SSE frameworks
// do not provide.
package server
