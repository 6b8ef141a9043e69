// Package model defines the boundary between the chat core and a language
// model backend.
//
// A Provider reports availability and creates Sessions. A Session is bound to
// one conversation and streams replies as a channel of Responses:
//
//   - EventSnapshot: Text replaces the reply so far
//   - EventDelta: Text is appended to the reply
//   - EventDone: the reply is complete; a non-empty Text is the final reply
//   - EventError: the reply failed
//
// Implementations live in subpackages: echo (local, no backend), gateway
// (a coven-gateway agent over HTTP/SSE with HTTP or gRPC health probes) and
// fake (scripted, for tests).
package model
