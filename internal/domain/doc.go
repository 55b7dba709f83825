// Package domain defines the core domain types and interfaces.
//
// Recommendation payloads, tiles and actions live here together with the sentinel errors and the small
// consumer-side interfaces shared between the relay and the viewer. No transport code.
package domain
