// Package app holds the process-level use cases that sit between the relay
// and its producers: currently the mock ticker that feeds generated payloads
// into an ingester on a fixed cadence.
package app
