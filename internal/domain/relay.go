package domain

import "context"

// Ingester accepts producer payloads.
type Ingester interface {
	Ingest(ctx context.Context, p Payload) error
}

// LatestSource returns the most recent payload, or ok=false when nothing was ingested yet.
type LatestSource interface {
	Peek() (p Payload, ok bool)
}
