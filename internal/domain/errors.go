package domain

import "errors"

var (
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrUnknownKind        = errors.New("unknown payload kind")
	ErrRelayStopped       = errors.New("relay stopped")
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrReplicaIngest      = errors.New("ingest disabled on replica")
	ErrRelayFull          = errors.New("subscriber limit reached")
)
