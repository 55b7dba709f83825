package domain

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Kind tags a payload variant.
type Kind string

const (
	KindRecommendations Kind = "recommendations"

	// MaxHandSize bounds the number of tiles in a hand.
	MaxHandSize = 14
	// MaxSurfaced is how many recommendations a renderer shows.
	MaxSurfaced = 3
)

// Recommendation is one suggested action with its confidence.
type Recommendation struct {
	Action        Action
	Confidence    float64
	ConsumedTiles []Tile
}

// Payload is the unit distributed from the producer to every viewer.
// Recommendations are ordered by descending confidence.
type Payload struct {
	Kind            Kind
	Recommendations []Recommendation
	Hand            []Tile
	LastDiscard     Tile
}

// Validate checks the payload invariants except ordering, which SortRecommendations establishes.
func (p Payload) Validate() error {
	if p.Kind != KindRecommendations {
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
	if len(p.Hand) > MaxHandSize {
		return fmt.Errorf("%w: hand has %d tiles, at most %d allowed", ErrMalformedPayload, len(p.Hand), MaxHandSize)
	}
	for _, t := range p.Hand {
		if !t.Valid() {
			return fmt.Errorf("%w: invalid hand tile %q", ErrMalformedPayload, t)
		}
	}
	if p.LastDiscard != NoTile && !p.LastDiscard.Valid() {
		return fmt.Errorf("%w: invalid last discard %q", ErrMalformedPayload, p.LastDiscard)
	}
	for i, rec := range p.Recommendations {
		if err := rec.validate(); err != nil {
			return fmt.Errorf("recommendation %d: %w", i, err)
		}
	}
	return nil
}

func (r Recommendation) validate() error {
	if r.Action.IsZero() {
		return fmt.Errorf("%w: missing action", ErrMalformedPayload)
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformedPayload, r.Confidence)
	}
	if len(r.ConsumedTiles) == 0 {
		return nil
	}
	if want := r.Action.ConsumedCount(); len(r.ConsumedTiles) != want {
		return fmt.Errorf("%w: action %s consumes %d tiles, got %d", ErrMalformedPayload, r.Action, want, len(r.ConsumedTiles))
	}
	for _, t := range r.ConsumedTiles {
		if !t.Valid() {
			return fmt.Errorf("%w: invalid consumed tile %q", ErrMalformedPayload, t)
		}
	}
	return nil
}

// Sorted reports whether recommendations are in non-increasing confidence order.
func (p Payload) Sorted() bool {
	return sort.SliceIsSorted(p.Recommendations, func(i, j int) bool {
		return p.Recommendations[i].Confidence > p.Recommendations[j].Confidence
	})
}

// SortRecommendations orders recommendations by descending confidence, keeping ties stable.
func (p *Payload) SortRecommendations() {
	sort.SliceStable(p.Recommendations, func(i, j int) bool {
		return p.Recommendations[i].Confidence > p.Recommendations[j].Confidence
	})
}

// Top returns at most n leading recommendations.
func (p Payload) Top(n int) []Recommendation {
	if len(p.Recommendations) < n {
		return p.Recommendations
	}
	return p.Recommendations[:n]
}

// Clone returns a deep copy. Nil and empty slices are preserved as they are.
func (p Payload) Clone() Payload {
	out := p
	out.Hand = slices.Clone(p.Hand)
	if p.Recommendations != nil {
		out.Recommendations = make([]Recommendation, len(p.Recommendations))
		for i, rec := range p.Recommendations {
			rec.ConsumedTiles = slices.Clone(rec.ConsumedTiles)
			out.Recommendations[i] = rec
		}
	}
	return out
}

// SortedByRank returns tiles ordered by numeric rank; honors (rank -1) sort first.
func SortedByRank(tiles []Tile) []Tile {
	out := slices.Clone(tiles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out
}
