// Package wire defines the JSON envelope spoken by the producer, the relay and the viewers.
// Both ends import these types; the mapping onto domain types happens only here.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/pscheid92/tilecast/internal/domain"
)

// legacyKind is the misspelled kind emitted by older producers. It is normalized on decode.
const legacyKind = "recommandations"

// Envelope is the top-level message.
type Envelope struct {
	Type string `json:"type"`
	Data *Data  `json:"data"`
}

// Data carries the payload body.
type Data struct {
	Recommendations []Recommendation `json:"recommendations"`
	Tehai           []string         `json:"tehai"`
	LastKawaTile    string           `json:"last_kawa_tile"`
}

// Recommendation is the wire form of a single recommendation.
// Action is either a named action or a tile identifier meaning "discard this tile".
type Recommendation struct {
	Action     string   `json:"action"`
	Confidence float64  `json:"confidence"`
	Consumed   []string `json:"consumed,omitempty"`
}

// Decode parses and validates an envelope.
func Decode(data []byte) (domain.Payload, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.Payload{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return FromEnvelope(env)
}

// FromEnvelope maps an already unmarshalled envelope onto a validated payload.
func FromEnvelope(env Envelope) (domain.Payload, error) {
	kind, err := parseKind(env.Type)
	if err != nil {
		return domain.Payload{}, err
	}
	if env.Data == nil {
		return domain.Payload{}, fmt.Errorf("%w: missing data", domain.ErrMalformedPayload)
	}

	p := domain.Payload{Kind: kind, LastDiscard: domain.Tile(env.Data.LastKawaTile)}

	if env.Data.Recommendations != nil {
		p.Recommendations = make([]domain.Recommendation, 0, len(env.Data.Recommendations))
	}
	for i, r := range env.Data.Recommendations {
		action, err := domain.ParseAction(r.Action)
		if err != nil {
			return domain.Payload{}, fmt.Errorf("recommendation %d: %w", i, err)
		}
		rec := domain.Recommendation{Action: action, Confidence: r.Confidence}
		if len(r.Consumed) > 0 {
			rec.ConsumedTiles = toTiles(r.Consumed)
		}
		p.Recommendations = append(p.Recommendations, rec)
	}
	if env.Data.Tehai != nil {
		p.Hand = toTiles(env.Data.Tehai)
	}

	if err := p.Validate(); err != nil {
		return domain.Payload{}, err
	}
	return p, nil
}

// Encode renders a payload as an envelope with the canonical kind.
func Encode(p domain.Payload) ([]byte, error) {
	data, err := json.Marshal(ToEnvelope(p))
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// ToEnvelope maps a payload onto its wire form.
func ToEnvelope(p domain.Payload) Envelope {
	d := &Data{
		Recommendations: make([]Recommendation, 0, len(p.Recommendations)),
		Tehai:           make([]string, 0, len(p.Hand)),
		LastKawaTile:    string(p.LastDiscard),
	}
	for _, rec := range p.Recommendations {
		r := Recommendation{Action: rec.Action.String(), Confidence: rec.Confidence}
		for _, t := range rec.ConsumedTiles {
			r.Consumed = append(r.Consumed, string(t))
		}
		d.Recommendations = append(d.Recommendations, r)
	}
	for _, t := range p.Hand {
		d.Tehai = append(d.Tehai, string(t))
	}
	return Envelope{Type: string(p.Kind), Data: d}
}

func parseKind(s string) (domain.Kind, error) {
	switch s {
	case string(domain.KindRecommendations), legacyKind:
		return domain.KindRecommendations, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownKind, s)
	}
}

func toTiles(in []string) []domain.Tile {
	out := make([]domain.Tile, len(in))
	for i, s := range in {
		out[i] = domain.Tile(s)
	}
	return out
}
