// Package mock generates plausible recommendation payloads for local development.
package mock

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/pscheid92/tilecast/internal/domain"
)

const handSize = 13

var (
	callActions  = []domain.NamedAction{domain.ActionChiLow, domain.ActionPon, domain.ActionKanSelect}
	otherActions = []string{
		"discard",
		string(domain.ActionChiLow), string(domain.ActionChiMid), string(domain.ActionChiHigh),
		string(domain.ActionPon), string(domain.ActionKanSelect), string(domain.ActionReach), string(domain.ActionNone),
	}
	suits = []byte{'m', 'p', 's'}
)

// Generator produces random payloads: a 13 tile hand and three or four
// recommendations, the first of which is always a call. Last discard and
// consumed tiles are kept consistent with the calls.
type Generator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	tiles []domain.Tile
	plain []domain.Tile
}

// NewGenerator seeds from rng, or from a random source when rng is nil.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	tiles := domain.AllTiles()
	plain := make([]domain.Tile, 0, len(tiles))
	for _, t := range tiles {
		if !t.Red() {
			plain = append(plain, t)
		}
	}
	return &Generator{rng: rng, tiles: tiles, plain: plain}
}

// Next returns a fresh, validated, sorted payload.
func (g *Generator) Next() domain.Payload {
	g.mu.Lock()
	defer g.mu.Unlock()

	hand := make([]domain.Tile, handSize)
	for i := range hand {
		hand[i] = g.pick(g.tiles)
	}

	p := domain.Payload{
		Kind:        domain.KindRecommendations,
		Hand:        hand,
		LastDiscard: g.pick(g.tiles),
	}

	n := 3 + g.rng.IntN(2)
	p.Recommendations = make([]domain.Recommendation, 0, n)
	for i := range n {
		kind := otherActions[g.rng.IntN(len(otherActions))]
		if i == 0 {
			kind = string(callActions[g.rng.IntN(len(callActions))])
		}
		p.Recommendations = append(p.Recommendations, g.recommendation(kind, &p))
	}

	p.SortRecommendations()
	return p
}

func (g *Generator) recommendation(kind string, p *domain.Payload) domain.Recommendation {
	rec := domain.Recommendation{Confidence: g.rng.Float64()}

	switch name := domain.NamedAction(kind); name {
	case domain.ActionChiLow, domain.ActionChiMid, domain.ActionChiHigh:
		rec.Action = domain.Named(name)
		suit := suits[g.rng.IntN(len(suits))]
		start := 1 + g.rng.IntN(7)
		t1, t2, t3 := suited(start, suit), suited(start+1, suit), suited(start+2, suit)
		switch name {
		case domain.ActionChiLow:
			p.LastDiscard, rec.ConsumedTiles = t3, []domain.Tile{t1, t2}
		case domain.ActionChiMid:
			p.LastDiscard, rec.ConsumedTiles = t2, []domain.Tile{t1, t3}
		default:
			p.LastDiscard, rec.ConsumedTiles = t1, []domain.Tile{t2, t3}
		}
	case domain.ActionPon:
		rec.Action = domain.Named(name)
		t := g.pick(g.plain)
		p.LastDiscard, rec.ConsumedTiles = t, []domain.Tile{t, t}
	case domain.ActionKanSelect:
		rec.Action = domain.Named(name)
		t := g.pick(g.plain)
		rec.ConsumedTiles = []domain.Tile{t, t, t}
	case domain.ActionReach, domain.ActionNone:
		rec.Action = domain.Named(name)
	default:
		rec.Action = domain.Discard(p.Hand[g.rng.IntN(len(p.Hand))])
	}
	return rec
}

func (g *Generator) pick(from []domain.Tile) domain.Tile {
	return from[g.rng.IntN(len(from))]
}

func suited(n int, suit byte) domain.Tile {
	return domain.Tile(fmt.Sprintf("%d%c", n, suit))
}
