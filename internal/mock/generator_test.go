package mock

import (
	"math/rand/v2"
	"testing"

	"github.com/pscheid92/tilecast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_PayloadsAreValid(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewPCG(1, 2)))

	for range 500 {
		p := g.Next()

		require.NoError(t, p.Validate())
		assert.Equal(t, domain.KindRecommendations, p.Kind)
		assert.Len(t, p.Hand, handSize)
		assert.GreaterOrEqual(t, len(p.Recommendations), 3)
		assert.LessOrEqual(t, len(p.Recommendations), 4)
		assert.True(t, p.Sorted(), "recommendations must be sorted by confidence")
	}
}

func TestGenerator_AlwaysContainsACall(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewPCG(3, 4)))

	for range 200 {
		p := g.Next()

		calls := 0
		for _, rec := range p.Recommendations {
			switch rec.Action.Name() {
			case domain.ActionChiLow, domain.ActionPon, domain.ActionKanSelect:
				calls++
			}
		}
		assert.Positive(t, calls)
	}
}

func TestGenerator_CallTilesAreConsistent(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewPCG(5, 6)))

	for range 500 {
		p := g.Next()
		for _, rec := range p.Recommendations {
			switch rec.Action.Name() {
			case domain.ActionPon:
				require.Len(t, rec.ConsumedTiles, 2)
				assert.Equal(t, rec.ConsumedTiles[0], rec.ConsumedTiles[1])
				assert.False(t, rec.ConsumedTiles[0].Red())
			case domain.ActionKanSelect:
				require.Len(t, rec.ConsumedTiles, 3)
			case domain.ActionChiLow, domain.ActionChiMid, domain.ActionChiHigh:
				require.Len(t, rec.ConsumedTiles, 2)
				assert.Less(t, rec.ConsumedTiles[0].Rank(), rec.ConsumedTiles[1].Rank())
			case "":
				assert.Contains(t, p.Hand, rec.Action.DiscardTile())
			}
		}
	}
}

func TestGenerator_DeterministicWithSeed(t *testing.T) {
	a := NewGenerator(rand.New(rand.NewPCG(7, 8))).Next()
	b := NewGenerator(rand.New(rand.NewPCG(7, 8))).Next()

	assert.Equal(t, a, b)
}

func TestGenerator_NilSource(t *testing.T) {
	p := NewGenerator(nil).Next()
	assert.NoError(t, p.Validate())
}
