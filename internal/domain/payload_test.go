package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() Payload {
	return Payload{
		Kind: KindRecommendations,
		Recommendations: []Recommendation{
			{Action: Named(ActionPon), Confidence: 0.9, ConsumedTiles: []Tile{"5p", "5p"}},
			{Action: Named(ActionReach), Confidence: 0.4},
		},
		Hand:        []Tile{"1m", "2m", "3m", "4p", "5p", "5p", "7s", "8s", "9s", "E", "E", "C", "C"},
		LastDiscard: "5p",
	}
}

func TestPayload_Validate(t *testing.T) {
	require.NoError(t, validPayload().Validate())

	empty := Payload{Kind: KindRecommendations, Recommendations: []Recommendation{}}
	require.NoError(t, empty.Validate(), "empty recommendations are valid")
}

func TestPayload_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Payload)
		target error
	}{
		{"unknown kind", func(p *Payload) { p.Kind = "recommandations" }, ErrUnknownKind},
		{"empty kind", func(p *Payload) { p.Kind = "" }, ErrUnknownKind},
		{"hand too large", func(p *Payload) {
			p.Hand = append(p.Hand, "1s", "2s")
		}, ErrMalformedPayload},
		{"bad hand tile", func(p *Payload) { p.Hand[0] = "0m" }, ErrMalformedPayload},
		{"bad last discard", func(p *Payload) { p.LastDiscard = "Z" }, ErrMalformedPayload},
		{"confidence above one", func(p *Payload) { p.Recommendations[0].Confidence = 1.5 }, ErrMalformedPayload},
		{"negative confidence", func(p *Payload) { p.Recommendations[1].Confidence = -0.1 }, ErrMalformedPayload},
		{"nan confidence", func(p *Payload) { p.Recommendations[1].Confidence = math.NaN() }, ErrMalformedPayload},
		{"missing action", func(p *Payload) { p.Recommendations[1].Action = Action{} }, ErrMalformedPayload},
		{"wrong consumed count", func(p *Payload) {
			p.Recommendations[0].ConsumedTiles = []Tile{"5p"}
		}, ErrMalformedPayload},
		{"consumed on non-call", func(p *Payload) {
			p.Recommendations[1].ConsumedTiles = []Tile{"5p", "5p"}
		}, ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), err.Error())
		})
	}
}

func TestPayload_SortRecommendations(t *testing.T) {
	p := Payload{Kind: KindRecommendations, Recommendations: []Recommendation{
		{Action: Named(ActionReach), Confidence: 0.2},
		{Action: Discard("1m"), Confidence: 0.7},
		{Action: Named(ActionNone), Confidence: 0.2},
		{Action: Named(ActionPon), Confidence: 0.9},
	}}
	assert.False(t, p.Sorted())

	p.SortRecommendations()

	assert.True(t, p.Sorted())
	got := make([]string, 0, len(p.Recommendations))
	for _, rec := range p.Recommendations {
		got = append(got, rec.Action.String())
	}
	assert.Equal(t, []string{"pon", "1m", "reach", "none"}, got, "ties keep their original order")
}

func TestPayload_Top(t *testing.T) {
	p := validPayload()
	assert.Len(t, p.Top(MaxSurfaced), 2)

	p.Recommendations = append(p.Recommendations,
		Recommendation{Action: Named(ActionNone), Confidence: 0.1},
		Recommendation{Action: Discard("9s"), Confidence: 0.05},
	)
	top := p.Top(MaxSurfaced)
	assert.Len(t, top, 3)
	assert.Len(t, p.Recommendations, 4, "full sequence stays in the payload")
}

func TestPayload_CloneIsDeep(t *testing.T) {
	p := validPayload()
	c := p.Clone()
	assert.Equal(t, p, c)

	c.Hand[0] = "9m"
	c.Recommendations[0].ConsumedTiles[0] = "1s"
	assert.Equal(t, Tile("1m"), p.Hand[0])
	assert.Equal(t, Tile("5p"), p.Recommendations[0].ConsumedTiles[0])

	var nilHand Payload
	assert.Nil(t, nilHand.Clone().Hand)
	assert.Nil(t, nilHand.Clone().Recommendations)
}

func TestTheme(t *testing.T) {
	assert.Equal(t, ThemeDark, ParseTheme("dark"))
	assert.Equal(t, ThemeSystem, ParseTheme("bogus"))
	assert.Equal(t, ThemeLight, ThemeSystem.Resolve(ThemeLight))
	assert.Equal(t, ThemeDark, ThemeSystem.Resolve(ThemeSystem))
	assert.Equal(t, ThemeLight, ThemeLight.Resolve(ThemeDark))
}
