package capture

import (
	"fmt"
	"image/color"

	"github.com/pscheid92/tilecast/internal/domain"
)

const (
	Width  = 1200
	Height = 675

	maxRows      = 3
	title        = "Recommendations"
	waitingTitle = "Waiting for data..."
)

// Surface is what gets rasterized: the payload, or nil while there is none,
// and a resolved light or dark theme.
type Surface struct {
	Payload *domain.Payload
	Theme   domain.Theme
}

// NewSurface resolves theme against the system preference.
func NewSurface(p *domain.Payload, theme, system domain.Theme) Surface {
	return Surface{Payload: p, Theme: theme.Resolve(system)}
}

// Equal reports whether two surfaces would rasterize identically.
func (s Surface) Equal(o Surface) bool {
	if s.Theme != o.Theme || (s.Payload == nil) != (o.Payload == nil) {
		return false
	}
	if s.Payload == nil {
		return true
	}
	a, b := *s.Payload, *o.Payload
	if a.LastDiscard != b.LastDiscard || len(a.Recommendations) != len(b.Recommendations) || len(a.Hand) != len(b.Hand) {
		return false
	}
	for i := range a.Hand {
		if a.Hand[i] != b.Hand[i] {
			return false
		}
	}
	for i := range a.Recommendations {
		ra, rb := a.Recommendations[i], b.Recommendations[i]
		if ra.Action != rb.Action || ra.Confidence != rb.Confidence || len(ra.ConsumedTiles) != len(rb.ConsumedTiles) {
			return false
		}
		for j := range ra.ConsumedTiles {
			if ra.ConsumedTiles[j] != rb.ConsumedTiles[j] {
				return false
			}
		}
	}
	return true
}

// Layout is the renderer-independent description of one frame.
type Layout struct {
	Title   string
	Waiting bool
	Palette Palette
	Rows    []Row
}

// Row is one recommendation. Separator is the index in Tiles before which a
// divider is drawn, or -1.
type Row struct {
	Label      string
	Badge      color.RGBA
	Tiles      []domain.Tile
	Separator  int
	Confidence string
}

type Palette struct {
	Background color.RGBA
	Card       color.RGBA
	Border     color.RGBA
	Text       color.RGBA
	Confidence color.RGBA
	Divider    color.RGBA
}

var (
	lightPalette = Palette{
		Background: rgb(0xffffff), Card: rgb(0xf4f4f5), Border: rgb(0xd4d4d8),
		Text: rgb(0x18181b), Confidence: rgb(0x22d3ee), Divider: rgb(0xa1a1aa),
	}
	darkPalette = Palette{
		Background: rgb(0x09090b), Card: rgb(0x18181b), Border: rgb(0x3f3f46),
		Text: rgb(0xfafafa), Confidence: rgb(0x22d3ee), Divider: rgb(0x52525b),
	}

	discardBadge = map[domain.Theme]color.RGBA{
		domain.ThemeLight: rgb(0x71717a),
		domain.ThemeDark:  rgb(0x3f3f46),
	}

	badges = map[domain.NamedAction]struct {
		label string
		color color.RGBA
	}{
		domain.ActionHora:      {"Hora", rgb(0xc13535)},
		domain.ActionReach:     {"Reach", rgb(0xe06c20)},
		domain.ActionPon:       {"Pon", rgb(0x007fff)},
		domain.ActionChiLow:    {"Chi", rgb(0x00ff80)},
		domain.ActionChiMid:    {"Chi", rgb(0x00ff80)},
		domain.ActionChiHigh:   {"Chi", rgb(0x00ff80)},
		domain.ActionKanSelect: {"Kan", rgb(0x9a1cbd)},
		domain.ActionNukidora:  {"Nukidora", rgb(0xd5508d)},
		domain.ActionRyukyoku:  {"Ryukyoku", rgb(0x8574a1)},
		domain.ActionNone:      {"Skip", rgb(0xa0a0a0)},
	}
)

func rgb(hex uint32) color.RGBA {
	return color.RGBA{R: uint8(hex >> 16), G: uint8(hex >> 8), B: uint8(hex), A: 0xff}
}

// Arrange lays out s: the title, then at most the three most confident recommendations.
func Arrange(s Surface) Layout {
	palette := darkPalette
	if s.Theme == domain.ThemeLight {
		palette = lightPalette
	}
	if s.Payload == nil {
		return Layout{Title: waitingTitle, Waiting: true, Palette: palette}
	}

	top := s.Payload.Top(maxRows)
	l := Layout{Title: title, Palette: palette, Rows: make([]Row, 0, len(top))}
	for _, rec := range top {
		l.Rows = append(l.Rows, arrangeRow(rec, s.Payload.LastDiscard, s.Theme))
	}
	return l
}

func arrangeRow(rec domain.Recommendation, lastDiscard domain.Tile, theme domain.Theme) Row {
	row := Row{Separator: -1, Confidence: fmt.Sprintf("%.2f%%", rec.Confidence*100)}

	if rec.Action.IsDiscard() {
		row.Label = "Discard"
		row.Badge = discardBadge[theme]
		row.Tiles = []domain.Tile{rec.Action.DiscardTile()}
		return row
	}

	b := badges[rec.Action.Name()]
	row.Label, row.Badge = b.label, b.color
	if rec.Action.IsCall() && len(rec.ConsumedTiles) > 0 {
		row.Tiles = append([]domain.Tile{lastDiscard}, domain.SortedByRank(rec.ConsumedTiles)...)
		row.Separator = 1
	}
	return row
}
