package capture

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	"github.com/pscheid92/tilecast/internal/domain"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Rasterizer turns a surface into a Width x Height bitmap. A failed pass
// returns an error and no bitmap.
type Rasterizer interface {
	Rasterize(ctx context.Context, s Surface) (*image.RGBA, error)
}

// TileSource resolves tile images; nil means "draw nothing".
type TileSource interface {
	Tile(t domain.Tile) image.Image
}

const (
	margin      = 40
	titleTop    = 24
	titleScale  = 4
	rowTop      = 105
	rowHeight   = 180
	rowGap      = 10
	badgeWidth  = 160
	tileWidth   = 80
	tileHeight  = 106
	tileGap     = 10
	dividerW    = 4
	confScale   = 4
	confWidth   = 200
	borderWidth = 2
)

// Painter is the default Rasterizer. It draws with image/draw and scales the
// 7x13 bitmap font and the tile images with x/image.
type Painter struct {
	tiles TileSource
}

func NewPainter(tiles TileSource) *Painter {
	return &Painter{tiles: tiles}
}

func (p *Painter) Rasterize(ctx context.Context, s Surface) (*image.RGBA, error) {
	l := Arrange(s)
	dst := image.NewRGBA(image.Rect(0, 0, Width, Height))
	fill(dst, dst.Bounds(), l.Palette.Background)

	if l.Waiting {
		w := textWidth(l.Title, titleScale)
		drawText(dst, l.Title, (Width-w)/2, (Height-13*titleScale)/2, titleScale, l.Palette.Text)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return dst, nil
	}

	drawText(dst, l.Title, margin, titleTop, titleScale, l.Palette.Text)

	for i, row := range l.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		top := rowTop + i*(rowHeight+rowGap)
		p.drawRow(dst, image.Rect(margin/2, top, Width-margin/2, top+rowHeight), row, l.Palette)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return dst, nil
}

func (p *Painter) drawRow(dst *image.RGBA, r image.Rectangle, row Row, pal Palette) {
	fill(dst, r, pal.Border)
	fill(dst, r.Inset(borderWidth), pal.Card)

	badge := image.Rect(r.Min.X+margin, r.Min.Y+30, r.Min.X+margin+badgeWidth, r.Max.Y-30)
	fill(dst, badge, row.Badge)
	scale := max(1, min(4, (badgeWidth-16)/max(1, textWidth(row.Label, 1))))
	lw := textWidth(row.Label, scale)
	drawText(dst, row.Label, badge.Min.X+(badgeWidth-lw)/2, badge.Min.Y+(badge.Dy()-13*scale)/2, scale, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})

	tilesW := len(row.Tiles)*tileWidth + max(0, len(row.Tiles)-1)*tileGap
	if row.Separator >= 0 {
		tilesW += dividerW + tileGap
	}
	x := badge.Max.X + (r.Max.X-confWidth-margin-badge.Max.X-tilesW)/2
	y := r.Min.Y + (rowHeight-tileHeight)/2
	for i, t := range row.Tiles {
		if i == row.Separator {
			fill(dst, image.Rect(x, y+10, x+dividerW, y+tileHeight-10), pal.Divider)
			x += dividerW + tileGap
		}
		p.drawTile(dst, image.Rect(x, y, x+tileWidth, y+tileHeight), t, pal)
		x += tileWidth + tileGap
	}

	cw := textWidth(row.Confidence, confScale)
	drawText(dst, row.Confidence, r.Max.X-margin-cw, r.Min.Y+(rowHeight-13*confScale)/2, confScale, pal.Confidence)
}

func (p *Painter) drawTile(dst *image.RGBA, r image.Rectangle, t domain.Tile, pal Palette) {
	if p.tiles == nil {
		return
	}
	img := p.tiles.Tile(t)
	if img == nil || !drawableTile(img.Bounds()) {
		return
	}
	fill(dst, r, pal.Border)
	fill(dst, r.Inset(borderWidth), color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	xdraw.CatmullRom.Scale(dst, r.Inset(borderWidth), img, img.Bounds(), xdraw.Over, nil)
}

// maxTileSide bounds the source images the scaler accepts. Unbounded sources
// such as image.Uniform report huge bounds and draw nothing.
const maxTileSide = 4096

func drawableTile(b image.Rectangle) bool {
	return !b.Empty() && b.Dx() <= maxTileSide && b.Dy() <= maxTileSide
}

func fill(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func textWidth(s string, scale int) int {
	return font.MeasureString(basicfont.Face7x13, s).Ceil() * scale
}

// drawText renders s at its native size and scales it up onto dst with its
// top-left corner at (x, y).
func drawText(dst *image.RGBA, s string, x, y, scale int, c color.Color) {
	w := textWidth(s, 1)
	if w == 0 {
		return
	}
	face := basicfont.Face7x13
	glyphs := image.NewRGBA(image.Rect(0, 0, w, face.Height))
	d := font.Drawer{
		Dst:  glyphs,
		Src:  &image.Uniform{C: c},
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(s)

	target := image.Rect(x, y, x+w*scale, y+face.Height*scale)
	xdraw.NearestNeighbor.Scale(dst, target, glyphs, glyphs.Bounds(), xdraw.Over, nil)
}
