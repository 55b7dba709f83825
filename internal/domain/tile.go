package domain

import "fmt"

// Tile is a tile identifier such as "1m", "5pr" or "E".
// The identifier doubles as the key of the tile's image asset.
type Tile string

// NoTile marks an absent tile, e.g. a payload without a relevant last discard.
const NoTile Tile = ""

var honorTiles = map[Tile]struct{}{
	"E": {}, "S": {}, "W": {}, "N": {}, "P": {}, "F": {}, "C": {},
}

// ParseTile validates s as a tile identifier.
func ParseTile(s string) (Tile, error) {
	t := Tile(s)
	if !t.Valid() {
		return NoTile, fmt.Errorf("%w: invalid tile %q", ErrMalformedPayload, s)
	}
	return t, nil
}

// Valid reports whether t is a known tile identifier.
func (t Tile) Valid() bool {
	if _, ok := honorTiles[t]; ok {
		return true
	}
	switch len(t) {
	case 2:
		return t[0] >= '1' && t[0] <= '9' && isSuit(t[1])
	case 3:
		return t[0] == '5' && isSuit(t[1]) && t[2] == 'r'
	default:
		return false
	}
}

// Red reports whether t is a red five.
func (t Tile) Red() bool {
	return len(t) == 3 && t[2] == 'r'
}

// Rank returns the numeric value of a suited tile, or -1 for honors.
func (t Tile) Rank() int {
	if len(t) == 0 || t[0] < '1' || t[0] > '9' {
		return -1
	}
	return int(t[0] - '0')
}

func isSuit(b byte) bool {
	return b == 'm' || b == 'p' || b == 's'
}

// AllTiles lists every tile identifier, red fives included.
func AllTiles() []Tile {
	tiles := make([]Tile, 0, 37)
	for _, suit := range []string{"m", "p", "s"} {
		for n := 1; n <= 9; n++ {
			tiles = append(tiles, Tile(fmt.Sprintf("%d%s", n, suit)))
			if n == 5 {
				tiles = append(tiles, Tile("5"+suit+"r"))
			}
		}
	}
	return append(tiles, "E", "S", "W", "N", "P", "F", "C")
}
