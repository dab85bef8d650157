package kitchen

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
)

// tileSize is the edge length, in pixels, of one rendered grid cell
const tileSize = 48

// Tile fill colors
var tileColors = map[tile][3]float64{
	floorTile:   {0.93, 0.89, 0.80},
	counterTile: {0.55, 0.45, 0.35},
	onionTile:   {0.85, 0.75, 0.30},
	potTile:     {0.35, 0.35, 0.40},
	dishTile:    {0.75, 0.75, 0.78},
	serveTile:   {0.40, 0.65, 0.40},
}

// Player fill colors: the learning agent is blue, the partner red
var playerColors = [2][3]float64{
	{0.25, 0.45, 0.80},
	{0.80, 0.35, 0.30},
}

// Item marker colors
var itemColors = map[item][3]float64{
	onionItem: {0.90, 0.80, 0.25},
	dishItem:  {0.95, 0.95, 0.95},
	soupItem:  {0.85, 0.55, 0.20},
}

// Render draws the current state of the first environment instance to
// a PNG at path, creating parent directories as needed.
func (k *Kitchen) Render(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("render: could not create directory: %v",
				err)
		}
	}

	in := k.instances[0]
	dc := gg.NewContext(in.layout.cols*tileSize, in.layout.rows*tileSize)

	for r := 0; r < in.layout.rows; r++ {
		for c := 0; c < in.layout.cols; c++ {
			color := tileColors[in.layout.tiles[r][c]]
			dc.SetRGB(color[0], color[1], color[2])
			dc.DrawRectangle(float64(c*tileSize), float64(r*tileSize),
				tileSize, tileSize)
			dc.Fill()
		}
	}

	// Grid lines
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.SetLineWidth(1)
	for r := 0; r <= in.layout.rows; r++ {
		dc.DrawLine(0, float64(r*tileSize),
			float64(in.layout.cols*tileSize), float64(r*tileSize))
	}
	for c := 0; c <= in.layout.cols; c++ {
		dc.DrawLine(float64(c*tileSize), 0,
			float64(c*tileSize), float64(in.layout.rows*tileSize))
	}
	dc.Stroke()

	drawPot(dc, in)

	for i, p := range in.players {
		x := float64(p.col*tileSize) + tileSize/2
		y := float64(p.row*tileSize) + tileSize/2

		color := playerColors[i]
		dc.SetRGB(color[0], color[1], color[2])
		dc.DrawCircle(x, y, tileSize*0.35)
		dc.Fill()

		// Orientation tick
		dc.SetRGB(1, 1, 1)
		dx := float64(moveDeltas[p.dir][1]) * tileSize * 0.25
		dy := float64(moveDeltas[p.dir][0]) * tileSize * 0.25
		dc.DrawCircle(x+dx, y+dy, tileSize*0.08)
		dc.Fill()

		if p.held != noItem {
			color := itemColors[p.held]
			dc.SetRGB(color[0], color[1], color[2])
			dc.DrawCircle(x-tileSize*0.25, y-tileSize*0.25, tileSize*0.12)
			dc.Fill()
		}
	}

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("render: could not save image: %v", err)
	}
	return nil
}

// drawPot marks the pot's contents and cooking progress
func drawPot(dc *gg.Context, in *instance) {
	row, col := in.layout.pot[0], in.layout.pot[1]
	x := float64(col*tileSize) + tileSize/2
	y := float64(row*tileSize) + tileSize/2

	for onion := 0; onion < in.pot.contents; onion++ {
		color := itemColors[onionItem]
		if in.pot.ready() {
			color = itemColors[soupItem]
		}
		dc.SetRGB(color[0], color[1], color[2])
		dc.DrawCircle(x-tileSize*0.25+float64(onion)*tileSize*0.25, y,
			tileSize*0.1)
		dc.Fill()
	}

	if in.pot.cooking() {
		progress := 1.0 -
			float64(in.pot.timer)/float64(in.k.config.CookTime)
		dc.SetRGB(0.9, 0.3, 0.2)
		dc.DrawRectangle(float64(col*tileSize)+4,
			float64(row*tileSize)+tileSize-8,
			(tileSize-8)*progress, 4)
		dc.Fill()
	}
}
