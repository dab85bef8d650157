package kitchen

import (
	"golang.org/x/exp/rand"

	"github.com/cooprl/cooppo/environment"
)

// Discrete actions of both players
const (
	ActNorth = iota
	ActSouth
	ActEast
	ActWest
	ActStay
	ActInteract

	NumActions
)

// potCapacity is the number of onions a soup needs
const potCapacity = 3

// obsFeatures is the length of a player's observation vector: per
// player the normalized position, orientation one-hot, and held-item
// one-hot, then the pot contents, cook progress, and readiness.
const obsFeatures = 2*(2+4+4) + 3

type tile byte

const (
	floorTile tile = iota
	counterTile
	onionTile
	potTile
	dishTile
	serveTile
)

type item byte

const (
	noItem item = iota
	onionItem
	dishItem
	soupItem
)

// moveDeltas maps the movement actions, which double as orientations,
// to row and column offsets.
var moveDeltas = [4][2]int{
	ActNorth: {-1, 0},
	ActSouth: {1, 0},
	ActEast:  {0, 1},
	ActWest:  {0, -1},
}

type player struct {
	row, col int
	dir      int
	held     item
}

// pot holds up to potCapacity onions and starts cooking when full
type pot struct {
	contents int
	timer    int
}

func (p *pot) cooking() bool {
	return p.contents == potCapacity && p.timer > 0
}

func (p *pot) ready() bool {
	return p.contents == potCapacity && p.timer == 0
}

// instance is one kitchen game. Player 0 is the learning agent and
// player 1 the partner.
type instance struct {
	k      *Kitchen
	layout *layout
	rng    *rand.Rand

	players [2]player
	pot     pot
	t       int

	// usingSelfPartner is drawn once per episode at reset
	usingSelfPartner bool

	// Episode return accumulators
	sparse    float64
	shaped    float64
	perceived float64
}

func newInstance(k *Kitchen, l *layout, rng *rand.Rand) *instance {
	in := &instance{k: k, layout: l, rng: rng}
	in.reset()
	return in
}

// reset starts a fresh episode and draws the episode's partner
func (in *instance) reset() {
	for i := range in.players {
		in.players[i] = player{
			row: in.layout.starts[i][0],
			col: in.layout.starts[i][1],
			dir: ActNorth,
		}
	}
	in.pot = pot{}
	in.t = 0
	in.sparse = 0
	in.shaped = 0
	in.perceived = 0
	in.usingSelfPartner = in.rng.Float64() < in.k.selfPlay
}

// step advances the game one tick: both players act, interactions
// resolve, and the pot cooks. It returns the agent's perceived reward
// and, when the episode just ended, its outcome record.
func (in *instance) step(agentAction int) (float64, bool,
	*environment.EpisodeInfo) {
	actions := [2]int{agentAction, in.partnerAction()}
	in.move(actions)

	var sparseDelta, shapedDelta float64
	for i := range in.players {
		if actions[i] != ActInteract {
			continue
		}
		s, sh := in.interact(i)
		sparseDelta += s
		shapedDelta += sh
	}

	if in.pot.cooking() {
		in.pot.timer--
	}

	reward := sparseDelta + in.k.rewardShaping*shapedDelta
	in.sparse += sparseDelta
	in.shaped += shapedDelta
	in.perceived += reward

	in.t++
	if in.t < in.k.config.Horizon {
		return reward, false, nil
	}

	info := &environment.EpisodeInfo{
		SparseReturn:    in.sparse,
		ShapedReturn:    in.shaped,
		PerceivedReturn: in.perceived,
		Length:          in.t,
	}
	in.reset()
	return reward, true, info
}

// partnerAction selects the partner's action for this tick
func (in *instance) partnerAction() int {
	if in.usingSelfPartner && in.k.selfPartner != nil {
		return in.k.selfPartner.Act(in.observe(1))
	}
	return in.scriptedAction()
}

// move resolves both players' actions simultaneously. Movement actions
// always update orientation; the move itself succeeds only onto floor
// tiles, and colliding or position-swapping moves leave both players
// in place.
func (in *instance) move(actions [2]int) {
	var targets [2][2]int

	for i, action := range actions {
		p := &in.players[i]
		targets[i] = [2]int{p.row, p.col}
		if action >= ActStay {
			continue
		}

		p.dir = action
		row := p.row + moveDeltas[action][0]
		col := p.col + moveDeltas[action][1]
		if in.layout.tiles[row][col] == floorTile {
			targets[i] = [2]int{row, col}
		}
	}

	collision := targets[0] == targets[1]
	swap := targets[0] == [2]int{in.players[1].row, in.players[1].col} &&
		targets[1] == [2]int{in.players[0].row, in.players[0].col}
	if collision || swap {
		return
	}

	for i := range in.players {
		in.players[i].row = targets[i][0]
		in.players[i].col = targets[i][1]
	}
}

// interact resolves an interact action of player i against the faced
// tile and returns the sparse and shaped rewards it earned.
func (in *instance) interact(i int) (sparse, shaped float64) {
	p := &in.players[i]
	row := p.row + moveDeltas[p.dir][0]
	col := p.col + moveDeltas[p.dir][1]

	switch in.layout.tiles[row][col] {
	case onionTile:
		if p.held == noItem {
			p.held = onionItem
		}

	case dishTile:
		if p.held == noItem {
			p.held = dishItem
			shaped += in.k.config.DishPickupReward
		}

	case potTile:
		if p.held == onionItem && in.pot.contents < potCapacity {
			p.held = noItem
			in.pot.contents++
			shaped += in.k.config.PottingReward
			if in.pot.contents == potCapacity {
				in.pot.timer = in.k.config.CookTime
			}
		} else if p.held == dishItem && in.pot.ready() {
			p.held = soupItem
			in.pot = pot{}
			shaped += in.k.config.SoupPickupReward
		}

	case serveTile:
		if p.held == soupItem {
			p.held = noItem
			sparse += in.k.config.DeliveryReward
		}
	}
	return sparse, shaped
}

// observe featurizes the game from player i's perspective: that
// player's features come first, the other player's second.
func (in *instance) observe(i int) []float64 {
	obs := make([]float64, 0, obsFeatures)
	obs = in.playerFeatures(obs, i)
	obs = in.playerFeatures(obs, 1-i)

	obs = append(obs, float64(in.pot.contents)/potCapacity)
	cookProgress := 0.0
	if in.pot.cooking() {
		cookProgress = 1.0 -
			float64(in.pot.timer)/float64(in.k.config.CookTime)
	}
	obs = append(obs, cookProgress)
	if in.pot.ready() {
		obs = append(obs, 1.0)
	} else {
		obs = append(obs, 0.0)
	}
	return obs
}

func (in *instance) playerFeatures(obs []float64, i int) []float64 {
	p := in.players[i]
	obs = append(obs,
		float64(p.row)/float64(in.layout.rows-1),
		float64(p.col)/float64(in.layout.cols-1),
	)
	for dir := 0; dir < 4; dir++ {
		if p.dir == dir {
			obs = append(obs, 1.0)
		} else {
			obs = append(obs, 0.0)
		}
	}
	for _, it := range []item{noItem, onionItem, dishItem, soupItem} {
		if p.held == it {
			obs = append(obs, 1.0)
		} else {
			obs = append(obs, 0.0)
		}
	}
	return obs
}

// scriptedAction drives the partner through the cooking cycle: fetch
// onions until the pot fills, fetch a dish while the soup cooks, pick
// the soup up, and deliver it.
func (in *instance) scriptedAction() int {
	held := in.players[1].held
	var target tile
	switch {
	case held == soupItem:
		target = serveTile
	case held == dishItem && in.pot.ready():
		target = potTile
	case held == dishItem:
		return ActStay
	case held == onionItem:
		target = potTile
	case in.pot.cooking() || in.pot.ready():
		target = dishTile
	default:
		target = onionTile
	}
	return in.approach(1, target)
}

// approach moves player i toward the nearest tile of the given type,
// returning ActInteract once the player faces it. The pathing is
// greedy and assumes kitchens without concave dead ends.
func (in *instance) approach(i int, target tile) int {
	p := in.players[i]
	tr, tc := in.nearest(target, p.row, p.col)

	faced := [2]int{p.row + moveDeltas[p.dir][0], p.col + moveDeltas[p.dir][1]}
	if faced == [2]int{tr, tc} {
		return ActInteract
	}

	best := ActStay
	bestDist := manhattan(p.row, p.col, tr, tc)
	for action := 0; action < 4; action++ {
		row := p.row + moveDeltas[action][0]
		col := p.col + moveDeltas[action][1]
		if row == tr && col == tc {
			// Turning toward the target lines up an interact next tick
			return action
		}
		if in.layout.tiles[row][col] != floorTile {
			continue
		}
		if d := manhattan(row, col, tr, tc); d < bestDist {
			bestDist = d
			best = action
		}
	}
	return best
}

// nearest returns the closest tile of the given type
func (in *instance) nearest(target tile, row, col int) (int, int) {
	bestRow, bestCol := -1, -1
	bestDist := in.layout.rows * in.layout.cols
	for r := 0; r < in.layout.rows; r++ {
		for c := 0; c < in.layout.cols; c++ {
			if in.layout.tiles[r][c] != target {
				continue
			}
			if d := manhattan(r, c, row, col); d < bestDist {
				bestDist = d
				bestRow, bestCol = r, c
			}
		}
	}
	return bestRow, bestCol
}

func manhattan(r1, c1, r2, c2 int) int {
	dr := r1 - r2
	if dr < 0 {
		dr = -dr
	}
	dc := c1 - c2
	if dc < 0 {
		dc = -dc
	}
	return dr + dc
}
