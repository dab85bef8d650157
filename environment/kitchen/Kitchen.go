// Package kitchen implements a two-agent cooperative cooking
// gridworld. The learning agent and a partner move around a shared
// kitchen, fetch onions, cook soups in pots, and deliver them at a
// serving window. Deliveries earn a sparse team reward; intermediate
// cooking progress earns shaped rewards that the training curriculum
// anneals away.
//
// The partner of each episode is drawn at reset time: with probability
// equal to the current self-play randomization ratio it is the
// configured self-play partner, otherwise the scripted partner.
package kitchen

import (
	"fmt"
	"strings"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/cooprl/cooppo/environment"
)

// DefaultLayout is a small kitchen with one pot, two onion dispensers,
// a dish dispenser, and a serving window. Digits mark the player start
// positions.
const DefaultLayout = `XXXPX
O 2 O
X 1 X
XXDSX`

// Config implements a configuration of a vectorized kitchen
// environment.
type Config struct {
	// Layout is the kitchen map: X counter, O onion dispenser, P pot,
	// D dish dispenser, S serving window, space floor, 1 and 2 the
	// player start positions.
	Layout string

	NumEnvs int

	// Horizon is the episode length in steps
	Horizon int

	// CookTime is the number of steps a full pot cooks before the
	// soup can be picked up.
	CookTime int

	// DeliveryReward is the sparse team reward per delivered soup
	DeliveryReward float64

	// PottingReward, DishPickupReward, and SoupPickupReward are the
	// shaped rewards for intermediate cooking progress.
	PottingReward    float64
	DishPickupReward float64
	SoupPickupReward float64

	Seed uint64
}

// DefaultConfig returns a Config with the standard kitchen settings
func DefaultConfig() Config {
	return Config{
		Layout:           DefaultLayout,
		NumEnvs:          8,
		Horizon:          400,
		CookTime:         20,
		DeliveryReward:   20.0,
		PottingReward:    3.0,
		DishPickupReward: 3.0,
		SoupPickupReward: 5.0,
	}
}

// Validate returns an error describing the first illegal field of the
// Config, if any.
func (c Config) Validate() error {
	if c.NumEnvs <= 0 {
		return fmt.Errorf("validate: need at least 1 environment "+
			"instance, have %d", c.NumEnvs)
	}
	if c.Horizon <= 0 {
		return fmt.Errorf("validate: episode horizon must be positive, "+
			"got %d", c.Horizon)
	}
	if c.CookTime <= 0 {
		return fmt.Errorf("validate: cook time must be positive, got %d",
			c.CookTime)
	}
	if c.DeliveryReward < 0 || c.PottingReward < 0 ||
		c.DishPickupReward < 0 || c.SoupPickupReward < 0 {
		return fmt.Errorf("validate: rewards cannot be negative")
	}
	if _, err := parseLayout(c.Layout); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	return nil
}

// layout is a parsed kitchen map
type layout struct {
	tiles  [][]tile
	rows   int
	cols   int
	starts [2][2]int
	pot    [2]int
}

// parseLayout validates and parses a kitchen map
func parseLayout(text string) (*layout, error) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) < 3 {
		return nil, fmt.Errorf("parselayout: layout needs at least 3 "+
			"rows, have %d", len(lines))
	}

	l := &layout{rows: len(lines), cols: len(lines[0])}
	l.tiles = make([][]tile, l.rows)

	var starts, pots, onions, dishes, serves int
	for r, line := range lines {
		if len(line) != l.cols {
			return nil, fmt.Errorf("parselayout: row %d has %d columns, "+
				"want %d", r, len(line), l.cols)
		}

		l.tiles[r] = make([]tile, l.cols)
		for c, ch := range line {
			switch ch {
			case 'X':
				l.tiles[r][c] = counterTile
			case ' ':
				l.tiles[r][c] = floorTile
			case 'O':
				l.tiles[r][c] = onionTile
				onions++
			case 'P':
				l.tiles[r][c] = potTile
				l.pot = [2]int{r, c}
				pots++
			case 'D':
				l.tiles[r][c] = dishTile
				dishes++
			case 'S':
				l.tiles[r][c] = serveTile
				serves++
			case '1', '2':
				l.tiles[r][c] = floorTile
				l.starts[ch-'1'] = [2]int{r, c}
				starts++
			default:
				return nil, fmt.Errorf("parselayout: illegal tile %q at "+
					"row %d column %d", ch, r, c)
			}
		}
	}

	if starts != 2 {
		return nil, fmt.Errorf("parselayout: need exactly 2 player "+
			"starts, have %d", starts)
	}
	if pots != 1 {
		return nil, fmt.Errorf("parselayout: need exactly 1 pot, have %d",
			pots)
	}
	if onions == 0 || dishes == 0 || serves == 0 {
		return nil, fmt.Errorf("parselayout: layout needs an onion " +
			"dispenser, a dish dispenser, and a serving window")
	}

	// Interaction targets the cell a player faces, so playable tiles
	// must not touch the map edge.
	for c := 0; c < l.cols; c++ {
		if l.tiles[0][c] == floorTile || l.tiles[l.rows-1][c] == floorTile {
			return nil, fmt.Errorf("parselayout: floor on the map edge")
		}
	}
	for r := 0; r < l.rows; r++ {
		if l.tiles[r][0] == floorTile || l.tiles[r][l.cols-1] == floorTile {
			return nil, fmt.Errorf("parselayout: floor on the map edge")
		}
	}
	return l, nil
}

// Kitchen is a vectorized kitchen environment
type Kitchen struct {
	config    Config
	layout    *layout
	instances []*instance

	rewardShaping float64
	selfPlay      float64

	selfPartner PartnerPolicy
}

// New returns a new vectorized Kitchen. The scripted partner is built
// in; a self-play partner can be attached with SetSelfPartner.
func New(c Config) (*Kitchen, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid configuration: %v", err)
	}

	l, err := parseLayout(c.Layout)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	k := &Kitchen{
		config:        c,
		layout:        l,
		rewardShaping: 1.0,
		selfPlay:      1.0,
	}
	k.instances = make([]*instance, c.NumEnvs)
	for e := range k.instances {
		k.instances[e] = newInstance(k, l,
			rand.New(rand.NewSource(c.Seed+uint64(e))))
	}
	return k, nil
}

// SetSelfPartner attaches the policy that plays the partner seat in
// self-play episodes. Until one is attached, self-play episodes fall
// back to the scripted partner.
func (k *Kitchen) SetSelfPartner(p PartnerPolicy) {
	k.selfPartner = p
}

// NumEnvs returns the number of environment instances
func (k *Kitchen) NumEnvs() int {
	return k.config.NumEnvs
}

// ObservationSize returns the length of the observation vector
func (k *Kitchen) ObservationSize() int {
	return obsFeatures
}

// NumActions returns the number of discrete actions
func (k *Kitchen) NumActions() int {
	return NumActions
}

// Reset resets every instance and returns the initial observations
func (k *Kitchen) Reset() *mat.Dense {
	obs := mat.NewDense(k.config.NumEnvs, obsFeatures, nil)
	for e, inst := range k.instances {
		inst.reset()
		obs.SetRow(e, inst.observe(0))
	}
	return obs
}

// Step applies one learning-agent action per instance. Instances whose
// episodes end reset automatically; their outcome is reported through
// the returned EpisodeInfo entries.
func (k *Kitchen) Step(actions *mat.VecDense) (*mat.Dense, []float64,
	[]bool, []*environment.EpisodeInfo, error) {
	if actions.Len() != k.config.NumEnvs {
		return nil, nil, nil, nil, fmt.Errorf("step: have %d actions, "+
			"want %d", actions.Len(), k.config.NumEnvs)
	}

	obs := mat.NewDense(k.config.NumEnvs, obsFeatures, nil)
	rewards := make([]float64, k.config.NumEnvs)
	dones := make([]bool, k.config.NumEnvs)
	infos := make([]*environment.EpisodeInfo, k.config.NumEnvs)

	for e, inst := range k.instances {
		action := int(actions.AtVec(e))
		if action < 0 || action >= NumActions {
			return nil, nil, nil, nil, fmt.Errorf("step: illegal action "+
				"%d for instance %d", action, e)
		}

		rewards[e], dones[e], infos[e] = inst.step(action)
		obs.SetRow(e, inst.observe(0))
	}
	return obs, rewards, dones, infos, nil
}

// RewardShaping returns the current shaped-reward coefficient
func (k *Kitchen) RewardShaping() float64 {
	return k.rewardShaping
}

// SetRewardShaping sets the shaped-reward coefficient
func (k *Kitchen) SetRewardShaping(coef float64) {
	k.rewardShaping = coef
}

// SelfPlayRandomization returns the probability that an episode's
// partner is the self-play partner.
func (k *Kitchen) SelfPlayRandomization() float64 {
	return k.selfPlay
}

// SetSelfPlayRandomization sets the self-play partner probability
func (k *Kitchen) SetSelfPlayRandomization(ratio float64) {
	k.selfPlay = ratio
}
