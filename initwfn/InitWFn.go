// Package initwfn implements serializable configurations of gorgonia
// weight initialization functions.
package initwfn

import (
	"encoding/json"
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type describes the weight initialization scheme an InitWFn uses
type Type string

const (
	GlorotU Type = "GlorotU"
	GlorotN Type = "GlorotN"
	Zeroes  Type = "Zeroes"
)

// InitWFn wraps a gorgonia InitWFn so that weight initializers can be
// marshalled into and unmarshalled from JSON configuration files.
type InitWFn struct {
	initType Type
	gain     float64
}

// NewGlorotU returns an InitWFn describing Glorot uniform weight
// initialization with the given gain.
func NewGlorotU(gain float64) *InitWFn {
	return &InitWFn{initType: GlorotU, gain: gain}
}

// NewGlorotN returns an InitWFn describing Glorot normal weight
// initialization with the given gain.
func NewGlorotN(gain float64) *InitWFn {
	return &InitWFn{initType: GlorotN, gain: gain}
}

// NewZeroes returns an InitWFn describing zero weight initialization
func NewZeroes() *InitWFn {
	return &InitWFn{initType: Zeroes}
}

// InitWFn returns the gorgonia weight initializer the InitWFn
// describes
func (i *InitWFn) InitWFn() G.InitWFn {
	switch i.initType {
	case GlorotU:
		return G.GlorotU(i.gain)
	case GlorotN:
		return G.GlorotN(i.gain)
	case Zeroes:
		return G.Zeroes()
	}
	panic(fmt.Sprintf("initwfn: illegal initializer type %v", i.initType))
}

// Type returns the type of weight initializer the InitWFn describes
func (i *InitWFn) Type() Type {
	return i.initType
}

// MarshalJSON implements the json.Marshaler interface
func (i *InitWFn) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type Type
		Gain float64
	}{
		Type: i.initType,
		Gain: i.gain,
	})
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (i *InitWFn) UnmarshalJSON(data []byte) error {
	var wrapper struct {
		Type Type
		Gain float64
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("unmarshaljson: could not unmarshal "+
			"initializer: %v", err)
	}

	switch wrapper.Type {
	case GlorotU, GlorotN, Zeroes:
		i.initType = wrapper.Type
		i.gain = wrapper.Gain
	default:
		return fmt.Errorf("unmarshaljson: illegal initializer type %v",
			wrapper.Type)
	}
	return nil
}
