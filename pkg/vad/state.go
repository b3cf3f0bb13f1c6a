package vad

import "github.com/haivivi/speechprint/pkg/tensor"

// StateShape returns the shape of each recurrent state tensor: two LSTM
// layers, batch one, 64 hidden units. Every call returns a new slice.
func StateShape() tensor.Shape { return tensor.Shape{2, 1, 64} }

// RecurrentState is the hidden (H) and cell (C) state carried between
// Compute calls. Both tensors always have shape [StateShape].
type RecurrentState struct {
	H *tensor.Tensor
	C *tensor.Tensor
}

// ZeroState returns a fresh all-zero state.
func ZeroState() RecurrentState {
	return RecurrentState{H: tensor.Zeros(StateShape()), C: tensor.Zeros(StateShape())}
}

// Clone returns a deep copy.
func (s RecurrentState) Clone() RecurrentState {
	return RecurrentState{H: s.H.Clone(), C: s.C.Clone()}
}

// IsZero reports whether every element of H and C is zero.
func (s RecurrentState) IsZero() bool {
	for _, t := range []*tensor.Tensor{s.H, s.C} {
		v, err := t.Float32s()
		if err != nil {
			return false
		}
		for _, x := range v {
			if x != 0 {
				return false
			}
		}
	}
	return true
}
