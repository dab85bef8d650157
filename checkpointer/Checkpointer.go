// Package checkpointer implements periodic model checkpointing on the
// update cadence of the training loop.
package checkpointer

// Serializable is an object whose state can be persisted at a
// path-addressed location.
type Serializable interface {
	Save(path string) error
}

// Checkpointer saves serializable objects based on the current update
// number.
type Checkpointer interface {
	Checkpoint(update int) error
}
