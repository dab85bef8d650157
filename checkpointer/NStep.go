package checkpointer

import (
	"fmt"
	"os"
	"path/filepath"
)

// nStep implements checkpointing every N updates. The first update is
// always checkpointed so that a run leaves at least one restorable
// model behind even if it terminates before the first full interval.
type nStep struct {
	interval int
	object   Serializable

	// filename returns the path of the file to save the object in,
	// given the update number being checkpointed.
	filename func(update int) string
}

// NewNStep returns a checkpointer that saves every n updates and on
// the first update. An interval of 0 disables checkpointing.
func NewNStep(n int, object Serializable,
	filename func(update int) string) Checkpointer {
	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}
}

// Checkpoint saves the tracked object if the update number falls on
// the checkpoint cadence, creating the checkpoint directory as needed.
func (n *nStep) Checkpoint(update int) error {
	if n.interval == 0 {
		return nil
	}
	if update%n.interval != 0 && update != 1 {
		return nil
	}

	path := n.filename(update)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("checkpoint: could not create checkpoint "+
				"directory: %v", err)
		}
	}
	return n.object.Save(path)
}

// UpdateEnumerator returns a naming function placing zero-padded,
// update-numbered checkpoint files in dir. For example, update 7 maps
// to <dir>/00007.
func UpdateEnumerator(dir string) func(update int) string {
	return func(update int) string {
		return filepath.Join(dir, fmt.Sprintf("%05d", update))
	}
}
