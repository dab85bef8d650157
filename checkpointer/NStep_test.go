package checkpointer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type recordingObject struct {
	paths []string
}

func (r *recordingObject) Save(path string) error {
	r.paths = append(r.paths, path)
	return nil
}

func TestNStepCadence(t *testing.T) {
	obj := &recordingObject{}
	c := NewNStep(3, obj, func(update int) string {
		return fmt.Sprintf("%05d", update)
	})

	for update := 1; update <= 7; update++ {
		if err := c.Checkpoint(update); err != nil {
			t.Fatalf("checkpoint %d: %v", update, err)
		}
	}

	want := []string{"00001", "00003", "00006"}
	if len(obj.paths) != len(want) {
		t.Fatalf("saved paths: got %v, want %v", obj.paths, want)
	}
	for i := range want {
		if obj.paths[i] != want[i] {
			t.Errorf("saved path %d: got %v, want %v", i, obj.paths[i],
				want[i])
		}
	}
}

func TestNStepDisabled(t *testing.T) {
	obj := &recordingObject{}
	c := NewNStep(0, obj, func(int) string { return "never" })

	for update := 1; update <= 5; update++ {
		if err := c.Checkpoint(update); err != nil {
			t.Fatalf("checkpoint %d: %v", update, err)
		}
	}
	if len(obj.paths) != 0 {
		t.Errorf("disabled checkpointer saved: %v", obj.paths)
	}
}

func TestUpdateEnumeratorNaming(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	name := UpdateEnumerator(dir)

	if got, want := name(7), filepath.Join(dir, "00007"); got != want {
		t.Errorf("checkpoint name: got %v, want %v", got, want)
	}

	// Naming alone must not touch the filesystem; the directory is
	// created when a checkpoint is actually written.
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("naming created %v", dir)
	}
}

func TestNStepCreatesCheckpointDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	obj := &recordingObject{}
	c := NewNStep(1, obj, UpdateEnumerator(dir))

	if err := c.Checkpoint(1); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("checkpoint directory not created: %v", err)
	}
}

type failingObject struct{}

func (failingObject) Save(string) error {
	return errors.New("disk full")
}

func TestNStepPropagatesSaveError(t *testing.T) {
	c := NewNStep(1, failingObject{}, func(update int) string {
		return fmt.Sprintf("%05d", update)
	})
	if err := c.Checkpoint(1); err == nil {
		t.Error("save failure not propagated")
	}
}
