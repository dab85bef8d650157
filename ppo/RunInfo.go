package ppo

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// RunInfo records the metric series of a training run. Metric names
// keep their registration order so that records print and persist in a
// stable layout.
type RunInfo struct {
	names  []string
	series map[string][]float64
}

// NewRunInfo returns a RunInfo tracking the named metrics
func NewRunInfo(names ...string) *RunInfo {
	series := make(map[string][]float64, len(names))
	for _, name := range names {
		series[name] = nil
	}
	return &RunInfo{
		names:  append([]string(nil), names...),
		series: series,
	}
}

// Record appends one value to the named metric series
func (r *RunInfo) Record(name string, value float64) error {
	if _, ok := r.series[name]; !ok {
		return fmt.Errorf("record: unknown metric %v", name)
	}
	r.series[name] = append(r.series[name], value)
	return nil
}

// Names returns the metric names in registration order
func (r *RunInfo) Names() []string {
	return r.names
}

// Series returns the recorded values of the named metric
func (r *RunInfo) Series(name string) []float64 {
	return r.series[name]
}

// Latest returns the most recent value of the named metric, or NaN if
// nothing has been recorded.
func (r *RunInfo) Latest(name string) float64 {
	series := r.series[name]
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// runInfoRecord is the serialized form of a RunInfo
type runInfoRecord struct {
	Names  []string
	Series map[string][]float64
}

// GobEncode implements the gob.GobEncoder interface
func (r *RunInfo) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(runInfoRecord{
		Names:  r.names,
		Series: r.series,
	})
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode run "+
			"record: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (r *RunInfo) GobDecode(data []byte) error {
	var record runInfoRecord
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&record)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode run record: %v",
			err)
	}
	r.names = record.Names
	r.series = record.Series
	return nil
}

// Save persists the RunInfo at path
func (r *RunInfo) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("save: could not create directory: %v", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: could not create file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(r); err != nil {
		return fmt.Errorf("save: could not encode run record: %v", err)
	}
	return nil
}

// LoadRunInfo restores a RunInfo previously written by Save
func LoadRunInfo(path string) (*RunInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loadruninfo: could not open file: %v", err)
	}
	defer file.Close()

	info := &RunInfo{}
	if err := gob.NewDecoder(file).Decode(info); err != nil {
		return nil, fmt.Errorf("loadruninfo: could not decode run "+
			"record: %v", err)
	}
	return info, nil
}
