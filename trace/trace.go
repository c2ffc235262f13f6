// Copyright 2024 The evmkit Authors
// This file is part of evmkit.
//
// evmkit is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// evmkit is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with evmkit. If not, see <http://www.gnu.org/licenses/>.

// Package trace records a flat per-step execution trace for offline
// analysis, independent of the structured logrus debug stream the
// interpreter emits live.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"

	"github.com/evmkit/evmkit/core/vm"
)

// Step is one recorded instruction execution.
type Step struct {
	PC         uint64 `json:"pc"`
	Op         string `json:"op"`
	Gas        uint64 `json:"gas"`
	Depth      int    `json:"depth"`
	StackDepth int    `json:"stackDepth"`
}

// Recorder accumulates Steps. The zero value is ready to use.
type Recorder struct {
	steps []Step
}

// Record appends one step. The interpreter has no hook that calls it;
// callers that drive a frame with Frame.Step (such as cmd/evmdb) call it
// themselves after each step.
func (r *Recorder) Record(pc uint64, op vm.OpCode, gas uint64, depth, stackDepth int) {
	r.steps = append(r.steps, Step{
		PC:         pc,
		Op:         op.String(),
		Gas:        gas,
		Depth:      depth,
		StackDepth: stackDepth,
	})
}

// Steps returns the recorded steps in execution order.
func (r *Recorder) Steps() []Step { return r.steps }

// Len reports how many steps have been recorded.
func (r *Recorder) Len() int { return len(r.steps) }

// ExportSnappy writes the recorded trace as newline-delimited JSON,
// snappy-compressed, to w.
func (r *Recorder) ExportSnappy(w io.Writer) error {
	sw := snappy.NewBufferedWriter(w)
	enc := json.NewEncoder(sw)
	for _, s := range r.steps {
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("trace: encode step: %w", err)
		}
	}
	return sw.Close()
}

// ExportSnappyFile is a convenience wrapper around ExportSnappy that
// creates (or truncates) path.
func (r *Recorder) ExportSnappyFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("trace: create %s: %w", path, err)
	}
	defer f.Close()
	return r.ExportSnappy(f)
}

// LoadSnappy reads a trace previously written by ExportSnappy.
func LoadSnappy(r io.Reader) ([]Step, error) {
	sr := snappy.NewReader(r)
	dec := json.NewDecoder(bufio.NewReader(sr))
	var steps []Step
	for {
		var s Step
		if err := dec.Decode(&s); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("trace: decode step: %w", err)
		}
		steps = append(steps, s)
	}
	return steps, nil
}
