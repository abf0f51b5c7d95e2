// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

// StepResult is the state of a single beam after a decoding step.
type StepResult struct {
	// Step is the number of steps the beam has taken, starting from 1.
	Step int
	// Sequence is the position of the beam's sequence in the batch.
	Sequence int
	// TokenIDs are the tokens chosen for every slot.
	TokenIDs []int
	// ParentIDs are the slots of the previous step every slot descends from.
	ParentIDs []int
	// Scores are the cumulative scores of every slot.
	Scores []float64
}

// Buffer is the interface that wraps the basic buffer methods.
type Buffer interface {
	// Write writes the given step result to the buffer.
	Write(stepResult StepResult) error
	// Close closes the buffer.
	Close()
}

// ChannelBuffer is a buffer that writes the results to a channel.
type ChannelBuffer chan StepResult

// Write writes the given step result to the buffer.
func (cb ChannelBuffer) Write(stepResult StepResult) error {
	cb <- stepResult
	return nil
}

// Close closes the buffer.
func (cb ChannelBuffer) Close() {
	close(cb)
}

// Trace is a buffer that accumulates the step results in memory.
type Trace struct {
	Steps []StepResult
}

// Write appends the step result to the trace.
func (t *Trace) Write(stepResult StepResult) error {
	t.Steps = append(t.Steps, stepResult)
	return nil
}

// Close does nothing.
func (t *Trace) Close() {}

// Sequence returns the step results of the given sequence, in step order.
func (t *Trace) Sequence(seq int) []StepResult {
	var out []StepResult
	for _, s := range t.Steps {
		if s.Sequence == seq {
			out = append(out, s)
		}
	}
	return out
}
