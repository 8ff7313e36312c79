// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fileseq

// run is an arithmetic progression found among the remaining loose frames.
type run struct {
	first int // index into items
	start int
	step  int
	count int
	open  bool
}

// item is either a loose frame or a range that has already been extracted.
type item struct {
	frame int
	rng   *FrameRange
}

// compact turns strictly ascending frames into ranges. It repeatedly extracts
// the longest arithmetic run among the loose frames, preferring the larger step
// on equal length, until no run of three or more frames is left. Leftover
// frames stay single.
func compact(frames []int) []*FrameRange {
	items := make([]item, len(frames))
	for i, f := range frames {
		items[i] = item{frame: f}
	}

	for {
		best := longestRun(items)
		if best == nil || best.count < 3 {
			break
		}
		end := best.start + (best.count-1)*best.step
		merged := item{rng: newRange(best.start, end, best.step)}
		tail := append([]item{merged}, items[best.first+best.count:]...)
		items = append(items[:best.first], tail...)
	}

	out := make([]*FrameRange, len(items))
	for i, it := range items {
		if it.rng != nil {
			out[i] = it.rng
		} else {
			out[i] = newRange(it.frame, it.frame, 1)
		}
	}
	return out
}

func longestRun(items []item) *run {
	var runs []*run
	for i, it := range items {
		if it.rng != nil {
			for _, r := range runs {
				r.open = false
			}
			continue
		}
		for _, r := range runs {
			if !r.open {
				continue
			}
			switch {
			case r.count == 1:
				r.step = it.frame - r.start
				r.count = 2
			case it.frame == r.start+r.count*r.step:
				r.count++
			default:
				r.open = false
			}
		}
		runs = append(runs, &run{first: i, start: it.frame, step: 1, count: 1, open: true})
	}

	var best *run
	for _, r := range runs {
		if best == nil || r.count > best.count || (r.count == best.count && r.step > best.step) {
			best = r
		}
	}
	return best
}
