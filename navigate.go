package voxline

import "math"

// phaseDiff returns the circular distance between two phases in [0, 1).
func phaseDiff(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 0.5 {
		d = 1 - d
	}
	return d
}

// PrevGroupIndex returns the index of the volume in the previous group
// whose phase most closely matches the current volume's, for skipping
// around the timeline one group at a time. The lower index breaks ties.
func (t *Timeline) PrevGroupIndex() int {
	t.mustBeAvailable()

	t.volMu.RLock()
	defer t.volMu.RUnlock()

	i := t.index
	group := t.volumes[i].GroupIndex()
	phase := t.volumes[i].Phase()
	for i > 0 && group == t.volumes[i].GroupIndex() {
		i--
	}
	group = t.volumes[i].GroupIndex()

	smallest := 1.0
	best := i
	for i >= 0 && group == t.volumes[i].GroupIndex() {
		if d := phaseDiff(phase, t.volumes[i].Phase()); d <= smallest {
			smallest = d
			best = i
		}
		i--
	}
	t.logger.Debug("prev group", "from", t.index, "to", best)
	return best
}

// NextGroupIndex returns the index of the volume in the next group whose
// phase most closely matches the current volume's.
func (t *Timeline) NextGroupIndex() int {
	t.mustBeAvailable()

	t.volMu.RLock()
	defer t.volMu.RUnlock()

	i := t.index
	group := t.volumes[i].GroupIndex()
	phase := t.volumes[i].Phase()
	iMax := len(t.volumes) - 1
	for i < iMax && group == t.volumes[i].GroupIndex() {
		i++
	}
	group = t.volumes[i].GroupIndex()

	smallest := 1.0
	best := i
	for i <= iMax && group == t.volumes[i].GroupIndex() {
		if d := phaseDiff(phase, t.volumes[i].Phase()); d <= smallest {
			smallest = d
			best = i
		}
		i++
	}
	t.logger.Debug("next group", "from", t.index, "to", best)
	return best
}

// FirstGroupIndex returns the lowest index within the current group.
func (t *Timeline) FirstGroupIndex() int {
	t.mustBeAvailable()

	t.volMu.RLock()
	defer t.volMu.RUnlock()

	// Work on a local copy of the cursor so concurrent seeks cannot move
	// it mid-scan.
	i := t.index
	group := t.volumes[i].GroupIndex()
	for i > 0 && group == t.volumes[i-1].GroupIndex() {
		i--
	}
	return i
}

// LastGroupIndex returns the highest index within the current group.
func (t *Timeline) LastGroupIndex() int {
	t.mustBeAvailable()

	t.volMu.RLock()
	defer t.volMu.RUnlock()

	i := t.index
	group := t.volumes[i].GroupIndex()
	for i < len(t.volumes)-1 && group == t.volumes[i+1].GroupIndex() {
		i++
	}
	return i
}
