package availability

import "sort"

// Slot is a candidate bookable interval expressed in wall-clock time.
type Slot struct {
	Start    TimeOfDay
	End      TimeOfDay
	Location string
}

// GenerateSlots expands one day's windows into fixed-length candidates.
// Each window is handled on its own: starts are spaced slotDuration+buffer
// apart and a candidate whose end would pass the window end is dropped.
// Overlapping windows yield overlapping candidates; they are not merged here.
func GenerateSlots(windows []Window, slotDuration, bufferMinutes int) []Slot {
	if slotDuration <= 0 {
		return nil
	}
	if bufferMinutes < 0 {
		bufferMinutes = 0
	}

	step := TimeOfDay(slotDuration + bufferMinutes)
	length := TimeOfDay(slotDuration)

	var out []Slot
	for _, w := range windows {
		if w.Start >= w.End {
			continue
		}
		for t := w.Start; t+length <= w.End; t += step {
			out = append(out, Slot{Start: t, End: t + length, Location: w.Location})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}

// windowsFor keeps the active windows that recur on weekday.
func windowsFor(all []Window, weekday int) []Window {
	var out []Window
	for _, w := range all {
		if w.IsActive && int(w.DayOfWeek) == weekday {
			out = append(out, w)
		}
	}
	return out
}
