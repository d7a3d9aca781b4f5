package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(day time.Weekday, start, end TimeOfDay) Window {
	return Window{DayOfWeek: day, Start: start, End: end, IsActive: true}
}

func TestGenerateSlots_DurationAndBuffer(t *testing.T) {
	slots := GenerateSlots([]Window{window(time.Monday, Clock(9, 0), Clock(10, 0))}, 20, 10)

	require.Len(t, slots, 2)
	assert.Equal(t, Slot{Start: Clock(9, 0), End: Clock(9, 20)}, slots[0])
	assert.Equal(t, Slot{Start: Clock(9, 30), End: Clock(9, 50)}, slots[1])
}

func TestGenerateSlots_ExactFit(t *testing.T) {
	slots := GenerateSlots([]Window{window(time.Monday, Clock(9, 0), Clock(10, 0))}, 30, 0)

	require.Len(t, slots, 2)
	assert.Equal(t, Clock(9, 30), slots[1].Start)
	assert.Equal(t, Clock(10, 0), slots[1].End)
}

func TestGenerateSlots_CarriesLocation(t *testing.T) {
	w := window(time.Tuesday, Clock(8, 0), Clock(9, 0))
	w.Location = "Room 4"

	slots := GenerateSlots([]Window{w}, 60, 0)

	require.Len(t, slots, 1)
	assert.Equal(t, "Room 4", slots[0].Location)
}

func TestGenerateSlots_Degenerate(t *testing.T) {
	tests := []struct {
		name     string
		windows  []Window
		duration int
		buffer   int
	}{
		{"no windows", nil, 30, 0},
		{"zero duration", []Window{window(time.Monday, Clock(9, 0), Clock(12, 0))}, 0, 0},
		{"negative duration", []Window{window(time.Monday, Clock(9, 0), Clock(12, 0))}, -15, 0},
		{"start equals end", []Window{window(time.Monday, Clock(9, 0), Clock(9, 0))}, 15, 0},
		{"start after end", []Window{window(time.Monday, Clock(12, 0), Clock(9, 0))}, 15, 0},
		{"window shorter than slot", []Window{window(time.Monday, Clock(9, 0), Clock(9, 10))}, 15, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, GenerateSlots(tt.windows, tt.duration, tt.buffer))
		})
	}
}

func TestGenerateSlots_NegativeBufferIgnored(t *testing.T) {
	slots := GenerateSlots([]Window{window(time.Monday, Clock(9, 0), Clock(10, 0))}, 30, -10)

	require.Len(t, slots, 2)
	assert.Equal(t, Clock(9, 30), slots[1].Start)
}

func TestGenerateSlots_OverlappingWindowsKeepEveryCandidate(t *testing.T) {
	a := window(time.Monday, Clock(9, 0), Clock(10, 0))
	a.Location = "A"
	b := window(time.Monday, Clock(9, 30), Clock(10, 30))
	b.Location = "B"

	slots := GenerateSlots([]Window{b, a}, 30, 0)

	require.Len(t, slots, 4)
	assert.Equal(t, Clock(9, 0), slots[0].Start)
	// Both windows emit 09:30; input order breaks the tie.
	assert.Equal(t, Clock(9, 30), slots[1].Start)
	assert.Equal(t, "B", slots[1].Location)
	assert.Equal(t, Clock(9, 30), slots[2].Start)
	assert.Equal(t, "A", slots[2].Location)
	assert.Equal(t, Clock(10, 0), slots[3].Start)
}

func TestWindowsFor_FiltersWeekdayAndInactive(t *testing.T) {
	inactive := window(time.Monday, Clock(13, 0), Clock(14, 0))
	inactive.IsActive = false

	got := windowsFor([]Window{
		window(time.Monday, Clock(9, 0), Clock(10, 0)),
		window(time.Tuesday, Clock(9, 0), Clock(10, 0)),
		inactive,
	}, int(time.Monday))

	require.Len(t, got, 1)
	assert.Equal(t, Clock(9, 0), got[0].Start)
}

func TestParseTimeOfDay(t *testing.T) {
	v, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(9, 30), v)
	assert.Equal(t, "09:30", v.String())

	v, err = ParseTimeOfDay("24:00")
	require.NoError(t, err)
	assert.Equal(t, EndOfDay, v)

	for _, bad := range []string{"", "9", "25:00", "24:01", "10:60", "aa:bb"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestWindowValidate(t *testing.T) {
	assert.NoError(t, window(time.Friday, Clock(9, 0), EndOfDay).Validate())
	assert.ErrorIs(t, window(time.Friday, Clock(10, 0), Clock(9, 0)).Validate(), ErrInvalidWindow)
	assert.ErrorIs(t, window(time.Weekday(7), Clock(9, 0), Clock(10, 0)).Validate(), ErrInvalidWindow)
	assert.ErrorIs(t, window(time.Friday, Clock(9, 0), EndOfDay+1).Validate(), ErrInvalidWindow)
}
