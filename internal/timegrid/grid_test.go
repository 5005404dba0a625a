package timegrid

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barberbook/internal/domain"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:30", want: 570},
		{in: "9:30", want: 570},
		{in: "23:59", want: 1439},
		{in: "24:00", wantErr: true},
		{in: "25:00", wantErr: true},
		{in: "10:60", wantErr: true},
		{in: "10-00", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
		{in: "10:0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBound(t *testing.T) {
	c, err := ParseBound("24:00")
	require.NoError(t, err)
	assert.Equal(t, domain.EndOfDay, c)
	assert.Equal(t, "24:00", c.String())

	_, err = ParseBound("24:01")
	assert.ErrorIs(t, err, domain.ErrFormat)
}

func TestClockString(t *testing.T) {
	assert.Equal(t, "09:05", Clock(545).String())
	assert.Equal(t, "00:00", Clock(0).String())
}

func TestSlotsNeeded(t *testing.T) {
	g := MustNew(30, nil)

	n, err := g.SlotsNeeded(60)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = g.SlotsNeeded(30)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, d := range []int{0, -30, 45, 10} {
		_, err := g.SlotsNeeded(d)
		assert.ErrorIs(t, err, domain.ErrInvalidDuration, "duration %d", d)
	}
}

func TestNewRejectsBadGranularity(t *testing.T) {
	_, err := New(0, nil)
	assert.Error(t, err)
	_, err = New(7, nil)
	assert.Error(t, err)
	_, err = New(15, nil)
	assert.NoError(t, err)
}

func TestCandidates(t *testing.T) {
	g := MustNew(30, nil)

	t.Run("full window", func(t *testing.T) {
		got := g.Candidates(9*60, 11*60, 60)
		assert.Equal(t, []Clock{540, 570, 600}, got)
	})

	t.Run("unaligned start rounds up", func(t *testing.T) {
		got := g.Candidates(9*60+10, 11*60, 30)
		assert.Equal(t, []Clock{570, 600, 630}, got)
	})

	t.Run("duration longer than window", func(t *testing.T) {
		assert.Empty(t, g.Candidates(9*60, 9*60+30, 60))
	})

	t.Run("until midnight", func(t *testing.T) {
		got := g.Candidates(23*60, domain.EndOfDay, 30)
		assert.Equal(t, []Clock{1380, 1410}, got)
	})

	t.Run("empty range", func(t *testing.T) {
		assert.Nil(t, g.Candidates(600, 600, 30))
	})
}

func TestDayBounds(t *testing.T) {
	g := MustNew(30, nil)
	workers := []domain.Worker{
		{ID: 1, Active: true, WorkStart: 600, WorkEnd: 1080},
		{ID: 2, Active: true, WorkStart: 540, WorkEnd: 1020},
		{ID: 3, Active: false, WorkStart: 0, WorkEnd: 1440},
	}

	from, to, ok := g.DayBounds(workers)
	require.True(t, ok)
	assert.Equal(t, Clock(540), from)
	assert.Equal(t, Clock(1080), to)

	_, _, ok = g.DayBounds(workers[2:])
	assert.False(t, ok)
}

func TestAtAndClockOf(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	g := MustNew(30, loc)

	date, err := ParseDate("2025-03-10", loc)
	require.NoError(t, err)

	at := g.At(date, 570)
	assert.Equal(t, 9, at.Hour())
	assert.Equal(t, 30, at.Minute())
	assert.Equal(t, Clock(570), g.ClockOf(at.UTC()))
	assert.True(t, g.OnGrid(at))
	assert.False(t, g.OnGrid(at.Add(10*time.Minute)))
	assert.True(t, g.SameDay(at, date))

	_, err = ParseDate("10.03.2025", loc)
	assert.ErrorIs(t, err, domain.ErrFormat)
}
