package jquants

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

type allHolidayCal struct{}

func (allHolidayCal) Resolve(time.Time) calendar.DayType { return calendar.Holiday }

func demoRange() (time.Time, time.Time) {
	return time.Date(2025, 2, 3, 0, 0, 0, 0, calendar.JST),
		time.Date(2025, 3, 3, 0, 0, 0, 0, calendar.JST)
}

func TestDemoBarsAreDeterministic(t *testing.T) {
	from, to := demoRange()

	a := NewDemoSource(42, 10, weekdayCal{}, logger.Nop())
	b := NewDemoSource(42, 10, weekdayCal{}, logger.Nop())

	barsA, err := a.FetchBars(context.Background(), from, to)
	require.NoError(t, err)
	barsB, err := b.FetchBars(context.Background(), from, to)
	require.NoError(t, err)

	assert.Equal(t, barsA, barsB)
}

func TestDemoSeedChangesSeries(t *testing.T) {
	from, to := demoRange()

	barsA, err := NewDemoSource(1, 5, weekdayCal{}, logger.Nop()).FetchBars(context.Background(), from, to)
	require.NoError(t, err)
	barsB, err := NewDemoSource(2, 5, weekdayCal{}, logger.Nop()).FetchBars(context.Background(), from, to)
	require.NoError(t, err)

	assert.NotEqual(t, barsA, barsB)
}

func TestDemoBarsRespectCalendar(t *testing.T) {
	from, to := demoRange()

	bars, err := NewDemoSource(7, 8, weekdayCal{}, logger.Nop()).FetchBars(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, bars, 8)

	for code, series := range bars {
		require.NotEmpty(t, series, code)
		for _, b := range series {
			wd := b.Date.Weekday()
			assert.NotEqual(t, time.Saturday, wd)
			assert.NotEqual(t, time.Sunday, wd)
			assert.Equal(t, code, b.Code)
		}
	}
}

func TestDemoAllHolidaysIsNoData(t *testing.T) {
	from, to := demoRange()

	_, err := NewDemoSource(7, 8, allHolidayCal{}, logger.Nop()).FetchBars(context.Background(), from, to)
	require.ErrorIs(t, err, ErrNoData)
}

func TestDemoNamesCoverUniverse(t *testing.T) {
	from, to := demoRange()
	src := NewDemoSource(3, 12, weekdayCal{}, logger.Nop())

	bars, err := src.FetchBars(context.Background(), from, to)
	require.NoError(t, err)
	names, err := src.ListedNames(context.Background())
	require.NoError(t, err)

	for code := range bars {
		assert.NotEmpty(t, names[code], code)
	}
}

func TestDemoAnnouncementsLandOnSessions(t *testing.T) {
	src := NewDemoSource(3, 30, weekdayCal{}, logger.Nop())

	events, err := src.Announcements(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, events)

	names, err := src.ListedNames(context.Background())
	require.NoError(t, err)
	for _, e := range events {
		assert.NotEmpty(t, names[e.Code])
		wd := e.Date.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
	}
}
