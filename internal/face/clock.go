package face

import (
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/goodsign/monday"
	"github.com/koios/matrx-watchface/pkg/models"
)

// DateLayout is the medium date form shown under the time
const DateLayout = "Mon, Jan 02 2006"

// ZoneResolver reports the device's current time zone and locale
type ZoneResolver func() (*time.Location, monday.Locale)

// LocalZone returns a resolver that always answers with time.Local and the given locale
func LocalZone(locale monday.Locale) ZoneResolver {
	return func() (*time.Location, monday.Locale) {
		return time.Local, locale
	}
}

// Clock wraps wall-clock time with the zone and locale last synced from the device
type Clock struct {
	clk     clock.Clock
	resolve ZoneResolver
	loc     *time.Location
	locale  monday.Locale
}

// NewClock creates a clock and performs an initial zone sync
func NewClock(clk clock.Clock, resolve ZoneResolver) *Clock {
	if resolve == nil {
		resolve = LocalZone(monday.LocaleEnUS)
	}
	c := &Clock{clk: clk, resolve: resolve}
	c.Resync()
	return c
}

// Resync re-reads the time zone and locale, e.g. after the face became
// visible or the device reported a change
func (c *Clock) Resync() {
	loc, locale := c.resolve()
	if loc == nil {
		loc = time.Local
	}
	if locale == "" {
		locale = monday.LocaleEnUS
	}
	c.loc = loc
	c.locale = locale
}

// Location returns the zone used for the last resync
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Snapshot reads the current time for one frame
func (c *Clock) Snapshot() models.ClockSnapshot {
	return SnapshotAt(c.clk.Now().In(c.loc), c.locale)
}

// SnapshotAt builds the clock reading for t, which must already be in the display zone
func SnapshotAt(t time.Time, locale monday.Locale) models.ClockSnapshot {
	return models.ClockSnapshot{
		Hour:   models.DisplayHour(t.Hour()),
		Minute: t.Minute(),
		Date:   monday.Format(t, DateLayout, locale),
	}
}
