package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/clock"
)

const (
	DefaultOpenMinutes  = 6 * 60
	DefaultCloseMinutes = 22 * 60
)

// BusinessHours is the clinic operating window, in minutes since local midnight.
type BusinessHours struct {
	zone  *clock.Zone
	open  int
	close int
}

func NewBusinessHours(zone *clock.Zone, openMinutes, closeMinutes int) (*BusinessHours, error) {
	if openMinutes < 0 || closeMinutes > 24*60 || openMinutes >= closeMinutes {
		return nil, fmt.Errorf("invalid business hours %s-%s", FormatMinutes(openMinutes), FormatMinutes(closeMinutes))
	}
	return &BusinessHours{zone: zone, open: openMinutes, close: closeMinutes}, nil
}

func (b *BusinessHours) Open() int  { return b.open }
func (b *BusinessHours) Close() int { return b.close }

// Validate accepts [start, end) when the local start is within [open, close)
// and the local end is no later than close on the same local day.
func (b *BusinessHours) Validate(start, end time.Time) error {
	startMin := b.zone.MinutesOfDay(start)
	endMin := b.zone.MinutesOfDay(end)
	startDay := b.zone.LocalDate(start)
	switch endDay := b.zone.LocalDate(end); {
	case endDay.Equal(startDay):
	case endMin == 0 && endDay.Equal(startDay.AddDate(0, 0, 1)):
		// Ending exactly at midnight.
		endMin = 24 * 60
	default:
		// Runs past midnight; would otherwise read as early morning.
		endMin = 24*60 + 1
	}

	switch {
	case startMin < b.open:
		return apperr.Newf(apperr.KindBusinessHours, "start must not be before %s", FormatMinutes(b.open))
	case startMin >= b.close:
		return apperr.Newf(apperr.KindBusinessHours, "start must be before %s", FormatMinutes(b.close))
	case endMin > b.close:
		return apperr.Newf(apperr.KindBusinessHours, "end must not be after %s", FormatMinutes(b.close))
	}
	return nil
}

// FormatMinutes renders minutes since midnight as HH:MM.
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is allowed.
func ParseClock(raw string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", raw)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock time %q", raw)
	}
	return h*60 + m, nil
}
