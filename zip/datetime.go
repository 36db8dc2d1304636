package zip

import (
	"errors"
	"time"
)

// ErrInvalidDateOrTime is returned when an MS-DOS date or time word has an
// out-of-range field: a zero or >12 month, a day beyond the length of its
// month (leap-year aware — including the 2100 non-leap exception), hours
// ≥24, minutes ≥60, or a seconds-word ≥30 (seconds are stored as
// seconds/2).
var ErrInvalidDateOrTime = errors.New("zip: invalid MS-DOS date or time")

// cumulativeDaysBeforeMonth[m-1] is the day-of-year (0-based, non-leap) of
// the first day of month m.
var cumulativeDaysBeforeMonth = [12]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}

// msDosEpochDaysFromUnixEpoch is how many days separate 1980-01-01 (the
// MS-DOS epoch) from 1970-01-01 (the Unix epoch).
const msDosEpochDaysFromUnixEpoch = 3652

const secondsPerDay = 86400

// isLeapYearSince1980 reports whether year 1980+yearsSince1980 is a leap
// year: every 4th year is leap, except 2100 (the 400-year exception makes
// 2000 leap and 2100 not). yearsSince1980 only ranges 0..127 (1980..2107),
// so 2100 is the one century boundary that needs special-casing here.
func isLeapYearSince1980(yearsSince1980 int) bool {
	if 1980+yearsSince1980 == 2100 {
		return false
	}
	return yearsSince1980%4 == 0
}

var daysInMonthNonLeap = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func daysInMonth(yearsSince1980, month int) int {
	d := daysInMonthNonLeap[month-1]
	if month == 2 && isLeapYearSince1980(yearsSince1980) {
		d = 29
	}
	return d
}

// daysSince1980 counts full days between 1980-01-01 and the given date.
// yearsSince1980/4 accounts for one leap day per elapsed 4-year cycle;
// isAfterLeap then corrects for whether this date falls after the leap
// day of its own cycle (either because a previous year in the cycle
// already had one, or because this is the leap year itself past
// February), and isAfterSkip undoes the 2100 leap day the 400-year rule
// removes, once the date has passed that point.
func daysSince1980(yearsSince1980, month, day int) int {
	days := yearsSince1980*365 + cumulativeDaysBeforeMonth[month-1] + (day - 1) + yearsSince1980/4

	isAfterLeap := yearsSince1980%4 != 0 || month > 2
	if isAfterLeap {
		days++
	}

	year := 1980 + yearsSince1980
	isAfterSkip := year > 2100 || (year == 2100 && isAfterLeap)
	if isAfterSkip {
		days--
	}
	return days
}

// DOSDateTime holds the two 16-bit MS-DOS words exactly as they appear on
// the wire; ParseDOSDateTime converts them to a time.Time.
type DOSDateTime struct {
	Date uint16
	Time uint16
}

// ParseDOSDateTime validates the date and time words and converts them to
// the equivalent instant. Out-of-range fields are reported as
// ErrInvalidDateOrTime.
func ParseDOSDateTime(date, timeWord uint16) (time.Time, error) {
	day := int(date & 0x1F)
	month := int((date >> 5) & 0xF)
	yearsSince1980 := int((date >> 9) & 0x7F)

	secHalves := int(timeWord & 0x1F)
	minutes := int((timeWord >> 5) & 0x3F)
	hours := int((timeWord >> 11) & 0x1F)

	if month < 1 || month > 12 {
		return time.Time{}, ErrInvalidDateOrTime
	}
	if day < 1 || day > daysInMonth(yearsSince1980, month) {
		return time.Time{}, ErrInvalidDateOrTime
	}
	if hours >= 24 || minutes >= 60 || secHalves >= 30 {
		return time.Time{}, ErrInvalidDateOrTime
	}

	days := daysSince1980(yearsSince1980, month, day)
	secondsOfDay := hours*3600 + minutes*60 + secHalves*2

	unixSeconds := int64(msDosEpochDaysFromUnixEpoch+days)*secondsPerDay + int64(secondsOfDay)
	return time.Unix(unixSeconds, 0).UTC(), nil
}
