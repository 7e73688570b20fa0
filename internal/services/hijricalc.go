package services

import (
	"time"

	"miqat/internal/models"
)

// Tabular (civil) Islamic calendar arithmetic. This is the deterministic
// local estimate shown while the authoritative conversion is in flight; it
// can differ from sighting-based reckoning by a day.

var hijriMonthNames = [12]string{
	"Muharram", "Safar", "Rabi al-Awwal", "Rabi al-Thani",
	"Jumada al-Awwal", "Jumada al-Thani", "Rajab", "Shaban",
	"Ramadan", "Shawwal", "Dhu al-Qadah", "Dhu al-Hijjah",
}

// gregorianToJDN converts a proleptic Gregorian date to a Julian day number.
func gregorianToJDN(year, month, day int) int {
	a := (14 - month) / 12
	y := year + 4800 - a
	m := month + 12*a - 3
	return day + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
}

// tabularHijri converts a Gregorian date using the arithmetic (Kuwaiti)
// calendar with the civil epoch.
func tabularHijri(date time.Time) models.HijriDate {
	jdn := gregorianToJDN(date.Year(), int(date.Month()), date.Day())

	l := jdn - 1948440 + 10632
	n := (l - 1) / 10631
	l = l - 10631*n + 354
	j := ((10985-l)/5316)*((50*l)/17719) + (l/5670)*((43*l)/15238)
	l = l - ((30-j)/15)*((17719*j)/50) - (j/16)*((15238*j)/43) + 29
	month := (24 * l) / 709
	day := l - (709*month)/24
	year := 30*n + j - 30

	return models.HijriDate{
		Year:      year,
		Month:     month,
		Day:       day,
		MonthName: hijriMonthNames[month-1],
	}
}
