package fat

import "time"

// ParseDate decodes a FAT directory entry date field: bits 0-4 are the day
// of month, bits 5-8 the month (1 = January), bits 9-15 the count of years
// since 1980. It returns time.Time{} if day or month is 0, which the FAT
// specification leaves undefined.
func ParseDate(input uint16) time.Time {
	day := input & 0x1F
	month := input & 0x1E0 >> 5
	year := input & 0xFE00 >> 9

	if day == 0 || month == 0 {
		return time.Time{}
	}
	return time.Date(1980+int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
}

// ParseTime decodes a FAT directory entry time field, which has a
// granularity of 2 seconds: bits 0-4 are the 2-second count, bits 5-10 the
// minutes, bits 11-15 the hours.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x1F) * 2
	minutes := input & 0x7E0 >> 5
	hours := input & 0xF800 >> 11

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)
	if result.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}
	return result
}

// modTime combines a directory entry's write date and time fields into a
// single time.Time, or the zero time if the date field is invalid.
func modTime(date, clock uint16) time.Time {
	d := ParseDate(date)
	if d.IsZero() {
		return time.Time{}
	}
	c := ParseTime(clock)
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, time.UTC)
}
