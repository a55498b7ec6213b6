package rtypes

import "time"

// Epoch is the ChainPack DateTime epoch: 2018-02-02T00:00:00Z. DateTime
// values are encoded as a millisecond offset from this instant.
// NewDateTimeFromEpochMillis and EpochMillis below must round-trip
// negative offsets (instants before the epoch) correctly.
var Epoch = time.Date(2018, time.February, 2, 0, 0, 0, 0, time.UTC)

// NewDateTimeFromEpochMillis builds a DateTime from a millisecond offset
// (possibly negative) and a UTC offset in minutes.
func NewDateTimeFromEpochMillis(msec int64, offsetMin int16) DateTime {
	t := Epoch.Add(time.Duration(msec) * time.Millisecond)
	return DateTime{Time: t, OffsetMin: offsetMin}
}

// EpochMillis returns the millisecond offset of dt from Epoch.
func (dt DateTime) EpochMillis() int64 {
	return dt.Time.Sub(Epoch).Milliseconds()
}
