package xrpl

import (
	"fmt"
	"time"
)

// RippleEpochOffset is the number of seconds between the Unix epoch and the
// ledger's epoch, 2000-01-01T00:00:00Z.
const RippleEpochOffset int64 = 946684800

// ToRippleTime converts t into seconds since the ledger epoch.
func ToRippleTime(t time.Time) (uint32, error) {
	secs := t.Unix() - RippleEpochOffset
	if secs < 0 || secs > int64(^uint32(0)) {
		return 0, fmt.Errorf("time %s is outside the ledger epoch range", t.UTC().Format(time.RFC3339))
	}
	return uint32(secs), nil
}

// FromRippleTime converts ledger-epoch seconds back to UTC time.
func FromRippleTime(secs uint32) time.Time {
	return time.Unix(int64(secs)+RippleEpochOffset, 0).UTC()
}
