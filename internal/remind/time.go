package remind

import (
	"bytes"
	"strconv"
	"time"
)

// Time is a time.Time that marshals to JSON as integer Unix milliseconds.
//
// Millisecond precision is the round-trip contract for every persisted
// timestamp; anything finer is dropped on the way in so that a value read
// back from the store compares equal to the value written.
//
// The zero value marshals as null and unmarshals from null or a missing field.
type Time struct {
	time.Time
}

// At truncates t to millisecond precision and wraps it.
func At(t time.Time) Time {
	if t.IsZero() {
		return Time{}
	}
	return Time{time.UnixMilli(t.UnixMilli())}
}

var jsonNull = []byte("null")

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return jsonNull, nil
	}
	return strconv.AppendInt(nil, t.UnixMilli(), 10), nil
}

func (t *Time) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || bytes.Equal(b, jsonNull) {
		*t = Time{}
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*t = Time{time.UnixMilli(ms)}
	return nil
}
