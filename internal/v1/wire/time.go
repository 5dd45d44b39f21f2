package wire

import (
	"fmt"
	"time"
)

// dateLayout renders RFC 3339 UTC with millisecond precision and a trailing
// Z, e.g. 2024-05-01T12:30:45.123Z.
const dateLayout = "2006-01-02T15:04:05.000Z"

// Timestamp is a time.Time that serializes in the textroom date format.
type Timestamp time.Time

// Now returns the current instant in UTC.
func Now() Timestamp {
	return Timestamp(time.Now().UTC())
}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format(dateLayout) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("wire: invalid date %s", data)
	}
	parsed, err := time.Parse(time.RFC3339, string(data[1:len(data)-1]))
	if err != nil {
		return err
	}
	*t = Timestamp(parsed.UTC())
	return nil
}
