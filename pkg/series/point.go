package series

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Column names used by ops and snapshot series.
const (
	ColTime    = "time"
	ColObject  = "object"
	ColSize    = "size"
	ColObjects = "objects"
)

// Series is one named series returned by a query. Points are rows whose
// values line up with Columns.
type Series struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Points  [][]any  `json:"points"`
}

// SizeEvent is one observed PUT or DELETE of an object.
type SizeEvent struct {
	Timestamp time.Time
	Key       string
	Size      int64
}

// Snapshot is the latest recorded baseline for one container.
type Snapshot struct {
	StoreID   int
	Container string
	Timestamp time.Time
	Size      int64
	Objects   int64
}

// SizeEvents decodes every point of an ops series.
func (s Series) SizeEvents() ([]SizeEvent, error) {
	timeIdx, err := s.column(ColTime)
	if err != nil {
		return nil, err
	}
	keyIdx, err := s.column(ColObject)
	if err != nil {
		return nil, err
	}
	sizeIdx, err := s.column(ColSize)
	if err != nil {
		return nil, err
	}

	events := make([]SizeEvent, 0, len(s.Points))
	for i, p := range s.Points {
		ts, err := timeValue(p, timeIdx)
		if err != nil {
			return nil, fmt.Errorf("series %s point %d: %w", s.Name, i, err)
		}
		size, err := intValue(p, sizeIdx)
		if err != nil {
			return nil, fmt.Errorf("series %s point %d: %w", s.Name, i, err)
		}
		key, err := stringValue(p, keyIdx)
		if err != nil {
			return nil, fmt.Errorf("series %s point %d: %w", s.Name, i, err)
		}
		events = append(events, SizeEvent{Timestamp: ts, Key: key, Size: size})
	}
	return events, nil
}

// LatestSnapshot decodes the first point of a snapshot series. The snapshot
// query asks for one point per series, newest first. ok is false when the
// series carries no points.
func (s Series) LatestSnapshot() (snap Snapshot, ok bool, err error) {
	if len(s.Points) == 0 {
		return Snapshot{}, false, nil
	}
	name, err := ParseName(s.Name)
	if err != nil {
		return Snapshot{}, false, err
	}
	if name.Kind != KindSnapshot {
		return Snapshot{}, false, fmt.Errorf("%w: %q is not a snapshot series", ErrMalformedName, s.Name)
	}

	timeIdx, err := s.column(ColTime)
	if err != nil {
		return Snapshot{}, false, err
	}
	sizeIdx, err := s.column(ColSize)
	if err != nil {
		return Snapshot{}, false, err
	}
	objectsIdx, err := s.column(ColObjects)
	if err != nil {
		return Snapshot{}, false, err
	}

	p := s.Points[0]
	snap.StoreID = name.StoreID
	snap.Container = name.Container
	if snap.Timestamp, err = timeValue(p, timeIdx); err != nil {
		return Snapshot{}, false, fmt.Errorf("series %s: %w", s.Name, err)
	}
	if snap.Size, err = intValue(p, sizeIdx); err != nil {
		return Snapshot{}, false, fmt.Errorf("series %s: %w", s.Name, err)
	}
	if snap.Objects, err = intValue(p, objectsIdx); err != nil {
		return Snapshot{}, false, fmt.Errorf("series %s: %w", s.Name, err)
	}
	return snap, true, nil
}

func (s Series) column(name string) (int, error) {
	for i, c := range s.Columns {
		if c == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q in series %s", ErrMissingColumn, name, s.Name)
}

// timeValue reads a millisecond epoch timestamp.
func timeValue(p []any, idx int) (time.Time, error) {
	ms, err := intValue(p, idx)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func intValue(p []any, idx int) (int64, error) {
	if idx >= len(p) {
		return 0, fmt.Errorf("%w: column %d out of range", ErrBadValue, idx)
	}
	switch v := p[idx].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadValue, v)
		}
		return floatValue(f)
	case float64:
		return floatValue(v)
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadValue, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %v (%T)", ErrBadValue, v, v)
	}
}

func stringValue(p []any, idx int) (string, error) {
	if idx >= len(p) {
		return "", fmt.Errorf("%w: column %d out of range", ErrBadValue, idx)
	}
	switch v := p[idx].(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// floatValue rounds f to an int64. Values outside the int64 range have no
// defined conversion and are rejected.
func floatValue(f float64) (int64, error) {
	if math.IsNaN(f) || math.Abs(f) >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v out of int64 range", ErrBadValue, f)
	}
	return int64(math.Round(f)), nil
}
