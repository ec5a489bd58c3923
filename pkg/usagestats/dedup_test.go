package usagestats

import (
	"testing"
	"time"

	"github.com/bouncestorage/bounce-stats/pkg/series"
)

func ev(ms int64, key string, size int64) series.SizeEvent {
	return series.SizeEvent{Timestamp: time.UnixMilli(ms), Key: key, Size: size}
}

func TestAggregateSizes(t *testing.T) {
	tests := []struct {
		name   string
		events []series.SizeEvent
		want   int64
	}{
		{"empty", nil, 0},
		{"single", []series.SizeEvent{ev(1, "a", 10)}, 10},
		{
			name:   "repeated key keeps earliest",
			events: []series.SizeEvent{ev(1, "a", 10), ev(2, "b", 5), ev(3, "a", 99)},
			want:   15,
		},
		{
			name:   "shard duplicates",
			events: []series.SizeEvent{ev(1, "a", 7), ev(1, "a", 7), ev(1, "a", 7), ev(2, "b", 1)},
			want:   8,
		},
		{
			name:   "equal timestamps keep delivery order",
			events: []series.SizeEvent{ev(5, "a", 1), ev(5, "a", 2)},
			want:   1,
		},
		{
			name:   "out of order batch is sorted first",
			events: []series.SizeEvent{ev(3, "a", 99), ev(1, "a", 10), ev(2, "b", 5)},
			want:   15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateSizes(tt.events); got != tt.want {
				t.Errorf("AggregateSizes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAggregateSizes_DoesNotReorderInput(t *testing.T) {
	events := []series.SizeEvent{ev(3, "a", 99), ev(1, "a", 10)}
	AggregateSizes(events)
	if events[0].Key != "a" || events[0].Size != 99 {
		t.Errorf("input reordered: %+v", events)
	}
}
