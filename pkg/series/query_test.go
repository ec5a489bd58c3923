package series

import (
	"testing"
	"time"
)

func TestOpsQuery(t *testing.T) {
	since := time.UnixMilli(1420070400000)

	tests := []struct {
		name      string
		storeID   int
		container string
		op        Op
		since     *time.Time
		want      string
	}{
		{
			name:      "exact container",
			storeID:   1,
			container: "photos",
			op:        OpPut,
			want:      `select * from /^ops\.provider\.1\.container\.photos\.op\.PUT$/ order asc`,
		},
		{
			name:      "dotted container is quoted",
			storeID:   1,
			container: "logs.2015",
			op:        OpDelete,
			want:      `select * from /^ops\.provider\.1\.container\.logs\.2015\.op\.DELETE$/ order asc`,
		},
		{
			name:      "wildcard",
			storeID:   7,
			container: AnyContainer,
			op:        OpPut,
			want:      `select * from /^ops\.provider\.7\.container\..*\.op\.PUT$/ order asc`,
		},
		{
			name:      "since cutoff",
			storeID:   1,
			container: "photos",
			op:        OpDelete,
			since:     &since,
			want:      `select * from /^ops\.provider\.1\.container\.photos\.op\.DELETE$/ where time > 1420070400000ms order asc`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OpsQuery(tt.storeID, tt.container, tt.op, tt.since)
			if got.String() != tt.want {
				t.Errorf("OpsQuery() =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}
}

func TestSnapshotQuery(t *testing.T) {
	got := SnapshotQuery(4)
	want := `select * from /^stats\.provider\.4\.container\..*$/ limit 1`
	if got.String() != want {
		t.Errorf("SnapshotQuery() = %s, want %s", got, want)
	}
}

func TestQueryKind(t *testing.T) {
	if k := SnapshotQuery(1).Kind(); k != KindSnapshot {
		t.Errorf("SnapshotQuery kind = %s, want snapshot", k)
	}
	if k := OpsQuery(1, AnyContainer, OpPut, nil).Kind(); k != KindOps {
		t.Errorf("OpsQuery kind = %s, want ops", k)
	}
}
