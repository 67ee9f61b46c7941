package indexer

import "testing"

func TestTransition(t *testing.T) {
	tests := []struct {
		from State
		ev   event
		want State
	}{
		{Absent, evSaved, Loaded},
		{Absent, evLoaded, Loaded},
		{Absent, evLoadFailed, Absent},
		{Loaded, evSaved, Loaded},
		{Loaded, evRebuilt, Loaded},
		{Loaded, evDrained, Absent},
		{Loaded, evEvicted, Absent},
		{Loaded, evUnchanged, Loaded},
		{Absent, evUnchanged, Absent},
	}
	for _, tt := range tests {
		if got := transition(tt.from, tt.ev); got != tt.want {
			t.Errorf("transition(%s, %s) = %s, want %s", tt.from, tt.ev, got, tt.want)
		}
	}
}
