package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewAdjacency(t *testing.T) {
	a := NewAdjacency([][]int32{{3, 1}, {}, {2}})
	if a.NumNodes() != 3 {
		t.Fatalf("NumNodes() = %d, want 3", a.NumNodes())
	}
	if diff := cmp.Diff([]int32{0, 2, 2, 3}, a.Offsets); diff != "" {
		t.Errorf("offsets (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int32{3, 1}, a.Row(0)); diff != "" {
		t.Errorf("row 0 (-want +got):\n%s", diff)
	}
	if a.Degree(1) != 0 || a.Degree(2) != 1 {
		t.Errorf("degrees = %d, %d, want 0, 1", a.Degree(1), a.Degree(2))
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestNewAdjacency64(t *testing.T) {
	a := NewAdjacency64([][]int64{{10}, {20, 30}})
	if a.NumNodes() != 2 || a.Degree(1) != 2 {
		t.Fatalf("unexpected shape: %d nodes, degree %d", a.NumNodes(), a.Degree(1))
	}
	if diff := cmp.Diff([]int64{20, 30}, a.Row(1)); diff != "" {
		t.Errorf("row 1 (-want +got):\n%s", diff)
	}
}

func TestNewFixedAdjacency64(t *testing.T) {
	a, err := NewFixedAdjacency64(3, []int64{0, 1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("NewFixedAdjacency64 failed: %v", err)
	}
	if a.NumNodes() != 2 {
		t.Errorf("NumNodes() = %d, want 2", a.NumNodes())
	}
	if diff := cmp.Diff([]int64{3, 4, 5}, a.Row(1)); diff != "" {
		t.Errorf("row 1 (-want +got):\n%s", diff)
	}
	if _, err := NewFixedAdjacency64(0, nil); err == nil {
		t.Error("expected error for zero width")
	}
	if _, err := NewFixedAdjacency64(4, []int64{1, 2, 3}); err == nil {
		t.Error("expected error for ragged data")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		a    Adjacency
	}{
		{"empty offsets", Adjacency{}},
		{"nonzero start", Adjacency{Offsets: []int32{1, 2}, Data: []int32{0}}},
		{"decreasing", Adjacency{Offsets: []int32{0, 2, 1}, Data: []int32{0, 0}}},
		{"length mismatch", Adjacency{Offsets: []int32{0, 2}, Data: []int32{0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.a.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTranspose(t *testing.T) {
	// 0 -> {1, 2}, 1 -> {2}, 2 -> {}
	a := NewAdjacency([][]int32{{1, 2}, {2}, {}})
	at := Transpose(a, 3)
	want := NewAdjacency([][]int32{{}, {0}, {0, 1}})
	if diff := cmp.Diff(want.Offsets, at.Offsets); diff != "" {
		t.Errorf("offsets (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Data, at.Data); diff != "" {
		t.Errorf("data (-want +got):\n%s", diff)
	}
	if err := at.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestSortRows(t *testing.T) {
	a := NewAdjacency([][]int32{{5, 1, 3}, {2, 0}})
	a.SortRows()
	if diff := cmp.Diff([]int32{1, 3, 5}, a.Row(0)); diff != "" {
		t.Errorf("row 0 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int32{0, 2}, a.Row(1)); diff != "" {
		t.Errorf("row 1 (-want +got):\n%s", diff)
	}
}
