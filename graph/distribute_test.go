package graph

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/notargets/meshkernel/comm"
)

func TestFetchFloatRows(t *testing.T) {
	const size = 3
	w, err := comm.NewWorld(size)
	if err != nil {
		t.Fatalf("NewWorld failed: %v", err)
	}
	err = w.Run(func(c *comm.Comm) error {
		// Rank r holds ids r and r+3 with rows [id, id/2].
		have := []int64{int64(c.Rank()), int64(c.Rank() + 3)}
		haveData := make([]float64, 0, 4)
		for _, id := range have {
			haveData = append(haveData, float64(id), float64(id)/2)
		}
		// Each rank wants the next rank's ids, out of holding order.
		next := int64((c.Rank() + 1) % size)
		want := []int64{next + 3, next}
		got, err := FetchFloatRows(c, have, haveData, 2, want)
		if err != nil {
			return err
		}
		expect := []float64{
			float64(next + 3), float64(next+3) / 2,
			float64(next), float64(next) / 2,
		}
		if diff := cmp.Diff(expect, got); diff != "" {
			return fmt.Errorf("rank %d (-want +got):\n%s", c.Rank(), diff)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFetchFloatRowsRepeatedWant(t *testing.T) {
	w, err := comm.NewWorld(2)
	if err != nil {
		t.Fatalf("NewWorld failed: %v", err)
	}
	err = w.Run(func(c *comm.Comm) error {
		var have []int64
		var haveData []float64
		if c.Rank() == 0 {
			have = []int64{0, 1}
			haveData = []float64{10, 11}
		}
		// The same id may be wanted more than once.
		got, err := FetchFloatRows(c, have, haveData, 1, []int64{1, 0, 1})
		if err != nil {
			return err
		}
		if diff := cmp.Diff([]float64{11, 10, 11}, got); diff != "" {
			return fmt.Errorf("rank %d (-want +got):\n%s", c.Rank(), diff)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFetchFloatRowsValidation(t *testing.T) {
	w, err := comm.NewWorld(1)
	if err != nil {
		t.Fatalf("NewWorld failed: %v", err)
	}
	c := w.Comm(0)
	if _, err := FetchFloatRows(c, nil, nil, 0, nil); err == nil {
		t.Error("expected error for zero stride")
	}
	if _, err := FetchFloatRows(c, []int64{1}, []float64{1, 2, 3}, 2, nil); err == nil {
		t.Error("expected error for data length mismatch")
	}
}

func TestFetchFloatRowsUnknownID(t *testing.T) {
	w, err := comm.NewWorld(1)
	if err != nil {
		t.Fatalf("NewWorld failed: %v", err)
	}
	err = w.Run(func(c *comm.Comm) error {
		_, err := FetchFloatRows(c, []int64{1}, []float64{1}, 1, []int64{2})
		if err == nil {
			return fmt.Errorf("expected error for unheld id")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
