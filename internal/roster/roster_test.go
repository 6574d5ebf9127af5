package roster

import (
	"context"
	"errors"
	"testing"
)

func TestStatic(t *testing.T) {
	n, err := Static(156).Headcount(context.Background())
	if err != nil || n != 156 {
		t.Fatalf("Headcount = %d, %v, want 156, nil", n, err)
	}
	if _, err := Static(0).Headcount(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Static(0) err = %v, want ErrUnavailable", err)
	}
}

func TestFunc(t *testing.T) {
	var h Headcounter = Func(func(context.Context) (int, error) { return 42, nil })
	if n, _ := h.Headcount(context.Background()); n != 42 {
		t.Errorf("Headcount = %d, want 42", n)
	}
}
