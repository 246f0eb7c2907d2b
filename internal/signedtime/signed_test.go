package signedtime

import (
	"testing"
	"time"
)

func TestSignedOrdering(t *testing.T) {
	t.Parallel()

	neg10 := NegOf(10 * time.Second)
	neg1 := NegOf(1 * time.Second)
	pos0 := Zero
	pos1 := FromDuration(1 * time.Second)

	vals := []Signed{neg10, neg1, pos0, pos1}
	for i := 0; i < len(vals)-1; i++ {
		if !vals[i].Less(vals[i+1]) {
			t.Fatalf("expected %v < %v", vals[i], vals[i+1])
		}
	}
}

func TestSignedNeg(t *testing.T) {
	t.Parallel()

	neg := NegOf(10 * time.Second)
	if got := neg.Neg(); got.Compare(FromDuration(10*time.Second)) != 0 {
		t.Fatalf("-Neg(10s) should equal Pos(10s), got %v", got)
	}
}

func TestSignedSum(t *testing.T) {
	t.Parallel()

	vs := []Signed{
		FromDuration(3 * time.Second),
		NegOf(1 * time.Second),
		FromDuration(2 * time.Second),
		NegOf(5 * time.Second),
	}

	got := Sum(vs)
	want := NegOf(1 * time.Second)
	if got.Compare(want) != 0 {
		t.Fatalf("Sum = %v, want %v", got, want)
	}
}

func TestSignedAddOppositeSigns(t *testing.T) {
	t.Parallel()

	a := FromDuration(5 * time.Second)
	b := NegOf(2 * time.Second)
	got := a.Add(b)
	want := FromDuration(3 * time.Second)
	if got.Compare(want) != 0 {
		t.Fatalf("Add = %v, want %v", got, want)
	}
}

func TestIntervalFirstCallFiresImmediately(t *testing.T) {
	t.Parallel()

	iv := NewInterval(100 * time.Millisecond)
	if !iv.IsTime() {
		t.Fatal("first IsTime call should fire")
	}
	if iv.IsTime() {
		t.Fatal("second immediate IsTime call should not fire")
	}
}

func TestIntervalCatchesUpWithoutDrift(t *testing.T) {
	t.Parallel()

	iv := NewInterval(10 * time.Millisecond)
	iv.IsTime()

	anchor := iv.last.Add(-25 * time.Millisecond)
	iv.last = &anchor

	if !iv.IsTime() {
		t.Fatal("expected fire once period has elapsed")
	}

	want := anchor.Add(10 * time.Millisecond)
	if !iv.last.Equal(want) {
		t.Fatalf("anchor advanced by %v, want exactly one period past previous anchor %v", iv.last, want)
	}
}

func TestDivDurationRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n, d time.Duration
	}{
		{0, time.Millisecond},
		{16 * time.Millisecond, 16 * time.Millisecond},
		{100 * time.Millisecond, 16 * time.Millisecond},
		{17 * time.Millisecond, 16 * time.Millisecond},
		{1 * time.Second, 17 * time.Millisecond},
	}

	for _, tc := range cases {
		q, r := DivDuration(tc.n, tc.d)
		if got := tc.d*time.Duration(q) + r; got != tc.n {
			t.Errorf("DivDuration(%v, %v): q=%d r=%v, d*q+r=%v want %v", tc.n, tc.d, q, r, got, tc.n)
		}
		if r < 0 || r >= tc.d {
			t.Errorf("DivDuration(%v, %v): remainder %v out of range [0, %v)", tc.n, tc.d, r, tc.d)
		}
	}
}
