package snapshot

import (
	"sort"
	"testing"
)

func sortedKept(total uint32) []uint32 {
	set := KeptSet(total)
	out := make([]uint32, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestKeptSetBoundaryValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		total uint32
		want  []uint32
	}{
		{0, []uint32{}},
		{1, []uint32{0}},
		{2, []uint32{0, 1}},
		{3, []uint32{0, 1, 2}},
		{4, []uint32{0, 2, 3}},
		{6, []uint32{0, 2, 4, 5}},
		{8, []uint32{0, 4, 6, 7}},
		{9, []uint32{0, 4, 6, 8}},
		{10, []uint32{0, 4, 8, 9}},
		{29, []uint32{0, 8, 16, 24, 26, 28}},
	}

	for _, tc := range cases {
		got := sortedKept(tc.total)
		if !equalSlices(got, tc.want) {
			t.Errorf("KeptSet(%d) = %v, want %v", tc.total, got, tc.want)
		}
	}
}

func equalSlices(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestKeptSetMaxGap(t *testing.T) {
	t.Parallel()

	for total := uint32(0); total <= 200; total++ {
		sorted := sortedKept(total)
		maxGap := total / 2
		for i := 0; i+1 < len(sorted); i++ {
			if gap := sorted[i+1] - sorted[i]; gap > maxGap {
				t.Fatalf("KeptSet(%d) gap %d between %d and %d exceeds max %d", total, gap, sorted[i], sorted[i+1], maxGap)
			}
		}
	}
}

func TestKeptSetMonotonicityBelowU(t *testing.T) {
	t.Parallel()

	for total := uint32(0); total <= 100; total++ {
		small := KeptSet(total)
		for k := uint32(0); k <= 100; k++ {
			large := KeptSet(total + k)
			for v := range large {
				if v >= total {
					continue
				}
				if _, ok := small[v]; !ok {
					t.Fatalf("KeptSet(%d) contains %d but KeptSet(%d) does not", total+k, v, total)
				}
			}
		}
	}
}

func TestKeptSetSizeNonDecreasing(t *testing.T) {
	t.Parallel()

	for total := uint32(0); total < 200; total++ {
		if len(KeptSet(total)) > len(KeptSet(total+1)) {
			t.Fatalf("|KeptSet(%d)| > |KeptSet(%d)|", total, total+1)
		}
	}
}
