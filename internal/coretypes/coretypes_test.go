package coretypes

import "testing"

func TestConfirmationMap(t *testing.T) {
	t.Parallel()

	c := ConfirmedOf(3)
	mapped := Map(c, func(v int) string {
		return "x"
	})
	if mapped.Tag != Confirmed {
		t.Fatalf("Map should preserve tag, got %v", mapped.Tag)
	}
	if mapped.Value != "x" {
		t.Fatalf("Map should transform value, got %q", mapped.Value)
	}
}

func TestPlayerInputsPopulation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		entries       int
		remoteCount   int
		fullyPop      bool
		allConfirmed  bool
		wantConfirmed bool
	}{
		{"empty", 0, 1, false, true, false},
		{"partial", 1, 1, false, true, false},
		{"full-confirmed", 2, 1, true, true, true},
		{"full-unconfirmed", 2, 1, true, false, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pi := NewPlayerInputs()
			for i := 0; i < tc.entries; i++ {
				tag := Confirmed
				if !tc.allConfirmed {
					tag = Unconfirmed
				}
				pi.Set(PlayerId(i), Confirmation[[]byte]{Tag: tag, Value: []byte{byte(i)}})
			}

			if got := pi.IsFullyPopulated(tc.remoteCount); got != tc.fullyPop {
				t.Errorf("IsFullyPopulated = %v, want %v", got, tc.fullyPop)
			}
			if got := pi.IsFullyConfirmed(tc.remoteCount); got != tc.wantConfirmed {
				t.Errorf("IsFullyConfirmed = %v, want %v", got, tc.wantConfirmed)
			}
		})
	}
}

func TestPlayerInputsOverfullPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when entries exceed remoteCount+1")
		}
	}()

	pi := NewPlayerInputs()
	pi.Set(0, ConfirmedOf([]byte("a")))
	pi.Set(1, ConfirmedOf([]byte("b")))
	pi.IsFullyPopulated(0)
}
