package money

import "testing"

func TestSplitStandardExamples(t *testing.T) {
	cases := []struct {
		total            Amount
		creator, platform Amount
	}{
		{0, 0, 0},
		{1_000_000, 900_000, 100_000},
		{999_999, 900_000, 99_999},
		{1, 1, 0},
		{9, 9, 0},
		{10, 9, 1},
	}
	for _, tc := range cases {
		got := SplitStandard(tc.total)
		if got.Creator != tc.creator || got.Platform != tc.platform {
			t.Errorf("SplitStandard(%d) = %+v, want creator=%d platform=%d",
				tc.total, got, tc.creator, tc.platform)
		}
	}
}

func TestSplitReferralExamples(t *testing.T) {
	got := SplitReferral(999_999)
	if got.Platform != 49_999 || got.Referrer != 49_999 || got.Creator != 900_001 {
		t.Fatalf("SplitReferral(999999) = %+v", got)
	}
	got = SplitReferral(1_000_000)
	if got.Platform != 50_000 || got.Referrer != 50_000 || got.Creator != 900_000 {
		t.Fatalf("SplitReferral(1000000) = %+v", got)
	}
}

func TestSplitsAlwaysSumToTotal(t *testing.T) {
	for total := Amount(0); total < 1000; total++ {
		std := SplitStandard(total)
		if std.Creator+std.Platform != total {
			t.Fatalf("standard split of %d leaks: %+v", total, std)
		}
		if std.Platform != total/10 {
			t.Fatalf("platform share of %d = %d, want %d", total, std.Platform, total/10)
		}
		ref := SplitReferral(total)
		if ref.Creator+ref.Platform+ref.Referrer != total {
			t.Fatalf("referral split of %d leaks: %+v", total, ref)
		}
		if ref.Platform != ref.Referrer {
			t.Fatalf("referral split of %d asymmetric: %+v", total, ref)
		}
	}
}

func TestSplitNegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for negative total")
		}
	}()
	SplitStandard(-1)
}

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		display string
		want    Amount
	}{
		{"0", 0},
		{"1", 1_000_000},
		{"5.00", 5_000_000},
		{"0.999999", 999_999},
		{"1.5", 1_500_000},
		// round half away from zero
		{"0.0000015", 2},
		{"-0.0000015", -2},
		{"0.0000014", 1},
	}
	for _, tc := range cases {
		got, err := ToBaseUnits(tc.display)
		if err != nil {
			t.Fatalf("ToBaseUnits(%q): %v", tc.display, err)
		}
		if got != tc.want {
			t.Errorf("ToBaseUnits(%q) = %d, want %d", tc.display, got, tc.want)
		}
	}
}

func TestToBaseUnitsRejectsGarbage(t *testing.T) {
	if _, err := ToBaseUnits("five"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDisplayRoundTrip(t *testing.T) {
	cases := []struct {
		units Amount
		want  string
	}{
		{0, "0"},
		{1_000_000, "1"},
		{1_500_000, "1.5"},
		{999_999, "0.999999"},
	}
	for _, tc := range cases {
		if got := FromBaseUnits(tc.units); got != tc.want {
			t.Errorf("FromBaseUnits(%d) = %q, want %q", tc.units, got, tc.want)
		}
	}
}
