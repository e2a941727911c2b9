package creator

import "testing"

func TestParseFollowerRange_Presets(t *testing.T) {
	tests := []struct {
		label   string
		wantMin int64
		wantMax int64 // -1は上限なし
	}{
		{"All", 0, -1},
		{"", 0, -1},
		{"10K - 50K", 10_000, 50_000},
		{"50K - 100K", 50_000, 100_000},
		{"100K - 500K", 100_000, 500_000},
		{"500K - 1M", 500_000, 1_000_000},
		{"1M+", 1_000_000, -1},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			fr, err := ParseFollowerRange(tt.label)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if fr.Min != tt.wantMin {
				t.Errorf("Min = %d, want %d", fr.Min, tt.wantMin)
			}
			if tt.wantMax < 0 {
				if fr.Max != nil {
					t.Errorf("Max = %d, want nil", *fr.Max)
				}
				return
			}
			if fr.Max == nil || *fr.Max != tt.wantMax {
				t.Errorf("Max = %v, want %d", fr.Max, tt.wantMax)
			}
		})
	}
}

func TestParseFollowerRange_AllPresetsParse(t *testing.T) {
	for _, label := range FollowerRanges {
		if _, err := ParseFollowerRange(label); err != nil {
			t.Errorf("preset %q failed to parse: %v", label, err)
		}
	}
}

func TestParseFollowerRange_Generic(t *testing.T) {
	fr, err := ParseFollowerRange("1.5M - 2M")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fr.Min != 1_500_000 || fr.Max == nil || *fr.Max != 2_000_000 {
		t.Errorf("range = %d..%v", fr.Min, fr.Max)
	}

	fr, err = ParseFollowerRange("250+")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fr.Min != 250 || fr.Max != nil {
		t.Errorf("range = %d..%v", fr.Min, fr.Max)
	}
}

func TestParseFollowerRange_Invalid(t *testing.T) {
	for _, label := range []string{"lots", "10K", "50K - 10K", "-5 - 10", "K - M", "10X - 20X", "+"} {
		if _, err := ParseFollowerRange(label); err == nil {
			t.Errorf("ParseFollowerRange(%q) should fail", label)
		}
	}
}
