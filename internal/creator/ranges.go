package creator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RangeAll はフォロワー数で絞り込まないことを示すラベル。
const RangeAll = "All"

// FollowerRange はフォロワー数の絞り込み範囲を表す。Maxがnilの場合は上限なし。
type FollowerRange struct {
	Label string `json:"label"`
	Min   int64  `json:"min"`
	Max   *int64 `json:"max"`
}

// FollowerRanges は画面の絞り込み候補。
var FollowerRanges = []string{
	RangeAll,
	"10K - 50K",
	"50K - 100K",
	"100K - 500K",
	"500K - 1M",
	"1M+",
}

// ParseFollowerRange はラベルを範囲に変換する。
// "All"と空文字列は下限0・上限なしとなる。
// それ以外は"<n>[K|M] - <n>[K|M]"または"<n>[K|M]+"の形式を受け付ける。
func ParseFollowerRange(label string) (FollowerRange, error) {
	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, RangeAll) {
		return FollowerRange{Label: RangeAll}, nil
	}

	if lower, ok := strings.CutSuffix(label, "+"); ok {
		min, err := parseCount(lower)
		if err != nil {
			return FollowerRange{}, fmt.Errorf("invalid follower range %q: %w", label, err)
		}
		return FollowerRange{Label: label, Min: min}, nil
	}

	lo, hi, ok := strings.Cut(label, "-")
	if !ok {
		return FollowerRange{}, fmt.Errorf("invalid follower range %q", label)
	}
	min, err := parseCount(lo)
	if err != nil {
		return FollowerRange{}, fmt.Errorf("invalid follower range %q: %w", label, err)
	}
	max, err := parseCount(hi)
	if err != nil {
		return FollowerRange{}, fmt.Errorf("invalid follower range %q: %w", label, err)
	}
	if max < min {
		return FollowerRange{}, fmt.Errorf("invalid follower range %q: upper bound below lower bound", label)
	}
	return FollowerRange{Label: label, Min: min, Max: &max}, nil
}

// parseCount は"10K"、"1.5M"、"500"のような表記を数値に変換する。
func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty count")
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1_000
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1_000_000
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	return int64(math.Round(v * mult)), nil
}
