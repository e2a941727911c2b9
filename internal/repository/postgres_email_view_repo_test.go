package repository

import (
	"testing"
)

func TestPostgresEmailViewRepo_ImplementsInterface(t *testing.T) {
	var _ EmailViewRepository = (*PostgresEmailViewRepo)(nil)
}

func TestParseRevealOutcome_Valid(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		success bool
		credits int
		already bool
		errStr  string
	}{
		{
			name:    "新規開示",
			raw:     `{"success": true, "credits_remaining": 4, "already_revealed": false}`,
			success: true, credits: 4,
		},
		{
			name:    "開示済み",
			raw:     `{"success": true, "credits_remaining": 0, "already_revealed": true}`,
			success: true, credits: 0, already: true,
		},
		{
			name:    "残高不足",
			raw:     `{"success": false, "credits_remaining": 0, "already_revealed": false, "error": "insufficient_credits"}`,
			success: false, credits: 0, errStr: "insufficient_credits",
		},
		{
			name:    "1要素の配列",
			raw:     ` [{"success": true, "credits_remaining": 2, "already_revealed": false}] `,
			success: true, credits: 2,
		},
		{
			name:    "already_revealed省略",
			raw:     `{"success": true, "credits_remaining": 3}`,
			success: true, credits: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRevealOutcome([]byte(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Success != tt.success || got.CreditsRemaining != tt.credits ||
				got.AlreadyRevealed != tt.already || got.Error != tt.errStr {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestParseRevealOutcome_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"空", ``},
		{"null", `null`},
		{"JSONでない", `not json`},
		{"success欠落", `{"credits_remaining": 1}`},
		{"credits欠落", `{"success": true}`},
		{"負の残高", `{"success": true, "credits_remaining": -1}`},
		{"型不一致", `{"success": "yes", "credits_remaining": 1}`},
		{"失敗理由なし", `{"success": false, "credits_remaining": 0}`},
		{"空配列", `[]`},
		{"複数要素", `[{"success": true, "credits_remaining": 1}, {"success": true, "credits_remaining": 1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRevealOutcome([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !IsMalformed(err) {
				t.Errorf("expected MalformedError, got %T: %v", err, err)
			}
		})
	}
}
