package model

import "time"

// CampaignStatus はキャンペーンの進行状態を表す。
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// Valid はステータスが既知の値かを返す。
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusActive, CampaignStatusCompleted:
		return true
	default:
		return false
	}
}

// Deliverables はキャンペーンで依頼する投稿数の内訳。
type Deliverables struct {
	Posts   int `json:"posts"`
	Stories int `json:"stories"`
	Reels   int `json:"reels"`
	Videos  int `json:"videos"`
}

// Total は全投稿数の合計を返す。
func (d Deliverables) Total() int {
	return d.Posts + d.Stories + d.Reels + d.Videos
}

// TargetAudience はキャンペーンのターゲット層。
type TargetAudience struct {
	AgeRange  string   `json:"age_range"`
	Locations []string `json:"locations"`
	Interests []string `json:"interests"`
}

// Campaign はブランドが作成するインフルエンサーキャンペーンを表す。
type Campaign struct {
	ID                string
	UserID            string
	Name              string
	Objective         string
	CampaignType      string
	Budget            float64
	StartDate         time.Time
	EndDate           time.Time
	Status            CampaignStatus
	CreatorIDs        []string
	Deliverables      Deliverables
	ContentGuidelines string
	AdditionalNotes   string
	TargetAudience    TargetAudience
	PaymentTerms      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
