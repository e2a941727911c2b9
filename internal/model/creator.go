package model

// Creator はバックエンドストアが所有するクリエイター情報を表す。
// クライアントは変更せず、ページ単位で読み取るのみ。
// Emailは開示（reveal）されるまでnilとして扱う。
type Creator struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Username  string  `json:"username"`
	Followers int64   `json:"followers"`
	Image     string  `json:"image"`
	Profile   string  `json:"profile,omitempty"`
	Email     *string `json:"email"`
	HasEmail  bool    `json:"has_email"`
}

// SortDirection はフォロワー数による並び順を表す。
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Valid は並び順が既知の値かを返す。
func (d SortDirection) Valid() bool {
	return d == SortAsc || d == SortDesc
}

// CreatorQuery はバックエンドの検索RPCに渡すパラメータ。
// Start/Endはバックエンドの範囲指定と同じく両端を含む。
type CreatorQuery struct {
	SortDirection SortDirection
	Start         int
	End           int
	Search        string
	MinFollowers  int64
	MaxFollowers  *int64
}
