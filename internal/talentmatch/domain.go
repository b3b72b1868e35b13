// Package talentmatch maintains pending multi-party revenue agreements and
// executes their confirmation payouts.
package talentmatch

import (
	"time"

	"github.com/R3E-Network/course_marketplace/internal/gt"
)

// Match is one pending agreement, keyed by an opaque id. Coach may be the
// zero address and sponsor may equal talent; those shares redirect to the
// treasury at confirmation.
type Match struct {
	Key        string    `json:"key"`
	Talent     string    `json:"talent"`
	Coach      string    `json:"coach"`
	Sponsor    string    `json:"sponsor"`
	Teacher    string    `json:"teacher"`
	Collection string    `json:"collection"` // Collection whose teacher schedule splits the teacher pool
	TokenID    uint64    `json:"token_id"`
	Amount     gt.Amount `json:"amount"`
	MatchDate  int64     `json:"match_date"` // Unix seconds
	PayDate    int64     `json:"pay_date"`   // Unix seconds
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ShareScheme is the global basis-point partition applied at confirmation.
// The four components must sum to exactly 10000.
type ShareScheme struct {
	TalentShare  uint64 `json:"talent_share"`
	CoachShare   uint64 `json:"coach_share"`
	SponsorShare uint64 `json:"sponsor_share"`
	TeacherShare uint64 `json:"teacher_share"`
}

// Sum returns the scheme's total basis points.
func (s ShareScheme) Sum() uint64 {
	return s.TalentShare + s.CoachShare + s.SponsorShare + s.TeacherShare
}
