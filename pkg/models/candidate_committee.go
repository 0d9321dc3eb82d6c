package models

// CandidateCommittee links a candidate to a committee observed in that
// candidate's contribution records. Existence-only, no payload.
type CandidateCommittee struct {
	CandidateID string `gorm:"column:candidate_id;primaryKey;size:255"`
	CommitteeID string `gorm:"column:committee_id;primaryKey;size:255"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID"`
	Committee *Committee `gorm:"foreignKey:CommitteeID;references:CommitteeID"`
}

// TableName exposes the join table.
func (CandidateCommittee) TableName() string {
	return "candidate_committees"
}
