package models

import (
	"encoding/json"
	"fmt"

	"github.com/campfin/fec-sync/pkg/identity"
)

// Contribution is a single receipt, immutable once inserted. It is
// deduplicated on ContributionHash: identical (committee, date, amount,
// contributor identity) inputs across runs or across overlapping paginated
// fetches collapse to one row.
type Contribution struct {
	ContributionID     uint    `gorm:"column:contribution_id;primaryKey"`
	CommitteeID        string  `gorm:"column:committee_id;size:255"`
	ContributorID      uint    `gorm:"column:contributor_id"`
	ContributionDate   *string `gorm:"column:contribution_date;type:date"`
	ContributionAmount float64 `gorm:"column:contribution_amount;type:numeric(12,2)"`
	ContributionHash   string  `gorm:"column:contribution_hash;size:64;uniqueIndex:contributions_contribution_hash_idx"`

	Committee   *Committee   `gorm:"foreignKey:CommitteeID;references:CommitteeID"`
	Contributor *Contributor `gorm:"foreignKey:ContributorID;references:ContributorID"`
}

// TableName exposes the table backing contributions.
func (Contribution) TableName() string {
	return "contributions"
}

// ContributionRecord is a contribution as fetched, before contributor
// resolution. Date and Amount keep their raw upstream text because both feed
// the contribution hash verbatim.
type ContributionRecord struct {
	CommitteeID string      `json:"committee_id"`
	Name        string      `json:"contributor_name"`
	City        string      `json:"contributor_city"`
	State       string      `json:"contributor_state"`
	ZipCode     string      `json:"contributor_zip"`
	Occupation  string      `json:"contributor_occupation"`
	Employer    string      `json:"contributor_employer"`
	Date        string      `json:"contribution_receipt_date"`
	Amount      json.Number `json:"contribution_receipt_amount"`
}

// ContributionRecordFromAPI builds a record from a raw /schedules/schedule_a/
// result. Missing fields default to empty; only undecodable JSON is an error.
func ContributionRecordFromAPI(raw json.RawMessage) (*ContributionRecord, error) {
	var record ContributionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode contribution record: %w", err)
	}
	return &record, nil
}

// ContributorHash derives the stable contributor identity hash from the
// record's free-text fields.
func (r *ContributionRecord) ContributorHash() string {
	return identity.ContributorHash(r.Name, r.City, r.State, r.ZipCode, r.Occupation, r.Employer)
}

// Contributor builds the contributor row for this record. Descriptive fields
// keep their raw form; only the hash is normalized.
func (r *ContributionRecord) Contributor() *Contributor {
	return &Contributor{
		Name:         r.Name,
		City:         r.City,
		State:        r.State,
		ZipCode:      r.ZipCode,
		Occupation:   r.Occupation,
		Employer:     r.Employer,
		IdentityHash: r.ContributorHash(),
	}
}

// Contribution builds the storable row once the contributor surrogate id is
// known. The hash is computed from the raw date and amount text and the
// contributor identity hash, in that fixed order.
func (r *ContributionRecord) Contribution(contributorID uint) *Contribution {
	amount, _ := r.Amount.Float64()

	var date *string
	if r.Date != "" {
		d := r.Date
		date = &d
	}

	return &Contribution{
		CommitteeID:        r.CommitteeID,
		ContributorID:      contributorID,
		ContributionDate:   date,
		ContributionAmount: amount,
		ContributionHash:   identity.ContributionHash(r.CommitteeID, r.Date, r.Amount.String(), r.ContributorHash()),
	}
}
