package models

import (
	"encoding/json"
	"fmt"
)

// Committee is a political committee, keyed by the external FEC committee id.
type Committee struct {
	CommitteeID   string `gorm:"column:committee_id;primaryKey;size:255"`
	Name          string `gorm:"column:name;size:255;not null"`
	City          string `gorm:"column:city;size:255"`
	State         string `gorm:"column:state;size:2"`
	TreasurerName string `gorm:"column:treasurer_name;size:255"`
	CommitteeType string `gorm:"column:committee_type;size:255"`
}

// TableName exposes the table backing committees.
func (Committee) TableName() string {
	return "committees"
}

// committeeRecord matches the upstream /committees/ result shape.
type committeeRecord struct {
	CommitteeID   string `json:"committee_id"`
	Name          string `json:"name"`
	City          string `json:"city"`
	State         string `json:"state"`
	TreasurerName string `json:"treasurer_name"`
	CommitteeType string `json:"committee_type"`
}

// CommitteeFromAPI builds a Committee from a raw upstream result.
func CommitteeFromAPI(raw json.RawMessage) (*Committee, error) {
	var record committeeRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode committee record: %w", err)
	}
	if record.CommitteeID == "" {
		return nil, fmt.Errorf("committee record missing committee_id")
	}

	return &Committee{
		CommitteeID:   record.CommitteeID,
		Name:          record.Name,
		City:          record.City,
		State:         record.State,
		TreasurerName: record.TreasurerName,
		CommitteeType: record.CommitteeType,
	}, nil
}
