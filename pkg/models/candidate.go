// Package models defines the typed records flowing through the sync pipeline
// and their relational mappings.
package models

import (
	"encoding/json"
	"fmt"
)

// Candidate is a campaign candidate, keyed by the external FEC candidate id.
// Rows are created or updated on each sync and never deleted.
type Candidate struct {
	CandidateID  string `gorm:"column:candidate_id;primaryKey;size:255"`
	Name         string `gorm:"column:name;size:255;not null"`
	Party        string `gorm:"column:party;size:255"`
	State        string `gorm:"column:state;size:2"`
	Office       string `gorm:"column:office;size:255"`
	ElectionYear int    `gorm:"column:election_year"`
}

// TableName exposes the table backing candidates.
func (Candidate) TableName() string {
	return "candidates"
}

// candidateRecord matches the upstream /candidates/ result shape.
type candidateRecord struct {
	CandidateID   string `json:"candidate_id"`
	Name          string `json:"name"`
	Party         string `json:"party"`
	State         string `json:"state"`
	Office        string `json:"office"`
	ElectionYears []int  `json:"election_years"`
}

// CandidateFromAPI builds a Candidate from a raw upstream result. A record
// without the external id is rejected; other missing fields default to their
// zero values.
func CandidateFromAPI(raw json.RawMessage) (*Candidate, error) {
	var record candidateRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode candidate record: %w", err)
	}
	if record.CandidateID == "" {
		return nil, fmt.Errorf("candidate record missing candidate_id")
	}

	candidate := &Candidate{
		CandidateID: record.CandidateID,
		Name:        record.Name,
		Party:       record.Party,
		State:       record.State,
		Office:      record.Office,
	}
	if len(record.ElectionYears) > 0 {
		candidate.ElectionYear = record.ElectionYears[0]
	}
	return candidate, nil
}
