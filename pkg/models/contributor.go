package models

// Contributor is an individual donor. Identity is not the raw field tuple but
// the hash of its normalized form (IdentityHash), so re-cased or re-spaced
// records resolve to the same row. The surrogate id is assigned by the store
// on first sight of a hash and preserved on later sightings; descriptive
// fields are latest-write-wins.
type Contributor struct {
	ContributorID uint   `gorm:"column:contributor_id;primaryKey"`
	Name          string `gorm:"column:name;size:255;not null"`
	City          string `gorm:"column:city;size:255"`
	State         string `gorm:"column:state;size:2"`
	ZipCode       string `gorm:"column:zip_code;size:255"`
	Occupation    string `gorm:"column:occupation;size:255"`
	Employer      string `gorm:"column:employer;size:255"`
	IdentityHash  string `gorm:"column:contributor_hash;size:64;uniqueIndex:contributors_contributor_hash_idx"`
}

// TableName exposes the table backing contributors.
func (Contributor) TableName() string {
	return "contributors"
}
