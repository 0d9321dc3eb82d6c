package store

import (
	"gorm.io/gorm/clause"
)

// Strategy describes how one table resolves insert conflicts: the conflict
// key, the conflict action, and which columns the incoming row overwrites.
// Modeling this per table keeps adding tables a data change rather than a
// branching one.
type Strategy struct {
	// Table is the target table name, used for logging and metrics.
	Table string

	// ConflictColumns is the natural or hash key the table conflicts on.
	ConflictColumns []string

	// DoNothing makes conflicting rows a no-op (immutable tables).
	DoNothing bool

	// UpdateColumns are overwritten with the incoming values on conflict
	// (last-write-wins). Ignored when DoNothing is set.
	UpdateColumns []string
}

// Clause renders the strategy as a gorm ON CONFLICT clause.
func (s Strategy) Clause() clause.OnConflict {
	columns := make([]clause.Column, len(s.ConflictColumns))
	for i, name := range s.ConflictColumns {
		columns[i] = clause.Column{Name: name}
	}

	if s.DoNothing {
		return clause.OnConflict{
			Columns:   columns,
			DoNothing: true,
		}
	}
	return clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.AssignmentColumns(s.UpdateColumns),
	}
}

// Per-table conflict policies. Candidates and committees upsert on their
// external natural key with last-write-wins. Contributors upsert on the
// identity hash and overwrite descriptive columns, relying on RETURNING to
// surface the surrogate id. Contributions and the candidate-committee join
// are immutable once recorded.
var (
	candidateStrategy = Strategy{
		Table:           "candidates",
		ConflictColumns: []string{"candidate_id"},
		UpdateColumns:   []string{"name", "party", "state", "office", "election_year"},
	}

	committeeStrategy = Strategy{
		Table:           "committees",
		ConflictColumns: []string{"committee_id"},
		UpdateColumns:   []string{"name", "city", "state", "treasurer_name", "committee_type"},
	}

	contributorStrategy = Strategy{
		Table:           "contributors",
		ConflictColumns: []string{"contributor_hash"},
		UpdateColumns:   []string{"name", "city", "state", "zip_code", "occupation", "employer"},
	}

	contributionStrategy = Strategy{
		Table:           "contributions",
		ConflictColumns: []string{"contribution_hash"},
		DoNothing:       true,
	}

	candidateCommitteeStrategy = Strategy{
		Table:           "candidate_committees",
		ConflictColumns: []string{"candidate_id", "committee_id"},
		DoNothing:       true,
	}
)
