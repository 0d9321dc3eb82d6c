// Package sync drives the fetch-normalize-deduplicate-upsert pipeline end to
// end.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/campfin/fec-sync/pkg/fecclient"
	"github.com/campfin/fec-sync/pkg/logging"
	"github.com/campfin/fec-sync/pkg/models"
	"github.com/campfin/fec-sync/pkg/pagination"
)

// Prometheus metrics for pipeline runs.
var (
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_sync_runs_total",
		Help: "Total pipeline runs by outcome",
	}, []string{"outcome"})

	syncDroppedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_sync_dropped_rows_total",
		Help: "Contribution rows dropped before load by reason",
	}, []string{"reason"})
)

// Fetcher is the upstream API surface the pipeline consumes. Implemented by
// fecclient.Client.
type Fetcher interface {
	Candidates(ctx context.Context, params url.Values) (*fecclient.Envelope, error)
	Committees(ctx context.Context, params url.Values) (*fecclient.Envelope, error)
	Contributions(ctx context.Context, params url.Values) (*fecclient.Envelope, error)
}

// RecordStore is the loader surface the pipeline writes through. Implemented
// by store.Loader.
type RecordStore interface {
	UpsertCandidates(ctx context.Context, rows []*models.Candidate) (int, error)
	UpsertCommittees(ctx context.Context, rows []*models.Committee) (int, error)
	UpsertContributors(ctx context.Context, rows []*models.Contributor) (map[string]uint, error)
	InsertContributions(ctx context.Context, rows []*models.Contribution) (int, error)
	LinkCandidateCommittees(ctx context.Context, rows []*models.CandidateCommittee) (int, error)
}

// Options are the run parameters of one sync.
type Options struct {
	// Cycle is the two-year election cycle to fetch.
	Cycle int

	// Office filters the candidate fetch (e.g. "P").
	Office string

	// MinWorkers and MaxWorkers bound the fan-out pool.
	MinWorkers int
	MaxWorkers int
}

// Report summarizes a completed run.
type Report struct {
	Candidates            int
	Committees            int
	Contributors          int
	Contributions         int
	CandidateCommittees   int
	DroppedNoContributor  int
	DroppedNoCommittee    int
	DuplicateCHashInBatch int
	FailedFetchTargets    int
}

// Pipeline sequences candidate, committee, and contribution sync. One
// orchestrating goroutine drives the stages; concurrency happens only inside
// the coordinator fan-outs, and a stage never starts before the previous
// fan-out has fully drained.
type Pipeline struct {
	fetcher     Fetcher
	store       RecordStore
	coordinator *pagination.Coordinator
	opts        Options
	logger      zerolog.Logger
}

// New creates a pipeline.
func New(fetcher Fetcher, recordStore RecordStore, opts Options) *Pipeline {
	return &Pipeline{
		fetcher:     fetcher,
		store:       recordStore,
		coordinator: pagination.NewCoordinator(opts.MinWorkers, opts.MaxWorkers),
		opts:        opts,
		logger:      logging.NewLogger("pipeline"),
	}
}

// Run executes the full sync. It either completes every stage and returns a
// Report, or returns the first fatal error after whatever earlier chunks were
// durably committed. Re-running after a partial failure is safe: every row is
// idempotent under its conflict key.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	candidates, err := p.fetchCandidates(ctx)
	if err != nil {
		syncRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}

	report.Candidates, err = p.store.UpsertCandidates(ctx, candidates)
	if err != nil {
		syncRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	p.logger.Info().Int("count", report.Candidates).Msg("Candidates loaded")

	// Fan out one paginated contribution fetch per candidate. Results stay
	// grouped by candidate id so committee links can be derived.
	byCandidate, failed := p.coordinator.FetchGrouped(ctx, p.contributionTargets(candidates))
	report.FailedFetchTargets += failed

	records, links := p.parseContributions(byCandidate, report)

	committees, failedCommittees := p.fetchCommittees(ctx, records)
	report.FailedFetchTargets += failedCommittees

	report.Committees, err = p.store.UpsertCommittees(ctx, committees)
	if err != nil {
		syncRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("load committees: %w", err)
	}
	p.logger.Info().Int("count", report.Committees).Msg("Committees loaded")

	loadedCommittees := make(map[string]bool, len(committees))
	for _, committee := range committees {
		loadedCommittees[committee.CommitteeID] = true
	}

	// Contributor identities are hash-derived; the upsert returns the
	// hash → surrogate id map used to wire contribution foreign keys.
	contributors := make([]*models.Contributor, len(records))
	for i, record := range records {
		contributors[i] = record.Contributor()
	}
	hashToID, err := p.store.UpsertContributors(ctx, contributors)
	if err != nil {
		syncRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("load contributors: %w", err)
	}
	report.Contributors = len(hashToID)
	p.logger.Info().Int("count", report.Contributors).Msg("Contributors loaded")

	contributions := p.resolveContributions(records, hashToID, loadedCommittees, report)

	report.Contributions, err = p.store.InsertContributions(ctx, contributions)
	if err != nil {
		syncRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("load contributions: %w", err)
	}
	p.logger.Info().Int("count", report.Contributions).Msg("Contributions loaded")

	report.CandidateCommittees, err = p.store.LinkCandidateCommittees(ctx, filterLinks(links, loadedCommittees))
	if err != nil {
		syncRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("load candidate committees: %w", err)
	}

	syncRunsTotal.WithLabelValues("ok").Inc()
	p.logger.Info().
		Int("candidates", report.Candidates).
		Int("committees", report.Committees).
		Int("contributors", report.Contributors).
		Int("contributions", report.Contributions).
		Int("links", report.CandidateCommittees).
		Int("failed_targets", report.FailedFetchTargets).
		Msg("Sync complete")

	return report, nil
}

// fetchCandidates walks the single paginated candidate fetch. This stage is
// required: its failure is fatal for the run.
func (p *Pipeline) fetchCandidates(ctx context.Context) ([]*models.Candidate, error) {
	params := url.Values{}
	params.Set("cycle", fmt.Sprintf("%d", p.opts.Cycle))
	if p.opts.Office != "" {
		params.Set("office", p.opts.Office)
	}

	raw, err := pagination.NewPaginator(p.fetcher.Candidates).FetchAll(ctx, params)
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.Candidate, 0, len(raw))
	for _, record := range raw {
		candidate, err := models.CandidateFromAPI(record)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Skipping malformed candidate record")
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// contributionTargets builds one fan-out unit per candidate, querying
// schedule_a by the candidate's name within the cycle.
func (p *Pipeline) contributionTargets(candidates []*models.Candidate) []pagination.Target {
	targets := make([]pagination.Target, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Name == "" {
			continue
		}
		params := url.Values{}
		params.Set("contributor_name", candidate.Name)
		params.Set("two_year_transaction_period", fmt.Sprintf("%d", p.opts.Cycle))

		targets = append(targets, pagination.Target{
			Key:    candidate.CandidateID,
			Params: params,
			Fetch:  p.fetcher.Contributions,
		})
	}
	return targets
}

// parseContributions decodes the grouped raw rows into typed records and
// derives candidate-committee link candidates. Rows without a committee id
// cannot satisfy the foreign key and are dropped here.
func (p *Pipeline) parseContributions(byCandidate map[string][]json.RawMessage, report *Report) ([]*models.ContributionRecord, []*models.CandidateCommittee) {
	var records []*models.ContributionRecord
	linkSet := make(map[string]*models.CandidateCommittee)

	// Deterministic iteration keeps in-batch dedup stable across runs.
	candidateIDs := make([]string, 0, len(byCandidate))
	for candidateID := range byCandidate {
		candidateIDs = append(candidateIDs, candidateID)
	}
	sort.Strings(candidateIDs)

	for _, candidateID := range candidateIDs {
		for _, raw := range byCandidate[candidateID] {
			record, err := models.ContributionRecordFromAPI(raw)
			if err != nil {
				p.logger.Warn().Err(err).Str("candidate", candidateID).Msg("Skipping malformed contribution record")
				continue
			}
			if record.CommitteeID == "" {
				report.DroppedNoCommittee++
				syncDroppedRows.WithLabelValues("no_committee").Inc()
				continue
			}
			records = append(records, record)

			key := candidateID + "|" + record.CommitteeID
			if _, seen := linkSet[key]; !seen {
				linkSet[key] = &models.CandidateCommittee{
					CandidateID: candidateID,
					CommitteeID: record.CommitteeID,
				}
			}
		}
	}

	links := make([]*models.CandidateCommittee, 0, len(linkSet))
	keys := make([]string, 0, len(linkSet))
	for key := range linkSet {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		links = append(links, linkSet[key])
	}

	return records, links
}

// fetchCommittees fans out one committee fetch per unique committee id
// discovered in the contribution records.
func (p *Pipeline) fetchCommittees(ctx context.Context, records []*models.ContributionRecord) ([]*models.Committee, int) {
	ids := make(map[string]bool)
	for _, record := range records {
		ids[record.CommitteeID] = true
	}

	ordered := make([]string, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	targets := make([]pagination.Target, 0, len(ordered))
	for _, id := range ordered {
		params := url.Values{}
		params.Set("committee_id", id)

		targets = append(targets, pagination.Target{
			Key:    id,
			Params: params,
			Fetch:  p.fetcher.Committees,
		})
	}

	raw, failed := p.coordinator.FetchAll(ctx, targets)

	committees := make([]*models.Committee, 0, len(raw))
	for _, record := range raw {
		committee, err := models.CommitteeFromAPI(record)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Skipping malformed committee record")
			continue
		}
		committees = append(committees, committee)
	}
	return committees, failed
}

// resolveContributions attaches contributor surrogate ids, drops rows that
// cannot be wired (mapping gaps and unloaded committees), and collapses
// duplicate contribution hashes within the batch itself.
func (p *Pipeline) resolveContributions(records []*models.ContributionRecord, hashToID map[string]uint, loadedCommittees map[string]bool, report *Report) []*models.Contribution {
	seen := make(map[string]bool, len(records))
	contributions := make([]*models.Contribution, 0, len(records))

	for _, record := range records {
		contributorID, ok := hashToID[record.ContributorHash()]
		if !ok {
			report.DroppedNoContributor++
			syncDroppedRows.WithLabelValues("no_contributor").Inc()
			p.logger.Warn().
				Str("committee", record.CommitteeID).
				Msg("Dropping contribution with unmapped contributor hash")
			continue
		}
		if !loadedCommittees[record.CommitteeID] {
			report.DroppedNoCommittee++
			syncDroppedRows.WithLabelValues("no_committee").Inc()
			continue
		}

		contribution := record.Contribution(contributorID)
		if seen[contribution.ContributionHash] {
			report.DuplicateCHashInBatch++
			continue
		}
		seen[contribution.ContributionHash] = true
		contributions = append(contributions, contribution)
	}

	return contributions
}

// filterLinks keeps only associations whose committee was actually loaded.
func filterLinks(links []*models.CandidateCommittee, loadedCommittees map[string]bool) []*models.CandidateCommittee {
	kept := make([]*models.CandidateCommittee, 0, len(links))
	for _, link := range links {
		if loadedCommittees[link.CommitteeID] {
			kept = append(kept, link)
		}
	}
	return kept
}
