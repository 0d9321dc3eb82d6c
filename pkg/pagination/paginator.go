package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/campfin/fec-sync/pkg/fecclient"
	"github.com/campfin/fec-sync/pkg/logging"
)

// DefaultPerPage is the page size requested from the upstream API.
const DefaultPerPage = 100

// PageFunc fetches a single page of one resource. Implementations are the
// endpoint methods of fecclient.Client.
type PageFunc func(ctx context.Context, params url.Values) (*fecclient.Envelope, error)

// Paginator walks one API resource to completion. Cursor advancement follows
// the envelope contract: stop when page >= pages or when no cursor comes
// back; otherwise copy every cursor field into the next request. The result
// is a finite, non-restartable sequence consumed once into memory, ordered as
// the upstream returned it.
type Paginator struct {
	fetch   PageFunc
	perPage int
	logger  zerolog.Logger
}

// NewPaginator creates a paginator over the given page fetcher.
func NewPaginator(fetch PageFunc) *Paginator {
	return &Paginator{
		fetch:   fetch,
		perPage: DefaultPerPage,
		logger:  logging.NewLogger("paginator"),
	}
}

// FetchAll walks every page and returns the concatenated raw results.
func (p *Paginator) FetchAll(ctx context.Context, params url.Values) ([]json.RawMessage, error) {
	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	query.Set("per_page", fmt.Sprintf("%d", p.perPage))

	var records []json.RawMessage

	for {
		envelope, err := p.fetch(ctx, query)
		if err != nil {
			return nil, err
		}

		records = append(records, envelope.Results...)

		pg := envelope.Pagination
		if pg.Pages == 0 && len(envelope.Results) > 0 {
			// Envelope came back without the expected pagination fields.
			// Treat as the final page rather than failing the walk.
			p.logger.Warn().
				Int("records", len(records)).
				Msg("Pagination envelope missing expected fields; assuming no more pages")
			break
		}
		if pg.Page >= pg.Pages {
			break
		}

		cursor := pg.CursorParams()
		if len(cursor) == 0 {
			p.logger.Warn().
				Int("page", pg.Page).
				Int("pages", pg.Pages).
				Msg("No pagination cursor returned before final page; stopping walk")
			break
		}
		for key, value := range cursor {
			query.Set(key, value)
		}

		p.logger.Debug().
			Int("page", pg.Page).
			Int("pages", pg.Pages).
			Int("records", len(records)).
			Msg("Advancing to next page")
	}

	return records, nil
}
