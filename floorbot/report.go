package floorbot

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// trackedReportConcurrency caps parallel per-entry fetches in a
// tracked-list report. Each entry costs up to three upstream requests.
const trackedReportConcurrency = 4

// ErrNoFloorPrice marks a candidate collection the marketplace knows,
// but has no floor price for.
var ErrNoFloorPrice = errors.New("no floor price for collection")

// ItemStatus is the outcome of one item in a multi-item report. Items
// are always collected in input order; a failed item never aborts the
// rest of the run.
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemErrored ItemStatus = "errored"
	ItemSkipped ItemStatus = "skipped"
)

// FloorEntry is one candidate's outcome in a floor lookup.
type FloorEntry struct {
	Collection Collection
	Status     ItemStatus

	// Price is only meaningful when Status is ItemSuccess
	Price decimal.Decimal

	// Err is set when Status is ItemErrored: either a fetch error, or
	// [ErrNoFloorPrice]
	Err error
}

// FloorReport is the result of a free-text floor lookup. An empty
// Entries slice means no collections matched the query.
type FloorReport struct {
	Query   string
	Entries []FloorEntry
}

// Found reports whether the query resolved to any collections at all.
func (r *FloorReport) Found() bool {
	return len(r.Entries) > 0
}

// LookupFloor resolves up to the configured number of candidate
// collections for a free-text query and fetches each one's floor price.
// Candidates are processed independently: one candidate's fetch failure
// or missing price becomes an errored entry while the rest proceed.
// Only a failure of the search itself returns an error.
func (b *Bot) LookupFloor(
	ctx context.Context,
	query string,
) (*FloorReport, error) {
	collections, err := b.marketplace.SearchCollections(
		ctx,
		query,
		b.config.Marketplace.SearchLimit,
	)
	if err != nil {
		return nil, err
	}

	report := &FloorReport{Query: query}
	if len(collections) == 0 {
		return report, nil
	}

	for _, collection := range collections {
		entry := FloorEntry{Collection: collection}
		price, found, fetchErr := b.marketplace.FloorPrice(ctx, collection)
		switch {
		case fetchErr != nil:
			entry.Status = ItemErrored
			entry.Err = fetchErr
		case !found:
			entry.Status = ItemErrored
			entry.Err = ErrNoFloorPrice
		default:
			entry.Status = ItemSuccess
			entry.Price = price
		}
		report.Entries = append(report.Entries, entry)
	}
	return report, nil
}

// TrackedEntry is one tracked policy id's outcome in a tracked-list
// report. Position is the 1-based position in the stored list and is
// kept even for skipped entries, so successful entries keep their
// original numbering.
type TrackedEntry struct {
	Position int
	PolicyID string
	Status   ItemStatus

	Name       string
	FloorPrice decimal.Decimal
	Supply     int64
	Volume     decimal.Decimal

	// LastSale is nil when the last sale is unknown - its fetch failing
	// doesn't skip the entry, unlike the stats read
	LastSale *decimal.Decimal
}

// TrackedReport is the aggregated report over a guild's tracked policy
// ids, in insertion order. Skipped entries stay in the slice with
// Status set, so renderers (and tests) can see what was dropped.
type TrackedReport struct {
	GuildID int64
	Entries []TrackedEntry
}

// Successful returns the entries that produced metrics, in order.
func (r *TrackedReport) Successful() []TrackedEntry {
	var entries []TrackedEntry
	for _, e := range r.Entries {
		if e.Status == ItemSuccess {
			entries = append(entries, e)
		}
	}
	return entries
}

// TrackedReport builds the metrics report for every policy id the guild
// tracks. An empty tracked list returns [ErrNothingTracked] before any
// network access. Entries whose resolution or stats read fails are
// silently skipped; the report never fails as a whole once the list is
// loaded.
func (b *Bot) TrackedReport(
	ctx context.Context,
	guildID int64,
) (*TrackedReport, error) {
	policyIDs, err := b.store.List(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if len(policyIDs) == 0 {
		return nil, ErrNothingTracked
	}

	// Entries are fetched concurrently but land at their list index, so
	// the report keeps the stored insertion order. Failures are carried
	// in each entry's status, never through the group.
	entries := make([]TrackedEntry, len(policyIDs))
	g := new(errgroup.Group)
	g.SetLimit(trackedReportConcurrency)
	for i, policyID := range policyIDs {
		i, policyID := i, policyID
		g.Go(
			func() error {
				entries[i] = b.trackedEntry(ctx, i+1, policyID)
				return nil
			},
		)
	}
	_ = g.Wait()

	return &TrackedReport{GuildID: guildID, Entries: entries}, nil
}

func (b *Bot) trackedEntry(
	ctx context.Context,
	position int,
	policyID string,
) TrackedEntry {
	entry := TrackedEntry{
		Position: position,
		PolicyID: policyID,
		Status:   ItemSkipped,
	}

	// The first search hit is treated as canonical for the stored
	// policy id, even though the search is free-text. Two collections
	// with near-identical names can mis-resolve here; the upstream has
	// no direct by-id lookup to use instead.
	collections, searchErr := b.marketplace.SearchCollections(
		ctx,
		policyID,
		1,
	)
	if searchErr != nil || len(collections) == 0 {
		return entry
	}
	collection := collections[0]

	stats, found, statsErr := b.cnft.PolicyStats(ctx, policyID)
	if statsErr != nil || !found {
		return entry
	}

	entry.Status = ItemSuccess
	entry.Name = collection.DisplayName
	entry.FloorPrice = stats.FloorPrice
	entry.Supply = stats.Supply
	entry.Volume = stats.Volume

	if lastSale, ok, saleErr := b.marketplace.LastSale(
		ctx,
		collection,
	); saleErr == nil && ok {
		entry.LastSale = &lastSale
	}
	return entry
}

// Track registers a policy id for the guild. The id is validated by
// resolving it through the marketplace search; ids with no search hit
// return [ErrUnknownPolicy]. The resolved collection is returned so the
// caller can show its display name.
func (b *Bot) Track(
	ctx context.Context,
	guildID int64,
	policyID string,
) (*Collection, error) {
	exists, err := b.store.Exists(ctx, guildID, policyID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyTracked
	}

	collections, err := b.marketplace.SearchCollections(ctx, policyID, 1)
	if err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		return nil, ErrUnknownPolicy
	}
	collection := collections[0]

	if err = b.store.Add(ctx, guildID, policyID); err != nil {
		return nil, err
	}
	return &collection, nil
}

// Untrack removes a policy id from the guild's tracked list. Returns
// [ErrNotTracked] when the pair isn't tracked - the deletion itself is
// idempotent, the error is only for user-facing messaging.
func (b *Bot) Untrack(
	ctx context.Context,
	guildID int64,
	policyID string,
) error {
	exists, err := b.store.Exists(ctx, guildID, policyID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotTracked
	}
	return b.store.Remove(ctx, guildID, policyID)
}
