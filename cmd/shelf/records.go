package main

import (
	"github.com/franz/vinyl-shelf/internal/collection"
	"github.com/franz/vinyl-shelf/internal/store"
)

func toStoreRows(rows []collection.Row) []store.RunRow {
	out := make([]store.RunRow, len(rows))
	for i, r := range rows {
		out[i] = store.RunRow{
			Position:      i,
			ReleaseID:     r.ReleaseID,
			Artist:        r.ArtistDisplay,
			Title:         r.Title,
			Year:          r.Year,
			Label:         r.Label,
			CatalogNumber: r.CatalogNumber,
			Country:       r.Country,
			Format:        r.FormatDescription,
			URL:           r.URL,
			Notes:         r.Notes,
			SortArtist:    r.SortArtist,
			SortTitle:     r.SortTitle,
			LowestPrice:   r.Pricing.LowestPrice,
			NumForSale:    r.Pricing.NumForSale,
			Currency:      r.Pricing.Currency,
		}
	}
	return out
}

func fromStoreRows(rows []store.RunRow) []collection.Row {
	out := make([]collection.Row, len(rows))
	for i, r := range rows {
		out[i] = collection.Row{
			ReleaseID:         r.ReleaseID,
			ArtistDisplay:     r.Artist,
			Title:             r.Title,
			Year:              r.Year,
			Label:             r.Label,
			CatalogNumber:     r.CatalogNumber,
			Country:           r.Country,
			FormatDescription: r.Format,
			URL:               r.URL,
			Notes:             r.Notes,
			SortArtist:        r.SortArtist,
			SortTitle:         r.SortTitle,
			Pricing: collection.Pricing{
				LowestPrice: r.LowestPrice,
				NumForSale:  r.NumForSale,
				Currency:    r.Currency,
			},
		}
	}
	return out
}

func toStoreExclusions(exclusions []collection.Exclusion) []store.Exclusion {
	out := make([]store.Exclusion, len(exclusions))
	for i, e := range exclusions {
		out[i] = store.Exclusion{
			Position:  i,
			ReleaseID: e.ReleaseID,
			Artist:    e.ArtistDisplay,
			Title:     e.Title,
			Year:      e.Year,
			Format:    e.FormatDescription,
			Reason:    e.Reason,
		}
	}
	return out
}

// runRecord summarizes a build result for the history database
func runRecord(id string, cfg collection.Config, res *collection.Result, eventLog string) *store.Run {
	run := &store.Run{
		ID:            id,
		Username:      res.Username,
		Media:         string(cfg.Media),
		Policy:        cfg.Policy.String(),
		SortBy:        string(cfg.SortBy),
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
		State:         res.State.String(),
		Message:       res.Message,
		Scanned:       res.Stats.Scanned,
		Accepted:      res.Stats.Accepted,
		Excluded:      res.Stats.Excluded,
		Malformed:     res.Stats.Malformed,
		PricesFetched: res.Prices.Fetched,
		PricesCached:  res.Prices.FromCache,
		PricesSkipped: res.Prices.Skipped,
		EventLogPath:  eventLog,
	}
	if cfg.NeedsPrices() {
		run.Currency = cfg.Currency
	}
	if res.PriceError != nil {
		run.PriceError = res.PriceError.Error()
	}
	return run
}
