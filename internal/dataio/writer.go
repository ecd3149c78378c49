package dataio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/marketlens/market-simulator/core"
)

// Artifact file names written by ExportResult.
const (
	SearchResultsFile = "search_results.csv"
	SummaryStatsFile  = "summary_stats.json"
	ConfigFile        = "config.json"
)

// WriteSearchResultsCSV writes one row per simulated search: point, eligible
// count, bid outcomes, and the connection outcome if any.
func WriteSearchResultsCSV(w io.Writer, result *core.SimulationResult) error {
	cw := csv.NewWriter(w)

	header := []string{
		"search_id", "latitude", "longitude", "postal_code",
		"eligible_count", "bid_count", "connected",
		"connection_provider_id", "connection_distance_km", "connection_score",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range result.Outcomes {
		o := &result.Outcomes[i]

		connected := "false"
		providerID := ""
		distance := ""
		score := ""
		if o.Connected != nil {
			connected = "true"
			providerID = o.Connected.ProviderID
			distance = strconv.FormatFloat(o.Connected.DistanceKm, 'f', 4, 64)
			score = strconv.FormatFloat(o.Connected.Score, 'f', 3, 64)
		}

		row := []string{
			o.SearchID,
			strconv.FormatFloat(o.Point.Lat, 'f', 6, 64),
			strconv.FormatFloat(o.Point.Lon, 'f', 6, 64),
			o.CellID,
			strconv.Itoa(len(o.Offers)),
			strconv.Itoa(len(o.Bids)),
			connected,
			providerID,
			distance,
			score,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSummaryJSON writes the finalised metric set as indented JSON.
func WriteSummaryJSON(w io.Writer, summary core.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// WriteConfigJSON writes the configuration a run was executed with.
func WriteConfigJSON(w io.Writer, cfg core.SimulationConfig) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// ExportResult writes the three run artifacts into dir, creating it if
// needed.
func ExportResult(dir string, result *core.SimulationResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	searches, err := os.Create(filepath.Join(dir, SearchResultsFile))
	if err != nil {
		return err
	}
	defer searches.Close()
	if err := WriteSearchResultsCSV(searches, result); err != nil {
		return fmt.Errorf("%s: %w", SearchResultsFile, err)
	}

	summary, err := os.Create(filepath.Join(dir, SummaryStatsFile))
	if err != nil {
		return err
	}
	defer summary.Close()
	if err := WriteSummaryJSON(summary, result.Summary); err != nil {
		return fmt.Errorf("%s: %w", SummaryStatsFile, err)
	}

	config, err := os.Create(filepath.Join(dir, ConfigFile))
	if err != nil {
		return err
	}
	defer config.Close()
	if err := WriteConfigJSON(config, result.Config); err != nil {
		return fmt.Errorf("%s: %w", ConfigFile, err)
	}

	return nil
}
