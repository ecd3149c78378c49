// Package dataio loads the two tabular input datasets and writes the run
// artifacts. The simulation core never parses raw text itself; it consumes
// the validated Market and Provider values produced here.
package dataio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/marketlens/market-simulator/model"
)

// LoadPostalCells reads the postal-code geography dataset
// (postal_code, market, latitude, longitude, str_tam, optional area) and
// returns the cells grouped by market identifier, in file order.
func LoadPostalCells(r io.Reader) (map[string][]model.PostalCell, error) {
	rows, header, err := readAll(r)
	if err != nil {
		return nil, fmt.Errorf("geo mapping: %w", err)
	}
	for _, col := range []string{"postal_code", "market", "latitude", "longitude", "str_tam"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%w: geo mapping missing column %q", model.ErrValidation, col)
		}
	}

	out := make(map[string][]model.PostalCell)
	for i, row := range rows {
		line := i + 2 // header is line 1

		lat, err := parseFloat(row, header, "latitude")
		if err != nil {
			return nil, fmt.Errorf("%w: geo mapping line %d: %v", model.ErrValidation, line, err)
		}
		lon, err := parseFloat(row, header, "longitude")
		if err != nil {
			return nil, fmt.Errorf("%w: geo mapping line %d: %v", model.ErrValidation, line, err)
		}
		tam, err := parseFloat(row, header, "str_tam")
		if err != nil {
			return nil, fmt.Errorf("%w: geo mapping line %d: %v", model.ErrValidation, line, err)
		}

		var area float64
		if idx, ok := header["area"]; ok && idx < len(row) && strings.TrimSpace(row[idx]) != "" {
			area, err = strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: geo mapping line %d: bad area: %v", model.ErrValidation, line, err)
			}
		}

		centroid, err := model.NewGeoPoint(lat, lon)
		if err != nil {
			return nil, fmt.Errorf("geo mapping line %d: %w", line, err)
		}

		cell := model.PostalCell{
			ID:           field(row, header, "postal_code"),
			Centroid:     centroid,
			DemandWeight: tam,
			AreaKm2:      area,
		}
		if err := cell.Validate(); err != nil {
			return nil, fmt.Errorf("geo mapping line %d: %w", line, err)
		}

		market := field(row, header, "market")
		if market == "" {
			return nil, fmt.Errorf("%w: geo mapping line %d: empty market", model.ErrValidation, line)
		}
		out[market] = append(out[market], cell)
	}
	return out, nil
}

// LoadProviders reads the providers dataset (contractor_id, latitude,
// longitude, postal_code, bidding_active, assignment_active, cleaner_score,
// service_radius, team_size, active_connections), validating every row.
func LoadProviders(r io.Reader) ([]*model.Provider, error) {
	rows, header, err := readAll(r)
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}
	required := []string{
		"contractor_id", "latitude", "longitude",
		"bidding_active", "assignment_active",
		"cleaner_score", "service_radius", "team_size", "active_connections",
	}
	for _, col := range required {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%w: providers missing column %q", model.ErrValidation, col)
		}
	}

	out := make([]*model.Provider, 0, len(rows))
	for i, row := range rows {
		line := i + 2

		lat, err := parseFloat(row, header, "latitude")
		if err != nil {
			return nil, fmt.Errorf("%w: providers line %d: %v", model.ErrValidation, line, err)
		}
		lon, err := parseFloat(row, header, "longitude")
		if err != nil {
			return nil, fmt.Errorf("%w: providers line %d: %v", model.ErrValidation, line, err)
		}
		score, err := parseFloat(row, header, "cleaner_score")
		if err != nil {
			return nil, fmt.Errorf("%w: providers line %d: %v", model.ErrValidation, line, err)
		}
		radius, err := parseFloat(row, header, "service_radius")
		if err != nil {
			return nil, fmt.Errorf("%w: providers line %d: %v", model.ErrValidation, line, err)
		}
		team, err := parseInt(row, header, "team_size")
		if err != nil {
			return nil, fmt.Errorf("%w: providers line %d: %v", model.ErrValidation, line, err)
		}
		active, err := parseInt(row, header, "active_connections")
		if err != nil {
			return nil, fmt.Errorf("%w: providers line %d: %v", model.ErrValidation, line, err)
		}
		bidding, err := parseBool(row, header, "bidding_active")
		if err != nil {
			return nil, fmt.Errorf("%w: providers line %d: %v", model.ErrValidation, line, err)
		}
		assignment, err := parseBool(row, header, "assignment_active")
		if err != nil {
			return nil, fmt.Errorf("%w: providers line %d: %v", model.ErrValidation, line, err)
		}

		location, err := model.NewGeoPoint(lat, lon)
		if err != nil {
			return nil, fmt.Errorf("providers line %d: %w", line, err)
		}

		p := &model.Provider{
			ID:                field(row, header, "contractor_id"),
			Location:          location,
			PostalCode:        field(row, header, "postal_code"),
			BiddingActive:     bidding,
			AssignmentActive:  assignment,
			Score:             score,
			ServiceRadiusKm:   radius,
			TeamSize:          team,
			ActiveConnections: active,
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("providers line %d: %w", line, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// readAll parses a headered CSV into rows plus a column-name index.
func readAll(r io.Reader) ([][]string, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: empty dataset", model.ErrValidation)
	}

	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return records[1:], header, nil
}

func field(row []string, header map[string]int, name string) string {
	idx, ok := header[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseFloat(row []string, header map[string]int, name string) (float64, error) {
	raw := field(row, header, name)
	if raw == "" {
		return 0, fmt.Errorf("empty %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s: %v", name, err)
	}
	return v, nil
}

func parseInt(row []string, header map[string]int, name string) (int, error) {
	raw := field(row, header, name)
	if raw == "" {
		return 0, fmt.Errorf("empty %s", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("bad %s: %v", name, err)
	}
	return v, nil
}

func parseBool(row []string, header map[string]int, name string) (bool, error) {
	raw := field(row, header, name)
	if raw == "" {
		return false, fmt.Errorf("empty %s", name)
	}
	v, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, fmt.Errorf("bad %s: %v", name, err)
	}
	return v, nil
}
