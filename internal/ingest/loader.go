// Package ingest loads volatility snapshot files into the history
// store. Malformed rows are skipped with a logged reason and counted;
// the store enforces append-only first-write-wins on (symbol, date).
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/internal/history"
	"github.com/seolwon/ivscreen/pkg/logger"
)

// CSV layout for volatility snapshots. IV and HV cells may be empty;
// empty means the value is unknown, never zero.
//
//	symbol,date,iv_t30,iv_t60,iv_t90,hv_w20,hv_w60,hv_w120,source,quality
var csvHeader = []string{
	"symbol", "date", "iv_t30", "iv_t60", "iv_t90",
	"hv_w20", "hv_w60", "hv_w120", "source", "quality",
}

var (
	ivTenors  = []int{30, 60, 90}
	hvWindows = []int{20, 60, 120}
)

// Report summarizes one ingestion.
type Report struct {
	RowsRead          int `json:"rows_read"`
	Written           int `json:"written"`
	SkippedMalformed  int `json:"skipped_malformed"`
	SkippedInvalid    int `json:"skipped_invalid"`
	SkippedDuplicates int `json:"skipped_duplicates"`
}

// Loader parses snapshot CSVs and appends them to the history store.
type Loader struct {
	store history.Store
	log   *logger.Logger
}

// NewLoader creates an ingestion loader.
func NewLoader(store history.Store, log *logger.Logger) *Loader {
	return &Loader{store: store, log: log}
}

// LoadFile ingests one CSV file from disk.
func (l *Loader) LoadFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open snapshot %q: %w", path, err)
	}
	defer f.Close()
	return l.Load(ctx, f)
}

// Load ingests CSV data from a reader. A bad header fails the load; bad
// rows are skipped and counted.
func (l *Loader) Load(ctx context.Context, r io.Reader) (Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if err != nil {
		return Report{}, fmt.Errorf("read snapshot header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return Report{}, err
	}

	report := Report{}
	var observations []contracts.VolatilityObservation

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Structural CSV damage (wrong column count, bad quoting)
			// is a row-level input error, not a batch failure.
			l.log.WithFields(map[string]interface{}{
				"line":   line,
				"reason": err.Error(),
			}).Warn("Skipping malformed snapshot row")
			report.RowsRead++
			report.SkippedMalformed++
			continue
		}

		report.RowsRead++
		obs, err := parseRow(record)
		if err != nil {
			l.log.WithFields(map[string]interface{}{
				"line":   line,
				"reason": err.Error(),
			}).Warn("Skipping malformed snapshot row")
			report.SkippedMalformed++
			continue
		}
		observations = append(observations, obs)
	}

	res, err := l.store.Append(ctx, observations)
	if err != nil {
		return report, fmt.Errorf("append observations: %w", err)
	}
	report.Written = res.Written
	report.SkippedInvalid = res.SkippedInvalid
	report.SkippedDuplicates = res.SkippedDuplicates

	l.log.WithFields(map[string]interface{}{
		"rows":       report.RowsRead,
		"written":    report.Written,
		"malformed":  report.SkippedMalformed,
		"invalid":    report.SkippedInvalid,
		"duplicates": report.SkippedDuplicates,
	}).Info("Snapshot ingestion completed")
	return report, nil
}

func checkHeader(header []string) error {
	if len(header) != len(csvHeader) {
		return fmt.Errorf("snapshot header has %d columns, want %d", len(header), len(csvHeader))
	}
	for i, name := range csvHeader {
		if strings.TrimSpace(strings.ToLower(header[i])) != name {
			return fmt.Errorf("snapshot header column %d is %q, want %q", i, header[i], name)
		}
	}
	return nil
}

func parseRow(record []string) (contracts.VolatilityObservation, error) {
	obs := contracts.VolatilityObservation{
		Symbol:     strings.TrimSpace(record[0]),
		IVByTenor:  make(map[int]float64),
		HVByWindow: make(map[int]float64),
		Source:     strings.TrimSpace(record[8]),
		Quality:    contracts.QualityTag(strings.TrimSpace(strings.ToUpper(record[9]))),
	}
	if obs.Symbol == "" {
		return obs, fmt.Errorf("missing symbol")
	}

	date, err := time.Parse("2006-01-02", strings.TrimSpace(record[1]))
	if err != nil {
		return obs, fmt.Errorf("bad date %q: %w", record[1], err)
	}
	obs.Date = date.UTC()

	for i, tenor := range ivTenors {
		v, ok, err := parseCell(record[2+i])
		if err != nil {
			return obs, fmt.Errorf("bad iv_t%d %q: %w", tenor, record[2+i], err)
		}
		if ok {
			obs.IVByTenor[tenor] = v
		}
	}
	for i, window := range hvWindows {
		v, ok, err := parseCell(record[5+i])
		if err != nil {
			return obs, fmt.Errorf("bad hv_w%d %q: %w", window, record[5+i], err)
		}
		if ok {
			obs.HVByWindow[window] = v
		}
	}

	if !contracts.IsValidQualityTag(string(obs.Quality)) {
		return obs, fmt.Errorf("unknown quality tag %q", obs.Quality)
	}
	return obs, nil
}

// parseCell parses an optional volatility cell. Empty means unknown and
// is simply absent from the map; NaN in input is treated as malformed.
func parseCell(cell string) (float64, bool, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("non-finite value")
	}
	return v, true, nil
}
