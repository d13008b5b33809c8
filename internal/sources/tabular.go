package sources

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"health-geo/internal/logger"
	"health-geo/internal/metrics"
	"health-geo/internal/models"

	"github.com/sfomuseum/go-csvdict"
)

// Tabular reads a delimited dataset with a header row from a URL or local path.
type Tabular struct {
	name     string
	location string
	client   *http.Client
	timeout  time.Duration
	now      func() time.Time
}

func NewTabular(name, location string, client *http.Client, timeout time.Duration) *Tabular {
	return &Tabular{name: name, location: location, client: defaultClient(client), timeout: timeout, now: time.Now}
}

func (t *Tabular) Name() string { return t.name }

func (t *Tabular) Fetch(ctx context.Context, cat models.Category, q Query) (models.Batch, Outcome) {
	return guard(ctx, t.name, t.timeout, cat, q, t.fetch)
}

func (t *Tabular) fetch(ctx context.Context, cat models.Category, _ Query) (models.Batch, error) {
	if k := cat.Kind(); k != models.KindFacility && k != models.KindWorker {
		return models.Batch{}, unsupported(t.name, cat)
	}
	raw, err := readLocation(ctx, t.client, nil, t.location)
	if err != nil {
		return models.Batch{}, err
	}
	rows, bad, err := readRows(bytes.NewReader(raw))
	if err != nil {
		return models.Batch{}, err
	}
	m := rowMapper{source: t.name, now: t.now().UTC()}
	b, skipped, err := m.batch(cat, rows)
	if err != nil {
		return models.Batch{}, err
	}
	if skipped+bad > 0 {
		metrics.AdapterSkippedTotal.WithLabelValues(t.name).Add(float64(skipped + bad))
		logger.L().Debug("tabular_rows_skipped", "adapter", t.name, "no_location", skipped, "malformed", bad)
	}
	if b.Len() == 0 {
		return models.Batch{}, fmt.Errorf("%w: %d rows, none located", ErrEmptyResult, len(rows))
	}
	return b, nil
}

// readRows parses CSV with a header row. Rows with the wrong field count are skipped and counted.
func readRows(r io.Reader) ([]Row, int, error) {
	rd, err := csvdict.NewReader(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("%w: empty document", ErrEmptyResult)
		}
		return nil, 0, fmt.Errorf("%w: read header: %v", ErrParse, err)
	}
	var (
		rows []Row
		bad  int
	)
	for {
		rec, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) && errors.Is(pe.Err, csv.ErrFieldCount) {
			bad++
			continue
		}
		if err != nil {
			return nil, bad, fmt.Errorf("%w: read row: %v", ErrParse, err)
		}
		rows = append(rows, NewRow(rec))
	}
	return rows, bad, nil
}
