package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"health-geo/internal/logger"
	"health-geo/internal/metrics"
	"health-geo/internal/models"

	"github.com/PuerkitoBio/goquery"
)

// HTMLTable scrapes contact tables from a directory page. Header cells become column names and
// rows go through the tabular row mapper, so the same aliases apply. Rows without coordinates
// are placed through the Geocoder when one is set.
type HTMLTable struct {
	name     string
	location string
	selector string
	client   *http.Client
	geocoder Geocoder
	timeout  time.Duration
	now      func() time.Time
}

// NewHTMLTable scrapes every table matching selector ("table" when empty).
func NewHTMLTable(name, location, selector string, client *http.Client, geocoder Geocoder, timeout time.Duration) *HTMLTable {
	if selector == "" {
		selector = "table"
	}
	return &HTMLTable{name: name, location: location, selector: selector, client: defaultClient(client), geocoder: geocoder, timeout: timeout, now: time.Now}
}

func (h *HTMLTable) Name() string { return h.name }

func (h *HTMLTable) Fetch(ctx context.Context, cat models.Category, q Query) (models.Batch, Outcome) {
	return guard(ctx, h.name, h.timeout, cat, q, h.fetch)
}

func (h *HTMLTable) fetch(ctx context.Context, cat models.Category, _ Query) (models.Batch, error) {
	if k := cat.Kind(); k != models.KindFacility && k != models.KindWorker {
		return models.Batch{}, unsupported(h.name, cat)
	}
	raw, err := readLocation(ctx, h.client, nil, h.location)
	if err != nil {
		return models.Batch{}, err
	}
	rows, err := scrapeTables(raw, h.selector)
	if err != nil {
		return models.Batch{}, err
	}
	if len(rows) == 0 {
		return models.Batch{}, fmt.Errorf("%w: no table rows under %q", ErrEmptyResult, h.selector)
	}
	m := rowMapper{source: h.name, now: h.now().UTC(), geocoder: h.geocoder}
	b, skipped, err := m.batch(cat, rows)
	if err != nil {
		return models.Batch{}, err
	}
	if skipped > 0 {
		metrics.AdapterSkippedTotal.WithLabelValues(h.name).Add(float64(skipped))
		logger.L().Debug("html_rows_unlocated", "adapter", h.name, "skipped", skipped)
	}
	return b, nil
}

func scrapeTables(raw []byte, selector string) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: html: %v", ErrParse, err)
	}
	var rows []Row
	doc.Find(selector).Each(func(_ int, table *goquery.Selection) {
		var header []string
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := cellTexts(tr)
			if len(cells) == 0 {
				return
			}
			if header == nil {
				header = cells
				return
			}
			m := make(map[string]string, len(header))
			for i, c := range cells {
				if i < len(header) && header[i] != "" {
					m[header[i]] = c
				}
			}
			rows = append(rows, NewRow(m))
		})
	})
	return rows, nil
}

func cellTexts(tr *goquery.Selection) []string {
	var out []string
	tr.Find("th, td").Each(func(_ int, c *goquery.Selection) {
		out = append(out, strings.Join(strings.Fields(c.Text()), " "))
	})
	return out
}
