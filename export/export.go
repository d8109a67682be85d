// Package export assembles offline reporting artifacts: every publication
// with decrypted content and aggregate counts, every identity, every report.
// It always goes through the store's read paths, so raw ciphertext never
// leaks into an export file.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/whisperwall/whisperwall/identity"
	"github.com/whisperwall/whisperwall/models"
	"github.com/whisperwall/whisperwall/moderation"
	"github.com/whisperwall/whisperwall/store"
)

const pageSize = 500

type Exporter struct {
	store  *store.Store
	ids    *identity.Directory
	ledger *moderation.Ledger
	logger *slog.Logger
}

func NewExporter(st *store.Store, ids *identity.Directory, ledger *moderation.Ledger, logger *slog.Logger) *Exporter {
	return &Exporter{
		store:  st,
		ids:    ids,
		ledger: ledger,
		logger: logger.With("component", "export"),
	}
}

type Snapshot struct {
	GeneratedAt  time.Time                `json:"generatedAt"`
	Publications []*store.PublicationView `json:"publications"`
	Identities   []models.Identity        `json:"identities"`
	Reports      []models.Report          `json:"reports"`
}

// BuildSnapshot gathers the three record families concurrently.
func (e *Exporter) BuildSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{GeneratedAt: time.Now().UTC()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pubs, err := e.allPublications(ctx)
		snap.Publications = pubs
		return err
	})
	g.Go(func() error {
		idents, err := e.allIdentities(ctx)
		snap.Identities = idents
		return err
	})
	g.Go(func() error {
		reps, err := e.allReports(ctx)
		snap.Reports = reps
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building export snapshot: %w", err)
	}

	e.logger.Info("export snapshot built",
		"publications", len(snap.Publications),
		"identities", len(snap.Identities),
		"reports", len(snap.Reports))
	return snap, nil
}

func (e *Exporter) allPublications(ctx context.Context) ([]*store.PublicationView, error) {
	var out []*store.PublicationView
	for page := 1; ; page++ {
		views, total, err := e.store.ListPublications(ctx, page, pageSize, "")
		if err != nil {
			return nil, err
		}
		out = append(out, views...)
		if int64(len(out)) >= total || len(views) == 0 {
			return out, nil
		}
	}
}

func (e *Exporter) allIdentities(ctx context.Context) ([]models.Identity, error) {
	var out []models.Identity
	for page := 1; ; page++ {
		idents, total, err := e.ids.List(ctx, page, pageSize, "")
		if err != nil {
			return nil, err
		}
		out = append(out, idents...)
		if int64(len(out)) >= total || len(idents) == 0 {
			return out, nil
		}
	}
}

func (e *Exporter) allReports(ctx context.Context) ([]models.Report, error) {
	var out []models.Report
	for page := 1; ; page++ {
		reps, total, err := e.ledger.ListAllReports(ctx, page, pageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, reps...)
		if int64(len(out)) >= total || len(reps) == 0 {
			return out, nil
		}
	}
}

// WriteJSON streams the full snapshot as one JSON document.
func (e *Exporter) WriteJSON(ctx context.Context, w io.Writer) error {
	snap, err := e.BuildSnapshot(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// WriteXLSX writes the snapshot as a spreadsheet with one sheet per record
// family.
func (e *Exporter) WriteXLSX(ctx context.Context, w io.Writer) error {
	snap, err := e.BuildSnapshot(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheet(f, "Publications",
		[]string{"UUID", "Content", "Status", "Author", "Author UUID", "Reports", "Likes", "Comments", "Created", "Updated"},
		len(snap.Publications),
		func(i int) []any {
			p := snap.Publications[i]
			var authorName, authorUuid string
			if p.Author != nil {
				authorName, authorUuid = p.Author.Name, p.Author.Uuid
			}
			return []any{
				p.Uuid, p.Content, p.Status, authorName, authorUuid,
				p.Reports, p.Likes, p.Comments,
				p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
			}
		}); err != nil {
		return err
	}

	if err := writeSheet(f, "Identities",
		[]string{"UUID", "Name", "Status", "Created", "Updated"},
		len(snap.Identities),
		func(i int) []any {
			id := snap.Identities[i]
			return []any{
				id.Uuid, id.Name, id.Status,
				id.CreatedAt.Format(time.RFC3339), id.UpdatedAt.Format(time.RFC3339),
			}
		}); err != nil {
		return err
	}

	if err := writeSheet(f, "Reports",
		[]string{"UUID", "Publication", "Reporter", "Created"},
		len(snap.Reports),
		func(i int) []any {
			r := snap.Reports[i]
			return []any{r.Uuid, r.Publication, r.Reporter, r.CreatedAt.Format(time.RFC3339)}
		}); err != nil {
		return err
	}

	// excelize starts every workbook with a default sheet
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, header []string, rows int, row func(int) []any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("creating sheet %s: %w", name, err)
	}

	if err := setRow(f, name, 1, toAny(header)); err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		if err := setRow(f, name, i+2, row(i)); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, n int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, n, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
