// Package importer loads the Health Canada DPD drug product extracts into
// the catalog, seeding rows for the enrichment pipeline.
package importer

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dosevalidator/dpd-enricher/internal/catalog"
)

// Source names one government extract ZIP and the .txt member expected
// inside it.
type Source struct {
	StatusSet string
	File      string
	URL       string
}

// DefaultSources are the four Health Canada DPD drug product extracts.
var DefaultSources = []Source{
	{"MARKETED", "drug.txt", "https://www.canada.ca/content/dam/hc-sc/documents/services/drug-product-database/drug.zip"},
	{"APPROVED", "drug_ap.txt", "https://www.canada.ca/content/dam/hc-sc/documents/services/drug-product-database/drug_ap.zip"},
	{"CANCELLED", "drug_ia.txt", "https://www.canada.ca/content/dam/hc-sc/documents/services/drug-product-database/drug_ia.zip"},
	{"DORMANT", "drug_dr.txt", "https://www.canada.ca/content/dam/hc-sc/documents/services/drug-product-database/drug_dr.zip"},
}

// columns is the QRYM_DRUG_PRODUCT field order from the Health Canada ReadMe.
var columns = []string{
	"DRUG_CODE",
	"PRODUCT_CATEGORIZATION",
	"CLASS",
	"DRUG_IDENTIFICATION_NUMBER",
	"BRAND_NAME",
	"DESCRIPTOR",
	"PEDIATRIC_FLAG",
	"ACCESSION_NUMBER",
	"NUMBER_OF_AIS",
	"LAST_UPDATE_DATE",
	"AI_GROUP_NO",
	"CLASS_F",
	"BRAND_NAME_F",
	"DESCRIPTOR_F",
}

// IDGenerator produces row ids for imported products.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls Importer behavior.
type Config struct {
	WorkDir   string
	BatchSize int
	Pause     time.Duration
}

// Importer downloads, extracts and upserts the DPD drug product files.
type Importer struct {
	sink    catalog.ProductSink
	ids     IDGenerator
	client  *http.Client
	sleeper catalog.Sleeper
	sources []Source
	cfg     Config
	logger  *zap.Logger
}

// New constructs an Importer over the default sources.
func New(
	sink catalog.ProductSink,
	ids IDGenerator,
	client *http.Client,
	sleeper catalog.Sleeper,
	cfg Config,
	logger *zap.Logger,
) *Importer {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "dpd_extract"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		sink:    sink,
		ids:     ids,
		client:  client,
		sleeper: sleeper,
		sources: DefaultSources,
		cfg:     cfg,
		logger:  logger,
	}
}

// WithSources overrides the extract list (primarily for testing).
func (imp *Importer) WithSources(sources []Source) *Importer {
	imp.sources = sources
	return imp
}

// Run imports every source, returning the total row count upserted.
func (imp *Importer) Run(ctx context.Context) (int, error) {
	if err := os.MkdirAll(imp.cfg.WorkDir, 0o755); err != nil {
		return 0, fmt.Errorf("create work dir: %w", err)
	}

	total := 0
	for _, src := range imp.sources {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		zipPath := filepath.Join(imp.cfg.WorkDir, path.Base(src.URL))
		if err := imp.download(ctx, src.URL, zipPath); err != nil {
			return total, fmt.Errorf("download %s: %w", src.URL, err)
		}

		txtPath, err := imp.extractText(zipPath, src.File)
		if err != nil {
			return total, fmt.Errorf("extract %s: %w", zipPath, err)
		}

		n, err := imp.loadFile(ctx, src, txtPath)
		if err != nil {
			return total, fmt.Errorf("load %s: %w", txtPath, err)
		}
		total += n
		imp.logger.Info("source imported",
			zap.String("status_set", src.StatusSet),
			zap.Int("rows", n),
		)
	}
	return total, nil
}

// download fetches url into dest, skipping files already on disk.
func (imp *Importer) download(ctx context.Context, url, dest string) error {
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		imp.logger.Info("extract already downloaded", zap.String("path", dest))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := imp.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	imp.logger.Info("extract downloaded", zap.String("path", dest))
	return nil
}

// extractText pulls the expected .txt member out of the ZIP. Member names
// vary slightly between releases, so matching is by suffix with a
// drug*.txt fallback.
func (imp *Importer) extractText(zipPath, expected string) (string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	var member *zip.File
	for _, f := range reader.File {
		if strings.HasSuffix(strings.ToLower(f.Name), strings.ToLower(expected)) {
			member = f
			break
		}
	}
	if member == nil {
		for _, f := range reader.File {
			name := strings.ToLower(f.Name)
			if strings.HasPrefix(name, "drug") && strings.HasSuffix(name, ".txt") {
				member = f
				break
			}
		}
	}
	if member == nil {
		return "", fmt.Errorf("no %s member found", expected)
	}

	outPath := filepath.Join(filepath.Dir(zipPath), expected)
	if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
		return outPath, nil
	}

	src, err := member.Open()
	if err != nil {
		return "", fmt.Errorf("open member: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create member file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("write member file: %w", err)
	}
	return outPath, nil
}

// loadFile parses one extract and upserts it in batches with a polite pause.
func (imp *Importer) loadFile(ctx context.Context, src Source, txtPath string) (int, error) {
	f, err := os.Open(txtPath)
	if err != nil {
		return 0, fmt.Errorf("open extract: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	inserted := 0
	var batch []catalog.Product
	for {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return inserted, fmt.Errorf("read csv row: %w", err)
		}
		if len(row) == 0 {
			continue
		}

		product, err := imp.buildProduct(src, row)
		if err != nil {
			return inserted, err
		}
		batch = append(batch, product)

		if len(batch) >= imp.cfg.BatchSize {
			if err := imp.flush(ctx, batch, &inserted); err != nil {
				return inserted, err
			}
			batch = nil
		}
	}
	if len(batch) > 0 {
		if err := imp.flush(ctx, batch, &inserted); err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

func (imp *Importer) flush(ctx context.Context, batch []catalog.Product, inserted *int) error {
	if err := imp.sink.InsertProducts(ctx, batch); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	*inserted += len(batch)
	imp.logger.Debug("batch upserted", zap.Int("total", *inserted))
	if imp.sleeper != nil && imp.cfg.Pause > 0 {
		imp.sleeper.Sleep(ctx, imp.cfg.Pause)
	}
	return nil
}

// buildProduct maps a raw CSV row onto the fixed column order. Short rows
// are padded; extra trailing fields are kept only in the raw record.
func (imp *Importer) buildProduct(src Source, row []string) (catalog.Product, error) {
	raw := make(map[string]string, len(columns))
	for i, col := range columns {
		if i < len(row) {
			raw[col] = row[i]
		} else {
			raw[col] = ""
		}
	}

	id, err := imp.ids.NewID()
	if err != nil {
		return catalog.Product{}, fmt.Errorf("generate row id: %w", err)
	}

	drugCode := raw["DRUG_CODE"]
	din := raw["DRUG_IDENTIFICATION_NUMBER"]
	brand := raw["BRAND_NAME"]

	return catalog.Product{
		ID:             id,
		StatusSet:      src.StatusSet,
		SourceFile:     src.File,
		DrugCode:       drugCode,
		DIN:            din,
		BrandName:      brand,
		PediatricFlag:  raw["PEDIATRIC_FLAG"],
		LastUpdateDate: raw["LAST_UPDATE_DATE"],
		UniqueKey:      fmt.Sprintf("%s:%s:%s:%s", src.StatusSet, drugCode, din, brand),
		Raw:            raw,
	}, nil
}
