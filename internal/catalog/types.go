// Package catalog defines core types shared across the enrichment pipeline.
package catalog

import "time"

// Status represents the monograph lookup state of a catalog row.
type Status string

// Status values persisted in the catalog store.
const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusNoPDF   Status = "no_pdf"
	StatusFailed  Status = "failed"
)

// NoPDFMessage is recorded when a product page carries no monograph link.
const NoPDFMessage = "No dpd_pm PDF link on product page"

// WorkItem is one catalog row eligible for enrichment.
type WorkItem struct {
	ID       string
	DrugCode string
}

// PageInfo is what the extractor pulls out of a single product page.
// Either field may be empty; an empty PDFURL is not an error.
type PageInfo struct {
	PDFURL        string
	MonographDate string
}

// FetchResult is the classified outcome of one enrichment attempt.
type FetchResult struct {
	ID            string
	DrugCode      string
	Status        Status
	PDFURL        string
	MonographDate string
	ErrorText     string
	CheckedAt     time.Time
}

// Product is one row of the Health Canada drug product extract, as loaded
// by the bulk importer. Raw keeps the full source record for audit.
type Product struct {
	ID             string
	StatusSet      string
	SourceFile     string
	DrugCode       string
	DIN            string
	BrandName      string
	PediatricFlag  string
	LastUpdateDate string
	UniqueKey      string
	Raw            map[string]string
}

// Counters tracks running pipeline totals by outcome.
type Counters struct {
	Checked     int
	Found       int
	NoPDF       int
	FailedFetch int
	FailedWrite int
}

// Add folds a single result into the totals. Write failures are counted
// separately by the orchestrator since they are not a fetch outcome.
func (c *Counters) Add(res FetchResult) {
	c.Checked++
	switch res.Status {
	case StatusReady:
		c.Found++
	case StatusNoPDF:
		c.NoPDF++
	default:
		c.FailedFetch++
	}
}
