package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// executionLister is the slice of the execution store the archiver needs.
type executionLister interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.HedgeExecution, error)
}

// objectPutter is the slice of Writer the archiver needs.
type objectPutter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports hedge execution history to object storage as JSONL,
// one file per calendar month.
type Archiver struct {
	writer objectPutter
	store  executionLister
	log    *slog.Logger
}

// NewArchiver creates an Archiver that reads from store and writes through
// writer.
func NewArchiver(writer objectPutter, store executionLister, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		store:  store,
		log:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveExecutions exports all executions completed before the cutoff and
// uploads them under archive/executions/. Returns the number of records
// archived.
func (a *Archiver) ArchiveExecutions(ctx context.Context, before time.Time) (int, error) {
	execs, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("archiver: list executions: %w", err)
	}
	if len(execs) == 0 {
		a.log.Info("no executions to archive", slog.Time("before", before))
		return 0, nil
	}

	records := make([]executionRecord, len(execs))
	for i, exec := range execs {
		records[i] = newExecutionRecord(exec)
	}
	data, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("archiver: encode executions: %w", err)
	}

	path := archivePath("executions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/x-ndjson"); err != nil {
		return 0, err
	}

	a.log.Info("archived executions",
		slog.Int("count", len(execs)),
		slog.String("path", path))
	return len(execs), nil
}

// executionRecord is the flattened JSONL shape of a hedge execution.
type executionRecord struct {
	ID                 string    `json:"id"`
	Symbol             string    `json:"symbol"`
	Outcome            string    `json:"outcome"`
	Leg1               legRecord `json:"leg1"`
	Leg2               legRecord `json:"leg2"`
	ExpectedProfitRate float64   `json:"expected_profit_rate"`
	RealizedProfitRate float64   `json:"realized_profit_rate"`
	FundingDiffAPY     float64   `json:"funding_diff_apy"`
	ProfitUSD          float64   `json:"profit_usd"`
	NotionalUSD        float64   `json:"notional_usd"`
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at"`
}

type legRecord struct {
	Exchange      string  `json:"exchange"`
	Side          string  `json:"side"`
	OrderID       string  `json:"order_id,omitempty"`
	ExpectedPrice float64 `json:"expected_price"`
	FilledPrice   float64 `json:"filled_price"`
	Quantity      float64 `json:"quantity"`
	Status        string  `json:"status"`
	Unwound       bool    `json:"unwound,omitempty"`
}

func newExecutionRecord(exec domain.HedgeExecution) executionRecord {
	return executionRecord{
		ID:                 exec.ID,
		Symbol:             exec.Symbol,
		Outcome:            string(exec.Outcome),
		Leg1:               newLegRecord(exec.Leg1),
		Leg2:               newLegRecord(exec.Leg2),
		ExpectedProfitRate: exec.ExpectedProfitRate,
		RealizedProfitRate: exec.RealizedProfitRate,
		FundingDiffAPY:     exec.FundingDiffAPY,
		ProfitUSD:          exec.ProfitUSD,
		NotionalUSD:        exec.NotionalUSD,
		StartedAt:          exec.StartedAt,
		CompletedAt:        exec.CompletedAt,
	}
}

func newLegRecord(leg domain.HedgeLeg) legRecord {
	return legRecord{
		Exchange:      leg.Exchange,
		Side:          string(leg.Side),
		OrderID:       leg.OrderID,
		ExpectedPrice: leg.ExpectedPrice,
		FilledPrice:   leg.FilledPrice,
		Quantity:      leg.Quantity,
		Status:        string(leg.Status),
		Unwound:       leg.Unwound,
	}
}

// marshalJSONL encodes each record as a single JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// archivePath builds the object key for a monthly archive file, e.g.
// archive/executions/2026-08.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
}
