package service

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/aakar745/stallpay-recon/internal/interfaces"
	"github.com/aakar745/stallpay-recon/internal/models"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

// GapScanner finds receipt numbers missing from otherwise contiguous
// sequences in the local ledger. Sequences are walked per exhibition-year
// group: a number is only a gap relative to the min/max of its own group,
// never across a boundary.
type GapScanner struct {
	ledger interfaces.LedgerRepository
}

func NewGapScanner(ledger interfaces.LedgerRepository) *GapScanner {
	return &GapScanner{ledger: ledger}
}

// groupKey is only computed for receipt numbers ParseReceiptNumber
// accepted, so the slice below is in bounds.
func groupKey(exhibitionID, receiptNumber string) string {
	return exhibitionID + "/" + receiptNumber[:len(models.ReceiptPrefix)+4]
}

type sequenceGroup struct {
	exhibitionID string
	year         int
	seqs         map[int]bool
	minSeq       int
	maxSeq       int
}

// MissingReceipts returns the ordered receipt numbers absent from the
// scope, truncated at maxGaps. The date window bounds which sequence
// ranges are walked; record existence is checked across the whole
// exhibition-year, so a record created outside the window still fills
// its slot. An empty scope yields an empty result.
func (s *GapScanner) MissingReceipts(ctx context.Context, scope models.ScanScope, maxGaps int) ([]string, error) {
	windowed, err := s.ledger.ReceiptNumbersInScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(windowed) == 0 {
		return nil, nil
	}

	groups := map[string]*sequenceGroup{}
	for _, sr := range windowed {
		year, seq, err := models.ParseReceiptNumber(sr.ReceiptNumber)
		if err != nil {
			telemetry.Logger.Warn("Skipping malformed receipt number",
				zap.String("receipt_number", sr.ReceiptNumber),
				zap.Error(err),
			)
			continue
		}
		key := groupKey(sr.ExhibitionID, sr.ReceiptNumber)
		g, ok := groups[key]
		if !ok {
			g = &sequenceGroup{
				exhibitionID: sr.ExhibitionID,
				year:         year,
				seqs:         map[int]bool{},
				minSeq:       seq,
				maxSeq:       seq,
			}
			groups[key] = g
		}
		g.seqs[seq] = true
		if seq < g.minSeq {
			g.minSeq = seq
		}
		if seq > g.maxSeq {
			g.maxSeq = seq
		}
	}

	// Records repaired later carry a fresh created_at, so a windowed scan
	// must still see them: fold the whole exhibition's sequences into the
	// existence sets before walking.
	if scope.StartDate != nil || scope.EndDate != nil {
		all, err := s.ledger.ReceiptNumbersInScope(ctx, models.ScanScope{ExhibitionID: scope.ExhibitionID})
		if err != nil {
			return nil, err
		}
		for _, sr := range all {
			_, seq, err := models.ParseReceiptNumber(sr.ReceiptNumber)
			if err != nil {
				continue
			}
			if g, ok := groups[groupKey(sr.ExhibitionID, sr.ReceiptNumber)]; ok {
				g.seqs[seq] = true
			}
		}
	}

	ordered := make([]*sequenceGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].year != ordered[j].year {
			return ordered[i].year < ordered[j].year
		}
		return ordered[i].exhibitionID < ordered[j].exhibitionID
	})

	var missing []string
	for _, g := range ordered {
		for seq := g.minSeq; seq <= g.maxSeq; seq++ {
			if g.seqs[seq] {
				continue
			}
			missing = append(missing, models.FormatReceiptNumber(g.year, seq))
			if len(missing) >= maxGaps {
				return missing, nil
			}
		}
	}
	return missing, nil
}

// OrphanScanner generates candidate merchant references beyond the
// current local maximum, covering gateway callbacks that referenced a
// not-yet-issued receipt number. It reads nothing but that maximum.
type OrphanScanner struct {
	ledger interfaces.LedgerRepository
}

func NewOrphanScanner(ledger interfaces.LedgerRepository) *OrphanScanner {
	return &OrphanScanner{ledger: ledger}
}

func (s *OrphanScanner) Candidates(ctx context.Context, maxReceipts int) ([]string, error) {
	latest, err := s.ledger.LatestReceiptNumber(ctx)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	year, seq, err := models.ParseReceiptNumber(latest)
	if err != nil {
		return nil, err
	}

	candidates := make([]string, 0, maxReceipts)
	for i := 1; i <= maxReceipts; i++ {
		next := seq + i
		if next > models.MaxReceiptSeq {
			break
		}
		candidates = append(candidates, models.FormatReceiptNumber(year, next))
	}
	return candidates, nil
}
