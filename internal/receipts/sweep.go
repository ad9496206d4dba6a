package receipts

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
)

// SweepResult summarizes a sweep run.
type SweepResult struct {
	Scanned int
	Removed int
	Bytes   int64
}

// Sweep deletes stored receipts that no record references and that are older
// than grace. Younger objects may belong to an upload still in progress.
func (g *Gateway) Sweep(ctx context.Context, grace time.Duration) (*SweepResult, error) {
	objects, err := g.store.List(ctx)
	if err != nil {
		return nil, err
	}
	referenced, err := g.db.ListReceiptFilenames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list referenced receipts: %w", err)
	}
	keep := lo.SliceToMap(referenced, func(name string) (string, struct{}) {
		return name, struct{}{}
	})

	cutoff := time.Now().Add(-grace)
	result := &SweepResult{Scanned: len(objects)}
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, ok := keep[obj.Name]; ok {
			continue
		}
		if obj.ModTime.After(cutoff) {
			continue
		}
		if err := g.store.Delete(ctx, obj.Name); err != nil {
			log.Error("failed to delete orphaned receipt", "filename", obj.Name, "error", err)
			continue
		}
		log.Debug("Deleted orphaned receipt", "filename", obj.Name, "size", obj.Size)
		result.Removed++
		result.Bytes += obj.Size
	}

	g.metrics.ObserveSweep(result.Removed, result.Bytes)
	log.Info("Receipt sweep finished", "scanned", result.Scanned, "removed", result.Removed, "bytes", result.Bytes)
	return result, nil
}
