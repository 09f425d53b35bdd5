package blueprintgen

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jward/blueprintgen/internal/extract"
	"github.com/jward/blueprintgen/internal/store"
)

// IndexFilesParallel indexes files using a three-phase parallel pipeline:
//
//	Phase A (serial):   Hash check, delete old data, prepare file records.
//	Phase B (parallel): Parse and extract into one BatchedStore per file.
//	Phase C (serial):   Commit batches to SQLite in input order.
func (e *Engine) IndexFilesParallel(ctx context.Context, paths []string) error {
	var errs []error

	// ---- Phase A: Serial file preparation ----
	var items []workItem
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, skip, err := e.prepareFile(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("prepare %s: %w", p, err))
			continue
		}
		if skip {
			continue
		}
		item.batch = store.NewBatchedStore(e.store)
		items = append(items, item)
	}

	// ---- Phase B: Parallel extraction ----
	// Workers never fail the group: a file that does not parse must not
	// stop the others, so each result is kept next to its item.
	results := make([]error, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(runtime.NumCPU(), 1))
	for i, item := range items {
		g.Go(func() error {
			results[i] = extract.ExtractFile(gctx, item.batch, item.fileID, item.pkgPath, item.src)
			return nil
		})
	}
	_ = g.Wait()

	// ---- Phase C: Serial commit ----
	committed := 0
	for i, item := range items {
		err := results[i]
		if err == nil {
			err = e.store.CommitBatch(item.batch)
		}
		if err != nil {
			// Drop the record so the next pass retries the file.
			_ = e.store.DeleteFile(item.fileID)
			errs = append(errs, fmt.Errorf("index %s: %w", item.path, err))
			continue
		}
		committed++
	}
	e.markChanged(committed)

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("parallel indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}
