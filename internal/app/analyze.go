package app

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/lore-harvester/internal/aggregate"
	"github.com/JakeFAU/lore-harvester/internal/config"
	"github.com/JakeFAU/lore-harvester/internal/identity"
	"github.com/JakeFAU/lore-harvester/internal/mbox"
	"github.com/JakeFAU/lore-harvester/internal/metrics"
	"github.com/JakeFAU/lore-harvester/internal/report"
	"github.com/JakeFAU/lore-harvester/internal/telemetry"
)

// AnalyzeResult is the outcome of one analyze walk.
type AnalyzeResult struct {
	RunID    string
	Files    []string
	State    *aggregate.State
	Summary  report.Summary
	Exported int64
}

// FindArchives returns the files under root with extension ext, sorted by
// path. limit > 0 keeps only the first limit files.
func FindArchives(root, ext string, limit int) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

// BuildState splits and aggregates every archive under the configured input
// directory. Files are split in parallel and folded into the state one at a
// time in path order, so the result does not depend on scheduling.
func (a *App) BuildState(ctx context.Context) (*aggregate.State, []string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "analyze.build_state")
	defer span.End()

	cfg := a.cfg.Analyze
	files, err := FindArchives(cfg.InputDir, cfg.ArchiveExt, cfg.FileLimit)
	if err != nil {
		return nil, nil, err
	}
	span.SetAttributes(attribute.Int("analyze.files", len(files)))
	a.logger.Info("archives found", zap.String("input_dir", cfg.InputDir), zap.Int("files", len(files)))

	splitter := mbox.NewSplitter(mbox.SplitterConfig{
		Boundary:        cfg.BoundaryMarker,
		FilteredSenders: cfg.FilteredSenders,
	})

	parsed := make([][]mbox.Message, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.ParseConcurrency))
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			msgs, err := splitter.SplitFile(path)
			if err != nil {
				a.logger.Warn("archive unreadable, skipping", zap.String("path", path), zap.Error(err))
				return nil
			}
			parsed[i] = msgs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("split archives: %w", err)
	}

	state := aggregate.NewState(identity.NewRegistry())
	agg := aggregate.NewAggregator(state,
		aggregate.WithKeyFunc(keyFunc(cfg.ThreadKey)),
		aggregate.WithLogger(a.logger),
	)
	for i, msgs := range parsed {
		agg.Add(files[i], msgs)
		metrics.AddMessagesParsed(len(msgs))
	}
	a.logger.Info("aggregation finished",
		zap.Int("threads", len(state.Threads)),
		zap.Int("authors", len(state.Authors)),
		zap.Int("rows", len(state.Rows())),
	)
	return state, files, nil
}

// Analyze builds the state, writes the report and flushes rows to the
// configured export.
func (a *App) Analyze(ctx context.Context) (*AnalyzeResult, error) {
	state, files, err := a.BuildState(ctx)
	if err != nil {
		return nil, err
	}
	runID, err := a.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	res := &AnalyzeResult{
		RunID:   runID,
		Files:   files,
		State:   state,
		Summary: report.Build(state, a.cfg.Analyze.TopCount),
	}

	w, closeReport, err := a.reportWriter()
	if err != nil {
		return nil, err
	}
	if err := report.WriteMarkdown(w, res.Summary); err != nil {
		_ = closeReport()
		return nil, err
	}
	if err := closeReport(); err != nil {
		return nil, fmt.Errorf("close report: %w", err)
	}

	if a.writer != nil {
		n, err := a.writer.WriteRows(ctx, runID, state.Rows())
		if err != nil {
			return nil, fmt.Errorf("export rows: %w", err)
		}
		res.Exported = n
		a.logger.Info("rows exported", zap.String("run_id", runID), zap.Int64("rows", n))
	}
	return res, nil
}

func keyFunc(strategy string) aggregate.KeyFunc {
	if strategy == config.ThreadKeyComposite {
		return aggregate.CompositeKey
	}
	return aggregate.SubjectKey
}
