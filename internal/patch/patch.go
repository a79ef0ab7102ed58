// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package patch rewrites two function bodies in the text form of an
// emscripten module. A first pass (Scanner) finds the callback type id and the
// callback's table slot; a second pass (Rewriter) copies every line through
// except the target bodies, which are replaced by templates carrying those
// values. Output is only ever produced whole: it is written to a temporary
// file beside the destination and renamed into place on success.
package patch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dotandev/watpatch/internal/errors"
	"github.com/dotandev/watpatch/internal/logger"
	"github.com/dotandev/watpatch/internal/telemetry"
)

// Options controls a Patch run.
type Options struct {
	// Profile defaults to DefaultProfile when nil.
	Profile *Profile
	// DryRun runs both passes but discards the output.
	DryRun bool
}

// Report summarizes a run.
type Report struct {
	Input        string
	Output       string
	Profile      string
	Facts        Facts
	Stats        RewriteStats
	InputSHA256  string
	OutputSHA256 string
	DryRun       bool
	Duration     time.Duration
}

// ScanFile runs the first pass over path and validates the facts.
func ScanFile(ctx context.Context, path string, p *Profile) (Facts, error) {
	if p == nil {
		p = DefaultProfile()
	}
	ctx, span := telemetry.GetTracer().Start(ctx, "scan")
	defer span.End()

	f, err := os.Open(path)
	if err != nil {
		return Facts{TableIndex: -1}, errors.WrapIO("open", path, err)
	}
	defer f.Close()

	facts, err := NewScanner(p).Scan(ctx, f)
	if err != nil {
		span.RecordError(err)
		return facts, wrapPass("scan", path, err)
	}
	span.SetAttributes(
		attribute.String("watpatch.type_id", facts.TypeID),
		attribute.Int("watpatch.table_index", facts.TableIndex),
	)
	if err := facts.Validate(p); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return facts, err
	}
	return facts, nil
}

// Patch scans input, then rewrites it to output. When the scan fails nothing
// is written; when the rewrite fails the partial output is removed.
func Patch(ctx context.Context, input, output string, opts Options) (*Report, error) {
	start := time.Now()
	p := opts.Profile
	if p == nil {
		p = DefaultProfile()
	}

	ctx, span := telemetry.GetTracer().Start(ctx, "patch")
	defer span.End()
	span.SetAttributes(
		attribute.String("watpatch.input", input),
		attribute.String("watpatch.profile", p.Name),
		attribute.Bool("watpatch.dry_run", opts.DryRun),
	)

	report := &Report{Input: input, Profile: p.Name, DryRun: opts.DryRun}

	facts, err := ScanFile(ctx, input, p)
	report.Facts = facts
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	stats, inSum, outSum, err := rewriteFile(ctx, input, output, p, facts, opts.DryRun)
	report.Stats = stats
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	report.InputSHA256 = inSum
	report.OutputSHA256 = outSum
	if !opts.DryRun {
		report.Output = output
	}
	report.Duration = time.Since(start)

	for _, name := range stats.Missing(p) {
		logger.Logger.Warn("target header not found; passed through unchanged", "target", name)
	}
	span.SetAttributes(attribute.Int("watpatch.lines_discarded", stats.LinesDiscarded))
	return report, nil
}

func rewriteFile(ctx context.Context, input, output string, p *Profile, facts Facts, dryRun bool) (RewriteStats, string, string, error) {
	ctx, span := telemetry.GetTracer().Start(ctx, "rewrite")
	defer span.End()

	in, err := os.Open(input)
	if err != nil {
		return RewriteStats{}, "", "", errors.WrapIO("open", input, err)
	}
	defer in.Close()

	inHash := sha256.New()
	outHash := sha256.New()
	src := io.TeeReader(in, inHash)

	if dryRun {
		stats, err := NewRewriter(p, facts).Rewrite(ctx, src, outHash)
		if err != nil {
			return stats, "", "", wrapPass("rewrite", input, err)
		}
		return stats, sum(inHash), sum(outHash), nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(output), "."+filepath.Base(output)+".*.tmp")
	if err != nil {
		return RewriteStats{}, "", "", errors.WrapIO("create", output, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	stats, err := NewRewriter(p, facts).Rewrite(ctx, src, io.MultiWriter(tmp, outHash))
	if err != nil {
		return stats, "", "", wrapPass("rewrite", input, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return stats, "", "", errors.WrapIO("chmod", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return stats, "", "", errors.WrapIO("close", tmpPath, err)
	}
	if err := os.Rename(tmpPath, output); err != nil {
		return stats, "", "", errors.WrapIO("rename", output, err)
	}
	committed = true
	return stats, sum(inHash), sum(outHash), nil
}

// wrapPass tags read and write failures as I/O errors and leaves structural
// and cancellation errors as they are.
func wrapPass(op, path string, err error) error {
	if errors.Is(err, errors.ErrUnterminatedRegion) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
	return errors.WrapIO(op, path, err)
}

func sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
