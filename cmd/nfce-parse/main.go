package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/nfce-ingest/internal/nfce"
	"github.com/zombor/nfce-ingest/internal/scanning"
)

const stdinName = "-"

// result is one line of output
type result struct {
	File    string             `json:"file"`
	Outcome *nfce.ParseOutcome `json:"outcome,omitempty"`
	Error   string             `json:"error,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run parses every input named in args, or stdin when there are none, and
// returns the process exit code
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := ff.NewFlagSet("nfce-parse")
	var (
		workers       = fs.IntLong("workers", 0, "Parse workers (0 uses all CPUs)")
		maxInputChars = fs.IntLong("max-input-chars", nfce.DefaultMaxInputChars, "Largest receipt text accepted, in characters")
		validateKey   = fs.BoolLong("validate-check-digit", "Validate the access key check digit and lower confidence when it fails")
		sourceFlag    = fs.StringLong("source", string(nfce.SourceOCR), "Capture source: qr, barcode, manual or ocr")
		pretty        = fs.BoolLong("pretty", "Indent JSON output")
		debug         = fs.BoolLong("debug", "Enable debug logging")
	)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("NFCE_PARSE")); err != nil {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Flags(fs))
		if errors.Is(err, ff.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	logLevel := slog.LevelWarn
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel}))

	source := nfce.Source(*sourceFlag)
	if !source.Valid() {
		fmt.Fprintf(stderr, "error: invalid source %q\n", *sourceFlag)
		return 2
	}

	files := fs.GetArgs()
	if len(files) == 0 {
		files = []string{stdinName}
	}

	extractor := scanning.NewTextExtractor()
	now := time.Now()
	results := make([]result, len(files))
	subs := make([]nfce.RawSubmission, 0, len(files))
	batchIndex := make([]int, 0, len(files))
	for i, name := range files {
		results[i].File = name
		text, err := readInput(extractor, name, stdin)
		if err != nil {
			logger.Error("Failed to read input", "file", name, "error", err)
			results[i].Error = err.Error()
			continue
		}
		subs = append(subs, nfce.NewRawSubmission(source, text, now))
		batchIndex = append(batchIndex, i)
	}

	parser := nfce.NewParser(nfce.Config{
		MaxInputChars:      *maxInputChars,
		ValidateCheckDigit: *validateKey,
	})
	start := time.Now()
	for _, br := range parser.ParseBatch(ctx, subs, *workers) {
		r := &results[batchIndex[br.Index]]
		if br.Skipped {
			r.Error = "interrupted before parsing"
			continue
		}
		outcome := br.Outcome
		r.Outcome = &outcome
		if err := outcome.Err(); err != nil {
			r.Error = err.Error()
		}
	}
	logger.Debug("Batch parsed", "inputs", len(subs), "took", time.Since(start))

	enc := json.NewEncoder(stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	exitCode := 0
	for _, r := range results {
		if r.Error != "" {
			exitCode = 1
		}
		if err := enc.Encode(r); err != nil {
			fmt.Fprintf(stderr, "error: writing output: %v\n", err)
			return 1
		}
	}
	return exitCode
}

// readInput reads the text of one input; PDFs go through their text layer
func readInput(extractor scanning.Extractor, name string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == stdinName {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}

	contentType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		contentType = "application/pdf"
	case ".txt":
		contentType = "text/plain"
	}

	text, err := extractor.ExtractText(data, contentType)
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", name, err)
	}
	return text, nil
}
