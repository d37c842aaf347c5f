package ai

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/greenthumb/sprout/internal/rag"
	"github.com/modfin/henry/slicez"
)

// Asker answers one question. *rag.Pipeline is the production Asker.
type Asker interface {
	Ask(ctx context.Context, question string) (rag.Answer, error)
}

type FillConf struct {
	In          string `cli:"in"`
	Out         string `cli:"out"`
	Delimiter   string `cli:"delimiter"`
	WithHeaders bool
}

// Fill reads questions from a delimited file and writes every row back with
// the answer, the final pipeline state and the cache similarity appended.
// Rows with several columns are sent as one question, each column wrapped in
// a tag named after its header.
func Fill(ctx context.Context, asker Asker, cfg FillConf, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	comma, err := delimiter(cfg.Delimiter)
	if err != nil {
		return err
	}

	in, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(cfg.Out)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	csvin := csv.NewReader(in)
	csvin.LazyQuotes = true
	csvin.FieldsPerRecord = -1
	csvin.Comma = comma

	csvout := csv.NewWriter(out)
	csvout.Comma = comma

	var headers []string
	getName := func(col int) string {
		if len(headers) > col {
			return headers[col]
		}
		return fmt.Sprintf("col_%d", col)
	}

	var hits, generated int
	var row int
	for {
		start := time.Now()

		row++
		record, err := csvin.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read row %d: %w", row, err)
		}
		if row == 1 && cfg.WithHeaders {
			headers = append([]string{}, record...)
			if err := csvout.Write(append(record, "answer", "state", "similarity")); err != nil {
				return fmt.Errorf("failed to write headers: %w", err)
			}
			continue
		}

		question := questionFromRow(record, getName)
		if question == "" {
			logger.Debug("Fill skipping empty row", "row", row)
			continue
		}

		answer, err := asker.Ask(ctx, question)
		if err != nil {
			return fmt.Errorf("failed to answer row %d: %w", row, err)
		}
		if answer.State == rag.StateCacheHit {
			hits++
		} else {
			generated++
		}

		err = csvout.Write(append(record, answer.Response, answer.State.String(), fmt.Sprintf("%.3f", answer.Similarity)))
		if err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		csvout.Flush()
		if err := csvout.Error(); err != nil {
			return fmt.Errorf("failed to flush row: %w", err)
		}

		logger.Debug("Fill",
			"row", row,
			"state", answer.State,
			"took", time.Since(start),
			"cache-hits-total", hits,
			"generated-total", generated,
		)
	}

	csvout.Flush()
	return csvout.Error()
}

func questionFromRow(record []string, name func(col int) string) string {
	if len(record) == 1 {
		return strings.TrimSpace(record[0])
	}
	var col int
	cols := slicez.Map(record, func(s string) string {
		n := name(col)
		col++
		return fmt.Sprintf("<%s>\n  %s\n</%s>", n, s, n)
	})
	return strings.Join(cols, "\n")
}

func delimiter(d string) (rune, error) {
	switch d {
	case "", "\\t", "\t":
		return '\t', nil
	}
	r := []rune(d)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", d)
	}
	return r[0], nil
}
