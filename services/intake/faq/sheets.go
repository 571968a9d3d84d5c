// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package faq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/AleutianAI/AleutianIntake/services/intake/clinic"
)

const (
	// DefaultSheetsTTL is how long a fetched worksheet is served from cache.
	DefaultSheetsTTL = 10 * time.Minute

	// sheetsErrorTTL is how long a failed fetch is remembered before retrying.
	sheetsErrorTTL = 30 * time.Second

	worksheetSuffix = "_faq"
	columnKeywords  = "question_keywords"
	columnAnswer    = "answer"
)

// ErrMissingColumns is returned when a worksheet header lacks the
// question_keywords or answer column.
var ErrMissingColumns = errors.New("faq: worksheet is missing required columns")

// SheetsConfig selects the spreadsheet backing the FAQ.
type SheetsConfig struct {
	SpreadsheetID   string        `yaml:"spreadsheet_id" validate:"required"`
	CredentialsFile string        `yaml:"credentials_file"`
	TTL             time.Duration `yaml:"ttl"`
}

// rowFetcher returns the raw cell values of one worksheet.
type rowFetcher func(ctx context.Context, worksheet string) ([][]any, error)

type sheetEntry struct {
	entries   []Entry
	err       error
	fetchedAt time.Time
}

// Sheets answers from a Google spreadsheet with one worksheet per category,
// named "<category>_faq", whose header row holds question_keywords (a
// comma-separated list) and answer.
//
// # Description
//
// Each worksheet is fetched on first use and cached for the TTL.
// Concurrent misses for the same worksheet share one fetch. A failed fetch
// is logged, remembered briefly so a broken sheet does not cost a round
// trip per turn, and reported as "no answer".
//
// # Thread Safety
//
// Safe for concurrent use.
type Sheets struct {
	fetch  rowFetcher
	clinic clinic.Source
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu     sync.RWMutex
	cache  map[string]sheetEntry
	flight singleflight.Group
}

// SheetsOption configures Sheets.
type SheetsOption func(*Sheets)

// WithSheetsClock sets the cache clock.
func WithSheetsClock(now func() time.Time) SheetsOption {
	return func(s *Sheets) { s.now = now }
}

// WithSheetsLogger sets the logger.
func WithSheetsLogger(l *slog.Logger) SheetsOption {
	return func(s *Sheets) { s.logger = l }
}

// NewSheets connects to the Sheets API. clientOpts are passed to the API
// client after the credentials option.
func NewSheets(ctx context.Context, cfg SheetsConfig, src clinic.Source, clientOpts []option.ClientOption, opts ...SheetsOption) (*Sheets, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("faq: spreadsheet id is required")
	}
	all := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}
	if cfg.CredentialsFile != "" {
		all = append(all, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	all = append(all, clientOpts...)

	svc, err := sheets.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}

	fetch := func(ctx context.Context, worksheet string) ([][]any, error) {
		resp, err := svc.Spreadsheets.Values.Get(cfg.SpreadsheetID, worksheet).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return resp.Values, nil
	}
	return newSheets(fetch, cfg.TTL, src, opts...), nil
}

func newSheets(fetch rowFetcher, ttl time.Duration, src clinic.Source, opts ...SheetsOption) *Sheets {
	if ttl <= 0 {
		ttl = DefaultSheetsTTL
	}
	s := &Sheets{
		fetch:  fetch,
		clinic: src,
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
		cache:  make(map[string]sheetEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup implements Lookup.
func (s *Sheets) Lookup(ctx context.Context, text string, category Category) (string, bool) {
	entries, err := s.entries(ctx, string(category)+worksheetSuffix)
	if err != nil {
		return "", false
	}
	return Match(entries, text, phoneOf(s.clinic))
}

var _ Lookup = (*Sheets)(nil)

// entries returns the cached rows for worksheet, fetching when stale.
func (s *Sheets) entries(ctx context.Context, worksheet string) ([]Entry, error) {
	s.mu.RLock()
	cached, ok := s.cache[worksheet]
	s.mu.RUnlock()
	if ok && s.fresh(cached) {
		return cached.entries, cached.err
	}

	v, _, _ := s.flight.Do(worksheet, func() (any, error) {
		rows, err := s.fetch(ctx, worksheet)
		var entries []Entry
		if err == nil {
			entries, err = parseRows(rows)
		}
		if err != nil {
			s.logger.Warn("faq worksheet fetch failed", "worksheet", worksheet, "error", err)
		}
		e := sheetEntry{entries: entries, err: err, fetchedAt: s.now()}
		s.mu.Lock()
		s.cache[worksheet] = e
		s.mu.Unlock()
		return e, nil
	})
	e := v.(sheetEntry)
	return e.entries, e.err
}

func (s *Sheets) fresh(e sheetEntry) bool {
	ttl := s.ttl
	if e.err != nil {
		ttl = sheetsErrorTTL
	}
	return s.now().Sub(e.fetchedAt) < ttl
}

// parseRows converts a header row plus records into entries. Rows with no
// keywords or no answer are skipped.
func parseRows(rows [][]any) ([]Entry, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	kwCol, ansCol := -1, -1
	for i, cell := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(fmt.Sprint(cell))) {
		case columnKeywords:
			kwCol = i
		case columnAnswer:
			ansCol = i
		}
	}
	if kwCol < 0 || ansCol < 0 {
		return nil, ErrMissingColumns
	}

	cell := func(row []any, i int) string {
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(row[i]))
	}

	var out []Entry
	for _, row := range rows[1:] {
		answer := cell(row, ansCol)
		var keywords []string
		for _, k := range strings.Split(cell(row, kwCol), ",") {
			if k = strings.TrimSpace(k); k != "" {
				keywords = append(keywords, k)
			}
		}
		if answer == "" || len(keywords) == 0 {
			continue
		}
		out = append(out, Entry{Keywords: keywords, Answer: answer})
	}
	return out, nil
}
