// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// artifact_cache_dump inspects the persisted query embedding store.
//
// The ask service keeps the chunk embeddings of each question in BadgerDB
// when artifacts.store_path is set. This tool opens the store read-only and
// prints one block per entry: key hash, query, model, TTL remaining, chunk
// count, vector dimensions and a short sample of the query vector.
//
// Usage:
//
//	artifact_cache_dump [--path /path/to/store] [--chunks]
//
// If --path is not given, reads ASK_ARTIFACT_STORE from the environment,
// falling back to ~/.aleutian/cache/ask/.
//
// Exit codes:
//
//	0 on success, including an empty or missing store
//	1 on an error opening or reading the database
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
)

type entry struct {
	hash      string
	expiresAt time.Time
	hasExpiry bool
	rawSize   int
	rec       artifacts.StoredEmbedding
	decodeErr error
}

func main() {
	pathFlag := flag.String("path", "", "Path to the embedding store directory (overrides ASK_ARTIFACT_STORE)")
	showChunks := flag.Bool("chunks", false, "Print the text of every chunk")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("ASK_ARTIFACT_STORE")
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatalf("cannot resolve home directory: %v", err)
		}
		dbPath = filepath.Join(home, ".aleutian", "cache", "ask")
	}

	fmt.Printf("Embedding store path: %s\n", dbPath)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Store directory does not exist. Set artifacts.store_path and ask a question to populate it.")
		os.Exit(0)
	}

	opts := dgbadger.DefaultOptions(dbPath).
		WithLogger(nil).
		WithReadOnly(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	var entries []entry
	err = db.View(func(txn *dgbadger.Txn) error {
		iopts := dgbadger.DefaultIteratorOptions
		iopts.PrefetchValues = true
		it := txn.NewIterator(iopts)
		defer it.Close()

		prefix := []byte(artifacts.StoreKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			e := entry{hash: strings.TrimPrefix(string(item.Key()), artifacts.StoreKeyPrefix)}
			if exp := item.ExpiresAt(); exp > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(exp), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			e.rawSize = len(raw)
			e.rec, e.decodeErr = artifacts.DecodeStoredEmbedding(raw)
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	if len(entries) == 0 {
		fmt.Println("\nNo embedding entries found.")
		os.Exit(0)
	}

	fmt.Printf("\nFound %d embedding entr%s:\n", len(entries), plural(len(entries), "y", "ies"))
	fmt.Println(strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Printf("\n[%d] Hash:    %s\n", i+1, e.hash)
		fmt.Printf("    TTL:     %s\n", ttlString(e, time.Now()))
		fmt.Printf("    Size:    %s\n", formatBytes(e.rawSize))
		if e.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}
		rec := e.rec
		fmt.Printf("    Query:   %q\n", rec.Query)
		fmt.Printf("    Model:   %s\n", rec.Model)
		if !rec.CreatedAt.IsZero() {
			fmt.Printf("    Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		}
		fmt.Printf("    Vector:  %d dims, L2 %.4f %s\n", len(rec.Vector), l2Norm(rec.Vector), formatSample(rec.Vector, 4))
		fmt.Printf("    Chunks:  %d\n", len(rec.Chunks))
		if *showChunks {
			for j, c := range rec.Chunks {
				fmt.Printf("      (%d) %3d dims  %s\n", j+1, len(c.Embedding), preview(c.Text, 70))
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d entr%s, store path: %s\n", len(entries), plural(len(entries), "y", "ies"), dbPath)
}

func ttlString(e entry, now time.Time) string {
	if !e.hasExpiry {
		return "no expiry set"
	}
	remaining := e.expiresAt.Sub(now)
	if remaining < 0 {
		return fmt.Sprintf("EXPIRED (%s ago)", (-remaining).Round(time.Second))
	}
	return fmt.Sprintf("%s remaining (expires %s)", remaining.Round(time.Second), e.expiresAt.Format("2006-01-02 15:04:05 MST"))
}

// l2Norm is ≈1.0 for unit-normalized vectors.
func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func formatSample(v []float32, n int) string {
	if len(v) == 0 {
		return "[]"
	}
	if n > len(v) {
		n = len(v)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%+.4f", v[i])
	}
	suffix := ""
	if len(v) > n {
		suffix = " ..."
	}
	return "[" + strings.Join(parts, ", ") + suffix + "]"
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "artifact_cache_dump: "+format+"\n", args...)
	os.Exit(1)
}
