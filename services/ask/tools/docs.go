// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/compose"
	"github.com/AleutianAI/AleutianAsk/services/llm"
)

// DefaultDocsBaseURL prefixes document paths when building links.
const DefaultDocsBaseURL = "https://docs.omni.co"

// IndexedChunk is one line of an embedded chunk index.
type IndexedChunk struct {
	Text      string         `json:"chunk_text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DocsIndex is an in-memory embedded chunk index loaded from JSONL or JSON
// files. It is read-only after loading.
type DocsIndex struct {
	chunks []IndexedChunk
}

// LoadDocsIndex loads path, which is a .jsonl or .json file or a directory of
// them. Lines or entries without an embedding are skipped.
func LoadDocsIndex(path string) (*DocsIndex, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("docs: stat index: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.json*"))
		if err != nil {
			return nil, fmt.Errorf("docs: listing index: %w", err)
		}
		sort.Strings(files)
	}

	idx := &DocsIndex{}
	for _, f := range files {
		switch filepath.Ext(f) {
		case ".jsonl":
			err = idx.loadJSONL(f)
		case ".json":
			err = idx.loadJSON(f)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (d *DocsIndex) loadJSONL(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("docs: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 16<<20)
	for sc.Scan() {
		var c IndexedChunk
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil || len(c.Embedding) == 0 {
			continue
		}
		d.chunks = append(d.chunks, c)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("docs: read %s: %w", path, err)
	}
	return nil
}

func (d *DocsIndex) loadJSON(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("docs: read %s: %w", path, err)
	}
	var list []IndexedChunk
	if err := json.Unmarshal(raw, &list); err != nil {
		// Malformed files are skipped like malformed lines.
		return nil
	}
	for _, c := range list {
		if len(c.Embedding) > 0 {
			d.chunks = append(d.chunks, c)
		}
	}
	return nil
}

// Len returns the number of indexed chunks.
func (d *DocsIndex) Len() int { return len(d.chunks) }

// Search returns the k chunks most similar to vec, best first.
func (d *DocsIndex) Search(vec []float32, k int) []IndexedChunk {
	if len(vec) == 0 || k <= 0 {
		return nil
	}
	type scored struct {
		i     int
		score float64
	}
	all := make([]scored, len(d.chunks))
	for i, c := range d.chunks {
		all[i] = scored{i: i, score: llm.Cosine(vec, c.Embedding)}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].score > all[b].score })
	if len(all) > k {
		all = all[:k]
	}
	out := make([]IndexedChunk, len(all))
	for i, s := range all {
		out[i] = d.chunks[s.i]
	}
	return out
}

// DocURL builds the public link of a chunk from its metadata path:
// "./docs/guide/reset.md" becomes "<base>/guide/reset".
func DocURL(base string, meta map[string]any) string {
	p, _ := meta["path"].(string)
	if p == "" {
		return ""
	}
	p = strings.TrimPrefix(p, "./docs/")
	p = strings.TrimSuffix(p, ".md")
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(p, "/")
}

// DocsEmbedSearch is semantic search over the embedded docs index.
type DocsEmbedSearch struct {
	index   *DocsIndex
	baseURL string
	topK    int
}

// NewDocsEmbedSearch creates the tool.
func NewDocsEmbedSearch(index *DocsIndex, baseURL string, topK int) *DocsEmbedSearch {
	if baseURL == "" {
		baseURL = DefaultDocsBaseURL
	}
	if topK <= 0 {
		topK = 5
	}
	return &DocsEmbedSearch{index: index, baseURL: baseURL, topK: topK}
}

// Spec implements catalog.Tool.
func (d *DocsEmbedSearch) Spec() catalog.Spec {
	return catalog.Spec{
		ID:          IDDocs,
		Name:        "Docs semantic search",
		Description: "Semantic search over the embedded product documentation. Args: query (string), top_k (int, optional).",
		Produces:    catalog.KindDocs,
		Needs:       []catalog.Need{catalog.NeedEmbedding},
	}
}

// Run implements catalog.Tool. A missing query embedding yields no documents.
func (d *DocsEmbedSearch) Run(ctx context.Context, args catalog.Args, qa *artifacts.QueryArtifacts) (catalog.Result, error) {
	vec := vectorArg(args, compose.ArgQueryEmbedding)
	if len(vec) == 0 {
		return catalog.Result{Kind: catalog.KindDocs, Value: []catalog.Doc{}, Preview: "docs_embed:no-embedding"}, nil
	}
	if err := ctx.Err(); err != nil {
		return catalog.Result{}, err
	}
	hits := d.index.Search(vec, intArg(args, "top_k", d.topK))
	docs := make([]catalog.Doc, 0, len(hits))
	for _, h := range hits {
		title, _ := h.Metadata["title"].(string)
		docs = append(docs, catalog.Doc{
			Text:   h.Text,
			Source: "docs",
			URL:    DocURL(d.baseURL, h.Metadata),
			Title:  title,
		})
	}
	return catalog.Result{Kind: catalog.KindDocs, Value: docs, Preview: "docs_embed:ok"}, nil
}
