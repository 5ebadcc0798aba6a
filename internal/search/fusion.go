package search

import (
	"sort"
	"strings"

	"github.com/zoonderkins/augment-lite-mcp/internal/store"
)

// fuse merges keyword and vector candidates into one ranked list.
//
// Keyword scores are normalized by the batch maximum so BM25's unbounded
// range lands in [0,1] alongside vector similarity. A chunk found by only
// one side scores zero on the other; appearing in both naturally ranks it
// higher. Ties order by chunk ID ascending.
func fuse(keyword []*store.KeywordResult, vector []*store.VectorResult, w Weights) []Hit {
	byID := make(map[string]*Hit, len(keyword)+len(vector))

	var maxKw float64
	for _, r := range keyword {
		if r.Score > maxKw {
			maxKw = r.Score
		}
	}
	for _, r := range keyword {
		norm := 0.0
		if maxKw > 0 {
			norm = r.Score / maxKw
		}
		byID[r.ChunkID] = &Hit{ChunkID: r.ChunkID, KeywordScore: norm}
	}

	for _, r := range vector {
		h, ok := byID[r.ChunkID]
		if !ok {
			h = &Hit{ChunkID: r.ChunkID}
			byID[r.ChunkID] = h
		}
		h.VectorScore = float64(r.Score)
	}

	hits := make([]Hit, 0, len(byID))
	for _, h := range byID {
		h.Score = w.Keyword*h.KeywordScore + w.Vector*h.VectorScore
		hits = append(hits, *h)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	return hits
}

// dedupByFile keeps at most maxPerFile hits per source file, preserving
// rank order. The file is recovered from the chunk ID's middle segment.
func dedupByFile(hits []Hit, maxPerFile int) []Hit {
	perFile := make(map[string]int)
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		path := fileOfChunkID(h.ChunkID)
		if perFile[path] >= maxPerFile {
			continue
		}
		perFile[path]++
		out = append(out, h)
	}
	return out
}

// fileOfChunkID extracts the path from "{projectID}:{path}:{ordinal}". Paths
// may contain colons; the first and last segments are fixed.
func fileOfChunkID(id string) string {
	first := strings.Index(id, ":")
	last := strings.LastIndex(id, ":")
	if first < 0 || last <= first {
		return id
	}
	return id[first+1 : last]
}
