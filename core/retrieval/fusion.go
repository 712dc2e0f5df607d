package retrieval

import (
	"sort"

	"github.com/google/uuid"
	"github.com/siherrmann/fusionrag/model"
)

// graphNativeScore is the normalized score of a matched graph row. Graph
// matches are exact, so every row counts as a full match.
const graphNativeScore = 1.0

// Fuse merges graph rows and vector hits into one ranked evidence list.
// Items are deduplicated by source document, keeping the higher
// normalized score per source. An item present in both sources gets the
// blended score alpha*graph + (1-alpha)*vector; a missing source
// contributes zero. The output is deterministic: score descending, more
// recently ingested document first on ties, then lexical key order.
func Fuse(graph *model.GraphEvidence, vector []*model.VectorHit, topK int, alpha float64) []*model.Evidence {
	merged := make(map[string]*model.Evidence)

	if graph != nil {
		for _, triplet := range graph.Triplets {
			key := graphKey(triplet)
			item, ok := merged[key]
			if !ok {
				item = &model.Evidence{Key: key}
				merged[key] = item
			}
			item.GraphScore = graphNativeScore
			if item.Graph == nil {
				item.Graph = &model.GraphEvidence{Cypher: graph.Cypher}
			}
			item.Graph.Triplets = append(item.Graph.Triplets, triplet)
		}
	}

	for _, hit := range vector {
		key := hit.Chunk.DocumentRID.String()
		score := clamp01(hit.Chunk.Similarity)

		item, ok := merged[key]
		if !ok {
			item = &model.Evidence{Key: key}
			merged[key] = item
		}
		// Several chunks of one document collapse into one item, the
		// best scoring chunk represents the document.
		if item.Vector == nil || score > item.VectorScore {
			item.VectorScore = score
			item.Vector = &model.VectorEvidence{
				ChunkID:     hit.Chunk.ID,
				Content:     hit.Chunk.Content,
				Similarity:  hit.Chunk.Similarity,
				DocumentRID: hit.Chunk.DocumentRID,
				Source:      hit.DocumentSource,
			}
		}
		if hit.DocumentCreatedAt.After(item.IngestedAt) {
			item.IngestedAt = hit.DocumentCreatedAt
		}
	}

	items := make([]*model.Evidence, 0, len(merged))
	for _, item := range merged {
		item.Score = alpha*item.GraphScore + (1-alpha)*item.VectorScore
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if !items[i].IngestedAt.Equal(items[j].IngestedAt) {
			return items[i].IngestedAt.After(items[j].IngestedAt)
		}
		return items[i].Key < items[j].Key
	})

	if topK > 0 && len(items) > topK {
		items = items[:topK]
	}

	return items
}

// graphKey derives the dedupe identity of a graph row: the source
// document when provenance is known, the subject entity otherwise.
func graphKey(triplet model.Triplet) string {
	if triplet.DocumentRID != uuid.Nil {
		return triplet.DocumentRID.String()
	}
	return "entity:" + triplet.Subject
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
