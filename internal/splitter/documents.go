// File path: internal/splitter/documents.go
package splitter

import (
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/nicodishanthj/knowbase/internal/common"
)

// SplitDocuments applies a text splitter to each document, carrying the source
// metadata onto every produced chunk along with its ordinal position. A
// splitter failure on one document is recoverable: the document is passed
// through as a single unsplit chunk and the failure logged as a warning, so
// one malformed input never aborts a batch.
func SplitDocuments(s textsplitter.TextSplitter, docs []schema.Document) []schema.Document {
	logger := common.Logger()
	result := make([]schema.Document, 0, len(docs))
	for _, doc := range docs {
		chunks, err := s.SplitText(doc.PageContent)
		if err != nil {
			logger.Warn("splitter: document split failed, keeping unsplit",
				"filename", metadataString(doc.Metadata, "filename"), "error", err)
			result = append(result, doc)
			continue
		}
		for i, chunk := range chunks {
			metadata := make(map[string]any, len(doc.Metadata)+3)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			metadata["chunk_index"] = i
			metadata["total_chunks"] = len(chunks)
			metadata["chunk_size"] = len(chunk)
			result = append(result, schema.Document{PageContent: chunk, Metadata: metadata})
		}
	}
	return result
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if value, ok := metadata[key].(string); ok {
		return value
	}
	return ""
}
