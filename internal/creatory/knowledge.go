package creatory

import "time"

// SourceType is the media kind of a knowledge source.
type SourceType string

const (
	SourceTypeURL   SourceType = "url"
	SourceTypeFile  SourceType = "file"
	SourceTypeText  SourceType = "text"
	SourceTypeImage SourceType = "image"
	SourceTypeAudio SourceType = "audio"
	SourceTypeVideo SourceType = "video"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceTypeURL, SourceTypeFile, SourceTypeText, SourceTypeImage, SourceTypeAudio, SourceTypeVideo:
		return true
	}
	return false
}

// KnowledgeSource is an item a creator uploaded to a workspace.
type KnowledgeSource struct {
	ID           string         `json:"id"`
	WorkspaceID  string         `json:"workspace_id"`
	SourceType   SourceType     `json:"source_type"`
	Title        string         `json:"title,omitempty"`
	URI          string         `json:"uri,omitempty"`
	Metadata     map[string]any `json:"metadata_json"`
	IngestStatus string         `json:"ingest_status"`
	CreatedBy    string         `json:"created_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// KnowledgeChunk is an indexed fragment of a source's text.
type KnowledgeChunk struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id"`
	ChunkIndex int            `json:"chunk_index"`
	Content    string         `json:"content"`
	TokenCount *int           `json:"token_count,omitempty"`
	Metadata   map[string]any `json:"metadata_json"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ConceptNode is a named concept in a workspace's knowledge graph.
type ConceptNode struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	ConceptKey  string         `json:"concept_key"`
	Label       string         `json:"label"`
	NodeType    string         `json:"node_type"`
	Metadata    map[string]any `json:"metadata_json"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RetrievalChunk is a chunk joined with the fields of its source that
// retrieval needs.
type RetrievalChunk struct {
	ChunkID     string
	SourceID    string
	SourceTitle string
	Content     string
	ChunkIndex  int
}

// RetrievedContext is one ranked retrieval result.
type RetrievedContext struct {
	ChunkID     string  `json:"chunk_id"`
	SourceID    string  `json:"source_id"`
	SourceTitle string  `json:"source_title,omitempty"`
	Content     string  `json:"content"`
	Score       float64 `json:"score"`
	Citation    int     `json:"citation"`
}
