package models

import "time"

// HistoryRecord pairs a stored source image with its search result.
// Records are immutable once created.
type HistoryRecord struct {
	ID          string
	CapturedAt  time.Time
	ArtifactKey string
	Result      *SearchResult
}
