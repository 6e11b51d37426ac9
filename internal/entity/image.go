package entity

import "time"

// ExtractedImage is one rasterized page of a ticket PDF.
type ExtractedImage struct {
	DocumentID string `json:"document_id"`
	PageIndex  int    `json:"page_index"`
	// DetectedNumber is the recognized ticket number, empty when none was found.
	DetectedNumber string  `json:"detected_number,omitempty"`
	Text           string  `json:"text,omitempty"`
	Confidence     float64 `json:"confidence"`
	ArtifactKey    string  `json:"artifact_key"`
}

// PageFailure records a page whose extraction failed or timed out.
type PageFailure struct {
	PageIndex int    `json:"page_index"`
	Reason    string `json:"reason"`
	TimedOut  bool   `json:"timed_out"`
}

// ExtractionResult is the outcome of extracting one PDF.
type ExtractionResult struct {
	DocumentID string           `json:"document_id"`
	Pages      int              `json:"pages"`
	Images     []ExtractedImage `json:"images"`
	Failures   []PageFailure    `json:"failures,omitempty"`
	Duration   time.Duration    `json:"duration"`
}
