package domain

import (
	"context"
)

// ImageRequest identifies the watch an image is wanted for.
// ReferenceNumber is optional; an empty string means unknown.
type ImageRequest struct {
	Manufacturer    string
	Model           string
	ReferenceNumber string
}

// ImageResolver turns a watch description into a verified image URL
type ImageResolver interface {
	// Resolve returns the image URL and true, or "" and false when nothing verified.
	// Failures never surface as errors.
	Resolve(ctx context.Context, req ImageRequest) (string, bool)
}

// URLSuggester asks an external text-generation service for a best-guess image URL
type URLSuggester interface {
	SuggestImageURL(ctx context.Context, prompt string) (string, error)
}

// RecordKind tells which table a WatchRecord belongs to
type RecordKind string

const (
	RecordCriteria RecordKind = "criteria"
	RecordListing  RecordKind = "listing"
)

// WatchRecord is a search criteria or listing row that still lacks an image URL
type WatchRecord struct {
	ID              string
	Kind            RecordKind
	Manufacturer    string
	Model           string
	ReferenceNumber string
}

// ImageRequest builds the resolver input for the record
func (r WatchRecord) ImageRequest() ImageRequest {
	return ImageRequest{
		Manufacturer:    r.Manufacturer,
		Model:           r.Model,
		ReferenceNumber: r.ReferenceNumber,
	}
}
