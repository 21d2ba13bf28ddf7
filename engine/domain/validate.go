package domain

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

const maxTitleLength = 256

// ValidateCollection validates a Collection before insert.
func ValidateCollection(c Collection) error {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return NewValidationError("title", title, ErrTitleEmpty)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return NewValidationError("title", title, ErrTitleTooLong)
	}
	switch c.Visibility {
	case VisibilityPrivate, VisibilityPublic:
	default:
		return NewValidationError("visibility", string(c.Visibility), ErrBadVisibility)
	}
	return nil
}

// ValidateDataset validates a Dataset before insert.
func ValidateDataset(d Dataset) error {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return NewValidationError("title", title, ErrTitleEmpty)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return NewValidationError("title", title, ErrTitleTooLong)
	}
	return nil
}

// ValidateEmbedder validates an Embedder configuration before insert.
func ValidateEmbedder(e Embedder) error {
	switch e.Provider {
	case ProviderOpenAI, ProviderCohere, ProviderOllama:
	default:
		return NewValidationError("provider", string(e.Provider), ErrInvalidEmbedder)
	}
	u, err := url.Parse(e.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationError("base_url", e.BaseURL, ErrBadBaseURL)
	}
	if e.Dimensions <= 0 {
		return NewValidationError("dimensions", "", ErrBadDimensions)
	}
	return nil
}

// ValidateCollectionTransform checks a transform references a real
// collection/dataset pair before being enabled.
func ValidateCollectionTransform(t CollectionTransform) error {
	if t.CollectionID <= 0 || t.DatasetID <= 0 {
		return NewValidationError("collection_id/dataset_id", "", ErrInvalidTransform)
	}
	return nil
}

// ValidateDatasetTransform checks a dataset transform names at least one
// embedder (§3 invariant: a transform with zero embedders is meaningless).
func ValidateDatasetTransform(t DatasetTransform) error {
	if t.DatasetID <= 0 {
		return NewValidationError("dataset_id", "", ErrInvalidTransform)
	}
	if len(t.EmbedderIDs) == 0 {
		return NewValidationError("embedder_ids", "", ErrNoEmbedders)
	}
	return nil
}

// ValidateVisualizationTransform checks a visualization transform
// references a real embedded dataset.
func ValidateVisualizationTransform(t VisualizationTransform) error {
	if t.EmbeddedDatasetID <= 0 {
		return NewValidationError("embedded_dataset_id", "", ErrInvalidTransform)
	}
	return nil
}
