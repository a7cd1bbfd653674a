package groundrag

import "errors"

// Kind classifies an error into the error taxonomy the orchestrator
// propagates without silently swallowing: BadInput and NotFound are
// caller mistakes (no retry), StorageError and ExternalUnavailable are
// operational failures surfaced distinctly, IngestionFailed marks a
// document FAILED with its error_message set. UngroundedAnswer is not
// a Go error at all — it is the NoAnswerResponse refusal type returned
// alongside a nil error.
type Kind string

const (
	KindBadInput            Kind = "bad_input"
	KindNotFound            Kind = "not_found"
	KindStorageError        Kind = "storage_error"
	KindExternalUnavailable Kind = "external_unavailable"
	KindIngestionFailed     Kind = "ingestion_failed"
)

var (
	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("groundrag: document not found")

	// ErrChunkNotFound is returned when a chunk ID does not exist.
	ErrChunkNotFound = errors.New("groundrag: chunk not found")

	// ErrDocumentExists is returned when trying to ingest a duplicate path.
	ErrDocumentExists = errors.New("groundrag: document already exists")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("groundrag: unsupported document format")

	// ErrEmptyQuestion is returned for a zero-length query.
	ErrEmptyQuestion = errors.New("groundrag: question must not be empty")

	// ErrInvalidFilter is returned for invalid query filter values.
	ErrInvalidFilter = errors.New("groundrag: invalid filter value")

	// ErrParsingFailed is returned when document parsing fails.
	ErrParsingFailed = errors.New("groundrag: parsing failed")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("groundrag: embedding generation failed")

	// ErrGeneratorUnavailable is returned when the generator provider is unreachable.
	ErrGeneratorUnavailable = errors.New("groundrag: generator provider unavailable")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("groundrag: store is closed")

	// ErrStorageError is returned when a storage-layer operation
	// (lexical or vector search, persistence) fails.
	ErrStorageError = errors.New("groundrag: storage error")

	// ErrInvalidConfig is returned for invalid configuration values,
	// e.g. fusion weights that do not sum to 1.0.
	ErrInvalidConfig = errors.New("groundrag: invalid configuration")

	// ErrVisionRequired is returned when a document requires vision
	// processing but no vision provider is configured.
	ErrVisionRequired = errors.New("groundrag: vision provider required for this document")
)

// ClassifyError maps a sentinel error to its Kind, for callers (the HTTP
// layer in particular) that need to pick a status code without a type
// switch over every sentinel.
func ClassifyError(err error) Kind {
	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrChunkNotFound):
		return KindNotFound
	case errors.Is(err, ErrEmptyQuestion), errors.Is(err, ErrInvalidFilter),
		errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrDocumentExists):
		return KindBadInput
	case errors.Is(err, ErrGeneratorUnavailable), errors.Is(err, ErrVisionRequired):
		return KindExternalUnavailable
	case errors.Is(err, ErrParsingFailed), errors.Is(err, ErrEmbeddingFailed):
		return KindIngestionFailed
	case errors.Is(err, ErrStoreClosed), errors.Is(err, ErrStorageError):
		return KindStorageError
	default:
		return KindStorageError
	}
}

// NoAnswerResponse is the tagged-variant "refusal" arm of Query: when
// the corpus has nothing relevant, or the generated answer fails
// grounding validation under require_grounding, the orchestrator
// returns this instead of an AnswerResponse.
type NoAnswerResponse struct {
	Reason         string   `json:"reason"`
	Suggestions    []string `json:"suggestions,omitempty"`
	PartialInfo    string   `json:"partial_info,omitempty"`
	SourcesChecked int      `json:"sources_checked"`
}
