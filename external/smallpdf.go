package external

import (
	"context"
)

// SmallPDF has no public compression API. It stays in the chain so a
// configured key shows up as an explicit unsupported failure.
type SmallPDF struct {
	cfg Config
}

var _ Backend = (*SmallPDF)(nil)

// NewSmallPDF creates a SmallPDF backend.
func NewSmallPDF(cfg Config) *SmallPDF {
	return &SmallPDF{cfg: cfg}
}

// Name returns the backend id.
func (b *SmallPDF) Name() string { return NameSmallPDF }

// DisplayName returns the human-readable label.
func (b *SmallPDF) DisplayName() string { return "SmallPDF" }

// Configured reports whether an API key is set.
func (b *SmallPDF) Configured() bool {
	return b.cfg.IsEnabled() && b.cfg.APIKey != ""
}

// Compress always fails.
func (b *SmallPDF) Compress(_ context.Context, req *CompressRequest) error {
	return newError(NameSmallPDF, ReasonUnsupported, "no public API available (requested level %s)", req.Params.SmallPDFLevel())
}
