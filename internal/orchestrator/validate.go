package orchestrator

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/compresr/pdf-gateway/internal/preset"
)

var pdfMagic = []byte("%PDF")

// resolveTarget turns the request's class and custom size into a KB budget.
func resolveTarget(req Request) (int, error) {
	class := req.Class
	if class == "" {
		if req.TargetKB == 0 {
			return preset.DefaultTargetKB, nil
		}
		class = preset.ClassCustom
	}
	kb, err := preset.ResolveTarget(class, req.TargetKB)
	if err != nil {
		return 0, invalid(ErrInvalidTarget, "%v", err)
	}
	return kb, nil
}

// validate checks everything that can be checked without a backend.
func (o *Orchestrator) validate(req Request) (int, error) {
	targetKB, err := resolveTarget(req)
	if err != nil {
		return 0, err
	}

	if len(req.Document) == 0 {
		return 0, invalid(ErrUnsupportedDocument, "empty document")
	}
	if int64(len(req.Document)) > o.cfg.MaxDocumentBytes {
		return 0, invalid(ErrDocumentTooLarge, "%d bytes exceeds limit of %d", len(req.Document), o.cfg.MaxDocumentBytes)
	}
	if !bytes.HasPrefix(req.Document, pdfMagic) {
		return 0, invalid(ErrUnsupportedDocument, "missing %%PDF header")
	}
	if req.Backend != "" {
		if _, ok := o.cfg.Backends.Get(req.Backend); !ok {
			return 0, invalid(ErrUnknownBackend, "%q", req.Backend)
		}
	}
	if req.Filename != "" && !strings.EqualFold(filepath.Ext(req.Filename), ".pdf") {
		return 0, invalid(ErrUnsupportedDocument, "filename %q does not end in .pdf", req.Filename)
	}
	return targetKB, nil
}
