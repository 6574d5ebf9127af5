package api

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/kalambet/staffdesk/internal/storage"
)

const maxDocumentSize = 10 << 20 // 10MB

// handleUploadDocument accepts a raw PDF body (for example a sick note),
// extracts its text and stores it against the vacation request.
func handleUploadDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Portal.VacationRequest(id); err != nil {
			storeError(w, err)
			return
		}

		if ct := r.Header.Get("Content-Type"); ct != "" {
			if mt, _, _ := mime.ParseMediaType(ct); mt != "application/pdf" && mt != "application/octet-stream" {
				httpError(w, http.StatusUnsupportedMediaType, "invalid_request_error", "expected application/pdf, got %s", mt)
				return
			}
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentSize)
		defer r.Body.Close()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}

		text, pages, err := extractPDFText(body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		doc := storage.Document{
			ID:        uuid.New().String(),
			RequestID: id,
			Filename:  documentName(r),
			Text:      text,
			Pages:     pages,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Documents.SaveDocument(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document: %v", err)
			return
		}
		deps.logger().Info("document attached", "request_id", id, "pages", pages, "chars", len(text))
		writeJSON(w, http.StatusCreated, doc)
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Portal.VacationRequest(id); err != nil {
			storeError(w, err)
			return
		}
		docs, err := deps.Documents.ListDocuments(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(docs))
	}
}

func documentName(r *http.Request) string {
	if name := r.URL.Query().Get("filename"); name != "" {
		return filepath.Base(name)
	}
	if _, params, err := mime.ParseMediaType(r.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		return filepath.Base(params["filename"])
	}
	return "document.pdf"
}

// extractPDFText returns the plain text and page count of a PDF. The
// parser panics on some malformed input, so panics become errors.
func extractPDFText(data []byte) (text string, pages int, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return "", 0, fmt.Errorf("body is not a PDF document")
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed PDF: %v", p)
		}
	}()

	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("malformed PDF: %w", err)
	}
	plain, err := rd.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("extracting text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", 0, fmt.Errorf("extracting text: %w", err)
	}
	return strings.TrimSpace(buf.String()), rd.NumPage(), nil
}
