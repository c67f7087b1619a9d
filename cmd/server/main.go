package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"scroll-rag/internal/app"
	"scroll-rag/internal/chat"
	"scroll-rag/internal/chunker"
	"scroll-rag/internal/document"
	"scroll-rag/internal/extract"
	"scroll-rag/internal/httputil"
	"scroll-rag/internal/llm"
)

const (
	msgInvalidType     = "Please upload a valid PDF file."
	msgExtraction      = "Failed to extract text from PDF. Please ensure it is a valid text-based PDF."
	msgProcessing      = "An error occurred during processing."
	msgChatUnavailable = "Error connecting to Julius Brain."
)

type chatRequest struct {
	Question string `json:"question" validate:"required,max=2000"`
}

// documentSummary is the upload response: the document without its text.
type documentSummary struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Status     document.Status `json:"status"`
	UploadDate time.Time       `json:"uploadDate"`
	Stats      chunker.Stats   `json:"stats"`
}

// noDocumentResponse reports why there is no current document: none was
// uploaded yet, one is still processing, or the latest upload failed.
type noDocumentResponse struct {
	Error  string          `json:"error"`
	Status document.Status `json:"status,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx)
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Cache.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("server stopped", "err", err)
	}
}

func newRouter(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log, 60*time.Second)
	r.Post("/api/documents", uploadHandler(deps))
	r.Get("/api/documents/current", currentHandler(deps))
	r.Post("/api/chat", chatHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))
	return r
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		// Validate file size before parsing
		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxFileSize+1<<20)

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusRequestEntityTooLarge)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}

		// Checked here as well as in Process so a rejected file never clears
		// the current document.
		contentType := header.Header.Get("Content-Type")
		if err := extract.ValidateContentType(contentType, content); err != nil {
			httputil.Fail(deps.Log, w, msgInvalidType, err, http.StatusUnsupportedMediaType)
			return
		}

		gen := deps.Session.Begin()
		doc, err := deps.Processor.Process(r.Context(), document.Upload{
			Name:        header.Filename,
			ContentType: contentType,
			Data:        content,
		})
		log := deps.Log.With("filename", header.Filename)
		if err != nil {
			if !deps.Session.Fail(gen) {
				log.Info("failed upload superseded by a newer one")
			}
			if errors.Is(err, extract.ErrExtraction) {
				httputil.Fail(log, w, msgExtraction, err, http.StatusUnprocessableEntity)
				return
			}
			httputil.Fail(log, w, msgProcessing, err, http.StatusInternalServerError)
			return
		}
		if !deps.Session.Set(gen, doc) {
			log.Info("upload superseded by a newer one", "document_id", doc.ID)
		}

		httputil.WriteJSON(w, http.StatusCreated, documentSummary{
			ID:         doc.ID.String(),
			Name:       doc.Name,
			Status:     doc.Status,
			UploadDate: doc.UploadDate,
			Stats:      doc.Stats,
		})
	}
}

func currentHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Session.Current()
		if err != nil {
			httputil.WriteJSON(w, http.StatusNotFound, noDocumentResponse{
				Error:  "no document uploaded",
				Status: deps.Session.Status(),
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, doc)
	}
}

func chatHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		doc, err := deps.Session.Current()
		if err != nil {
			httputil.Fail(deps.Log, w, "upload a document before asking questions", err, http.StatusConflict)
			return
		}

		answer, err := deps.Chat.Ask(r.Context(), doc, req.Question)
		switch {
		case err == nil:
			httputil.WriteJSON(w, http.StatusOK, answer)
		case errors.Is(err, chat.ErrEmptyQuestion):
			httputil.Fail(deps.Log, w, "question is required", err, http.StatusBadRequest)
		case errors.Is(err, llm.ErrUpstream):
			httputil.Fail(deps.Log, w, msgChatUnavailable, err, http.StatusBadGateway)
		default:
			httputil.Fail(deps.Log, w, msgChatUnavailable, err, http.StatusInternalServerError)
		}
	}
}
