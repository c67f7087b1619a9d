package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scroll-rag/internal/app"
	"scroll-rag/internal/cache"
	"scroll-rag/internal/config"
	"scroll-rag/internal/document"
	"scroll-rag/internal/extract"
	"scroll-rag/internal/llm"
	"scroll-rag/internal/logger"
)

var fakePDF = []byte("%PDF-1.4\n%test document\n")

func newTestDeps(ex *extract.MockExtractor, client *llm.MockClient) app.Deps {
	cfg := config.Config{
		MaxUploadSize: 1024 * 1024, // 1MB for tests
		ChunkSize:     1000,
		ChunkOverlap:  200,
		ContextChunks: 5,
		CacheTTL:      60,
	}
	return app.Assemble(cfg, logger.Discard(), ex, client, cache.NewNoOpCache())
}

func TestUploadHandler(t *testing.T) {
	longText := strings.Repeat("Gallia est omnis divisa in partes tres. ", 100)

	tests := []struct {
		name          string
		filename      string
		contentType   string
		content       []byte
		setup         func(*extract.MockExtractor)
		wantStatus    int
		wantDocument  bool
		checkResponse func(*testing.T, *http.Response)
	}{
		{
			name:        "successful upload",
			filename:    "commentarii.pdf",
			contentType: "application/pdf",
			content:     fakePDF,
			setup: func(e *extract.MockExtractor) {
				e.On("Extract", mock.Anything, fakePDF).
					Return(extract.Result{Text: strings.TrimSpace(longText), PageStarts: []int{0}}, nil).Once()
			},
			wantStatus:   http.StatusCreated,
			wantDocument: true,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var result map[string]any
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
				assert.NotEmpty(t, result["id"])
				assert.Equal(t, "commentarii.pdf", result["name"])
				assert.Equal(t, string(document.StatusReady), result["status"])
				stats, ok := result["stats"].(map[string]any)
				require.True(t, ok, "expected stats object")
				assert.Greater(t, stats["chunkCount"], float64(1))
				assert.NotContains(t, result, "rawText")
			},
		},
		{
			name:        "missing Content-Type sniffs pdf",
			filename:    "scroll.pdf",
			contentType: "",
			content:     fakePDF,
			setup: func(e *extract.MockExtractor) {
				e.On("Extract", mock.Anything, fakePDF).
					Return(extract.Result{Text: "short text"}, nil).Once()
			},
			wantStatus:   http.StatusCreated,
			wantDocument: true,
		},
		{
			name:        "file too large",
			filename:    "large.pdf",
			contentType: "application/pdf",
			content:     make([]byte, 2*1024*1024), // 2MB
			wantStatus:  http.StatusRequestEntityTooLarge,
		},
		{
			name:        "unsupported Content-Type",
			filename:    "notes.txt",
			contentType: "text/plain",
			content:     []byte("content"),
			wantStatus:  http.StatusUnsupportedMediaType,
		},
		{
			name:        "extraction failure",
			filename:    "scan.pdf",
			contentType: "application/pdf",
			content:     fakePDF,
			setup: func(e *extract.MockExtractor) {
				e.On("Extract", mock.Anything, fakePDF).
					Return(extract.Result{}, fmt.Errorf("%w: no text found", extract.ErrExtraction)).Once()
			},
			wantStatus: http.StatusUnprocessableEntity,
			checkResponse: func(t *testing.T, resp *http.Response) {
				body, _ := io.ReadAll(resp.Body)
				assert.Contains(t, string(body), msgExtraction)
			},
		},
		{
			name:        "unexpected processing error",
			filename:    "odd.pdf",
			contentType: "application/pdf",
			content:     fakePDF,
			setup: func(e *extract.MockExtractor) {
				e.On("Extract", mock.Anything, fakePDF).
					Return(extract.Result{}, errors.New("context canceled")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := new(extract.MockExtractor)
			if tt.setup != nil {
				tt.setup(ex)
			}
			deps := newTestDeps(ex, new(llm.MockClient))

			req, err := createMultipartRequest(tt.filename, tt.contentType, tt.content)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			uploadHandler(deps)(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("Expected status %d, got %d. Body: %s", tt.wantStatus, resp.StatusCode, string(body))
			}
			if tt.checkResponse != nil {
				resp.Body = io.NopCloser(bytes.NewReader(w.Body.Bytes()))
				tt.checkResponse(t, resp)
			}

			_, err = deps.Session.Current()
			if tt.wantDocument {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, document.ErrNoDocument)
			}
			ex.AssertExpectations(t)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		deps := newTestDeps(new(extract.MockExtractor), new(llm.MockClient))
		req := httptest.NewRequest(http.MethodPost, "/api/documents", nil)
		req.Header.Set("Content-Type", "multipart/form-data")
		w := httptest.NewRecorder()

		uploadHandler(deps)(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestInvalidUploadKeepsPreviousDocument(t *testing.T) {
	deps := newTestDeps(new(extract.MockExtractor), new(llm.MockClient))
	setCurrent(deps, document.Document{Name: "kept.pdf", Status: document.StatusReady})

	req, err := createMultipartRequest("notes.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	w := httptest.NewRecorder()
	uploadHandler(deps)(w, req)
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	doc, err := deps.Session.Current()
	require.NoError(t, err)
	assert.Equal(t, "kept.pdf", doc.Name)
}

func TestOverlappingUploadsKeepNewestDocument(t *testing.T) {
	slowPDF := []byte("%PDF-1.4\n%slow document\n")

	tests := []struct {
		name       string
		slowResult extract.Result
		slowErr    error
		wantStatus int
	}{
		{
			name:       "older upload fails late",
			slowErr:    fmt.Errorf("%w: no text found", extract.ErrExtraction),
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "older upload succeeds late",
			slowResult: extract.Result{Text: "older text"},
			wantStatus: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			started := make(chan struct{})
			release := make(chan struct{})
			ex := new(extract.MockExtractor)
			ex.On("Extract", mock.Anything, slowPDF).
				Run(func(mock.Arguments) {
					close(started)
					<-release
				}).
				Return(tt.slowResult, tt.slowErr).Once()
			ex.On("Extract", mock.Anything, fakePDF).
				Return(extract.Result{Text: "newer text"}, nil).Once()
			deps := newTestDeps(ex, new(llm.MockClient))

			slowReq, err := createMultipartRequest("older.pdf", "application/pdf", slowPDF)
			require.NoError(t, err)
			slowCode := make(chan int, 1)
			go func() {
				w := httptest.NewRecorder()
				uploadHandler(deps)(w, slowReq)
				slowCode <- w.Code
			}()
			<-started

			fastReq, err := createMultipartRequest("newer.pdf", "application/pdf", fakePDF)
			require.NoError(t, err)
			w := httptest.NewRecorder()
			uploadHandler(deps)(w, fastReq)
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

			close(release)
			assert.Equal(t, tt.wantStatus, <-slowCode)

			doc, err := deps.Session.Current()
			require.NoError(t, err)
			assert.Equal(t, "newer.pdf", doc.Name)
			assert.Equal(t, "newer text", doc.RawText)
			assert.Equal(t, document.StatusReady, deps.Session.Status())
			ex.AssertExpectations(t)
		})
	}
}

func TestCurrentHandlerReportsUploadStatus(t *testing.T) {
	tests := []struct {
		name       string
		prepare    func(*document.Session)
		wantStatus string
	}{
		{
			name:    "nothing uploaded",
			prepare: func(*document.Session) {},
		},
		{
			name:       "upload in progress",
			prepare:    func(s *document.Session) { s.Begin() },
			wantStatus: string(document.StatusProcessing),
		},
		{
			name:       "latest upload failed",
			prepare:    func(s *document.Session) { s.Fail(s.Begin()) },
			wantStatus: string(document.StatusError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps(new(extract.MockExtractor), new(llm.MockClient))
			tt.prepare(deps.Session)

			w := httptest.NewRecorder()
			currentHandler(deps)(w, httptest.NewRequest(http.MethodGet, "/api/documents/current", nil))
			require.Equal(t, http.StatusNotFound, w.Code)

			var result map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
			assert.Equal(t, "no document uploaded", result["error"])
			if tt.wantStatus == "" {
				assert.NotContains(t, result, "status")
			} else {
				assert.Equal(t, tt.wantStatus, result["status"])
			}
		})
	}
}

func TestCurrentHandler(t *testing.T) {
	deps := newTestDeps(new(extract.MockExtractor), new(llm.MockClient))

	w := httptest.NewRecorder()
	currentHandler(deps)(w, httptest.NewRequest(http.MethodGet, "/api/documents/current", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	setCurrent(deps, document.Document{Name: "paper.pdf", RawText: "text", Status: document.StatusReady})
	w = httptest.NewRecorder()
	currentHandler(deps)(w, httptest.NewRequest(http.MethodGet, "/api/documents/current", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, "paper.pdf", result["name"])
	assert.Equal(t, "text", result["rawText"])
}

func TestChatHandler(t *testing.T) {
	readyDoc := func() document.Document {
		return document.Document{Name: "paper.pdf", Status: document.StatusReady}
	}

	tests := []struct {
		name       string
		body       string
		doc        *document.Document
		setup      func(*llm.MockClient)
		wantStatus int
		wantBody   string
	}{
		{
			name: "answers from document",
			body: `{"question":"What is the thesis?"}`,
			doc:  ptr(readyDoc()),
			setup: func(c *llm.MockClient) {
				c.On("Answer", mock.Anything, "What is the thesis?", "").Return("It is unknown.", nil).Once()
			},
			wantStatus: http.StatusOK,
			wantBody:   "It is unknown.",
		},
		{
			name:       "invalid json",
			body:       `{"question":`,
			doc:        ptr(readyDoc()),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing question",
			body:       `{}`,
			doc:        ptr(readyDoc()),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "blank question",
			body:       `{"question":"   "}`,
			doc:        ptr(readyDoc()),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no document",
			body:       `{"question":"Anyone there?"}`,
			wantStatus: http.StatusConflict,
		},
		{
			name: "upstream failure",
			body: `{"question":"Why?"}`,
			doc:  ptr(readyDoc()),
			setup: func(c *llm.MockClient) {
				c.On("Answer", mock.Anything, "Why?", "").
					Return("", fmt.Errorf("%w: gemini: 403", llm.ErrUpstream)).Once()
			},
			wantStatus: http.StatusBadGateway,
			wantBody:   msgChatUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(llm.MockClient)
			if tt.setup != nil {
				tt.setup(client)
			}
			deps := newTestDeps(new(extract.MockExtractor), client)
			if tt.doc != nil {
				setCurrent(deps, *tt.doc)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			chatHandler(deps)(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
			client.AssertExpectations(t)
		})
	}
}

func TestRouterEndToEnd(t *testing.T) {
	text := strings.Repeat("Alea iacta est. ", 400)
	ex := new(extract.MockExtractor)
	ex.On("Extract", mock.Anything, fakePDF).Return(extract.Result{Text: strings.TrimSpace(text)}, nil).Once()
	client := new(llm.MockClient)
	client.On("Answer", mock.Anything, "Who crossed the Rubicon?", mock.MatchedBy(func(ctx string) bool {
		return strings.Count(ctx, "\n---\n") == 4
	})).Return("Caesar.", nil).Once()

	srv := httptest.NewServer(newRouter(newTestDeps(ex, client)))
	defer srv.Close()

	req, err := createMultipartRequest("rubicon.pdf", "application/pdf", fakePDF)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/documents", req.Header.Get("Content-Type"), req.Body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"question":"Who crossed the Rubicon?"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var answer struct {
		Answer        string `json:"answer"`
		ContextChunks []any  `json:"context_chunks"`
		Cached        bool   `json:"cached"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&answer))
	assert.Equal(t, "Caesar.", answer.Answer)
	assert.Len(t, answer.ContextChunks, 5)
	assert.False(t, answer.Cached)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func setCurrent(deps app.Deps, doc document.Document) {
	deps.Session.Set(deps.Session.Begin(), doc)
}

func ptr[T any](v T) *T {
	return &v
}

func createMultipartRequest(filename, contentType string, content []byte) (*http.Request, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)}
	if contentType != "" {
		h["Content-Type"] = []string{contentType}
	}

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}
