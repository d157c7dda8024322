// Package api exposes the HTTP surface: project management, file uploads,
// processing triggers and the retrieval-augmented chat stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ttony15/cpmai/internal/chat"
	"github.com/ttony15/cpmai/internal/config"
	"github.com/ttony15/cpmai/internal/model"
	"github.com/ttony15/cpmai/internal/queue"
	"github.com/ttony15/cpmai/internal/repository"
	"github.com/ttony15/cpmai/internal/s3storage"
	"github.com/ttony15/cpmai/internal/signing"
)

// Server wires the HTTP handlers to their collaborators.
type Server struct {
	cfg      *config.Config
	projects *repository.ProjectRepository
	files    *repository.FileRepository
	store    *s3storage.Storage
	queue    *asynq.Client
	signer   *signing.Signer
	chat     *chat.Pipeline
	server   *http.Server
	once     sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, projects *repository.ProjectRepository, files *repository.FileRepository,
	store *s3storage.Storage, queueClient *asynq.Client, signer *signing.Signer, chatPipeline *chat.Pipeline) *Server {
	return &Server{
		cfg:      cfg,
		projects: projects,
		files:    files,
		store:    store,
		queue:    queueClient,
		signer:   signer,
		chat:     chatPipeline,
	}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /healthz", s.handleHealth)
		mux.HandleFunc("POST /projects", s.handleCreateProject)
		mux.HandleFunc("GET /projects", s.handleListProjects)
		mux.HandleFunc("GET /projects/{id}", s.handleGetProject)
		mux.HandleFunc("PATCH /projects/{id}", s.handleUpdateProject)
		mux.HandleFunc("POST /projects/{id}/files", s.handleUpload)
		mux.HandleFunc("GET /projects/{id}/files", s.handleListFiles)
		mux.HandleFunc("PATCH /projects/{id}/files", s.handleUpdateFile)
		mux.HandleFunc("GET /projects/{id}/files/{fileID}/url", s.handleFileURL)
		mux.HandleFunc("GET /download", s.handleDownload)
		mux.HandleFunc("POST /projects/{id}/process", s.handleProcess)
		mux.HandleFunc("POST /projects/{id}/chat", s.handleChat)
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: corsMiddleware(loggingMiddleware(mux)),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.Printf("api listening on %s", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ownerID pulls the authenticated caller identity. JWT verification happens
// upstream; by the time a request reaches this service the gateway has
// resolved the subject into this header.
func ownerID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "missing user identity", http.StatusBadRequest)
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "invalid project payload", http.StatusBadRequest)
		return
	}
	project := &model.Project{
		ProjectID:   uuid.NewString(),
		OwnerID:     owner,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.projects.Create(r.Context(), project); err != nil {
		log.Printf("create project: %v", err)
		http.Error(w, "failed to create project", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "missing user identity", http.StatusBadRequest)
		return
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 5)
	projects, total, err := s.projects.List(r.Context(), owner, page, pageSize)
	if err != nil {
		log.Printf("list projects: %v", err)
		http.Error(w, "failed to list projects", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"projects": projects,
		"total":    total,
		"page":     page,
	})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, project)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "missing user identity", http.StatusBadRequest)
		return
	}
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid project payload", http.StatusBadRequest)
		return
	}
	projectID := r.PathValue("id")
	err := s.projects.Update(r.Context(), owner, projectID, req.Name, req.Description)
	if err == nil && req.Status != nil {
		switch status := model.ProjectStatus(*req.Status); status {
		case model.ProjectCreated, model.ProjectInProgress, model.ProjectCompleted, model.ProjectFailed:
			err = s.projects.UpdateStatus(r.Context(), projectID, status)
		default:
			http.Error(w, "unknown project status", http.StatusBadRequest)
			return
		}
	}
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("update project: %v", err)
		http.Error(w, "failed to update project", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	category := model.ParseCategory(r.FormValue("document_category"))
	fileName := filepath.Base(header.Filename)
	if fileName == "" || fileName == "." {
		http.Error(w, "missing file name", http.StatusBadRequest)
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectKey := s3storage.ObjectKey(project.OwnerID, project.ProjectID, category, fileName)
	if err := s.store.Upload(ctx, objectKey, file, header.Size, contentType); err != nil {
		log.Printf("upload to storage failed: %v", err)
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	record := &model.UploadedFile{
		ID:               uuid.NewString(),
		FileName:         fileName,
		StorageKey:       objectKey,
		OwnerID:          project.OwnerID,
		ProjectID:        project.ProjectID,
		FileDescription:  r.FormValue("file_description"),
		DocumentCategory: category,
	}
	if err := s.files.Create(ctx, record); err != nil {
		log.Printf("create file record: %v", err)
		http.Error(w, "failed to store metadata", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	files, err := s.files.ListByProject(r.Context(), project.OwnerID, project.ProjectID)
	if err != nil {
		log.Printf("list files: %v", err)
		http.Error(w, "failed to list files", http.StatusInternalServerError)
		return
	}
	// Embedding vectors are an internal search structure; the omitempty tag
	// keeps them out of list responses only when unset, so strip them here.
	for i := range files {
		files[i].Embeddings = nil
	}
	respondJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	var req struct {
		StorageKey       string `json:"storage_key"`
		FileDescription  string `json:"file_description"`
		DocumentCategory string `json:"document_category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StorageKey == "" {
		http.Error(w, "invalid file payload", http.StatusBadRequest)
		return
	}
	updated, err := s.files.UpdateDescription(r.Context(), project.OwnerID, project.ProjectID,
		req.StorageKey, req.FileDescription, model.ParseCategory(req.DocumentCategory))
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("update file: %v", err)
		http.Error(w, "failed to update file", http.StatusInternalServerError)
		return
	}
	updated.Embeddings = nil
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleFileURL(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	file, err := s.files.Get(r.Context(), project.OwnerID, project.ProjectID, r.PathValue("fileID"))
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("load file: %v", err)
		http.Error(w, "failed to load file", http.StatusInternalServerError)
		return
	}
	storageURL, err := s.store.PresignURL(r.Context(), file.StorageKey, s.cfg.SignedURLTTL)
	if err != nil {
		log.Printf("presign %s: %v", file.StorageKey, err)
		http.Error(w, "failed to sign url", http.StatusInternalServerError)
		return
	}
	expires := time.Now().Add(s.cfg.SignedURLTTL).Unix()
	respondJSON(w, http.StatusOK, map[string]string{
		"url":         signedDownloadURL(s.signer, file.StorageKey, expires),
		"storage_url": storageURL,
	})
}

// signedDownloadURL builds the proxied download link. Storage keys embed the
// uploaded filename, so every query value is escaped; the server-side decode
// in handleDownload must recover the exact key that was signed.
func signedDownloadURL(signer *signing.Signer, storageKey string, expiresUnix int64) string {
	q := url.Values{}
	q.Set("key", storageKey)
	q.Set("expires", strconv.FormatInt(expiresUnix, 10))
	q.Set("signature", signer.Sign(storageKey, expiresUnix))
	return "/download?" + q.Encode()
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	expires := r.URL.Query().Get("expires")
	sig := r.URL.Query().Get("signature")
	if key == "" || !s.signer.Validate(key, expires, sig) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || time.Now().Unix() > exp {
		http.Error(w, "link expired", http.StatusForbidden)
		return
	}
	data, err := s.store.Download(r.Context(), key)
	if err != nil {
		log.Printf("download %s: %v", key, err)
		http.Error(w, "document unavailable", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	if err := queue.EnqueueProcess(ctx, s.queue, project.ProjectID, project.OwnerID); err != nil {
		log.Printf("enqueue process: %v", err)
		http.Error(w, "failed to queue job", http.StatusInternalServerError)
		return
	}
	if err := s.projects.UpdateStatus(ctx, project.ProjectID, model.ProjectInProgress); err != nil {
		log.Printf("mark project in progress: %v", err)
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"project_id": project.ProjectID,
		"status":     string(model.ProjectInProgress),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, "invalid chat payload", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	// r.Context() is cancelled when the client disconnects, which stops the
	// backend stream via the pipeline.
	err := s.chat.Answer(r.Context(), project.OwnerID, project.ProjectID, req.Query, func(token string) error {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", encodeToken(token)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		// The stream already started; a trailing error event is all we can
		// still deliver.
		log.Printf("chat stream for project %s: %v", project.ProjectID, err)
		fmt.Fprint(w, "event: error\ndata: stream interrupted\n\n")
		flusher.Flush()
		return
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// encodeToken makes a token safe for a single SSE data line.
func encodeToken(token string) string {
	data, _ := json.Marshal(token)
	return string(data)
}

// loadProject resolves the {id} path parameter against the caller identity,
// writing 400/404/500 responses itself. The boolean reports success.
func (s *Server) loadProject(w http.ResponseWriter, r *http.Request) (*model.Project, bool) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "missing user identity", http.StatusBadRequest)
		return nil, false
	}
	projectID := r.PathValue("id")
	if projectID == "" {
		http.Error(w, "missing project id", http.StatusBadRequest)
		return nil, false
	}
	project, err := s.projects.Get(r.Context(), owner, projectID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "project not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		log.Printf("load project %s: %v", projectID, err)
		http.Error(w, "failed to load project", http.StatusInternalServerError)
		return nil, false
	}
	return project, true
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-User-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
