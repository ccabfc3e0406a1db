package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Strob0t/CodeTutor/internal/adapter/ws"
	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/task"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
	"github.com/Strob0t/CodeTutor/internal/resilience"
	"github.com/Strob0t/CodeTutor/internal/service"
)

// Tutorials is the service surface the handlers drive.
type Tutorials interface {
	Submit(ctx context.Context, rawURL, ref string) (task.Task, error)
	Status(id string) (task.Task, error)
	Result(id string) (*tutorial.Tutorial, error)
	Export(id, format string) (*service.Document, error)
	Formats() []string
	Counts() map[task.Status]int
}

// ProviderStatuses reports which LLM providers are usable.
type ProviderStatuses interface {
	Status() []service.ProviderStatus
}

// ConnectionChecker reports broker connectivity.
type ConnectionChecker interface {
	IsConnected() bool
}

// Handlers holds the HTTP handlers and their dependencies. Breaker, Hub and
// Events are optional.
type Handlers struct {
	Tutorials Tutorials
	Providers ProviderStatuses
	Breaker   *resilience.Breaker
	Hub       *ws.Hub
	Events    ConnectionChecker
	Version   string
}

type analyzeRequest struct {
	RepositoryURL string `json:"repository_url"`
	// GitHubURL is the legacy name of RepositoryURL.
	GitHubURL string `json:"github_url"`
	Ref       string `json:"ref"`
}

type analyzeResponse struct {
	TaskID       string      `json:"task_id"`
	Status       task.Status `json:"status"`
	Message      string      `json:"message"`
	StatusURL    string      `json:"status_url"`
	ResultsURL   string      `json:"results_url"`
	WebSocketURL string      `json:"websocket_url"`
}

// Analyze handles POST /analyze.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[analyzeRequest](w, r)
	if !ok {
		return
	}
	url := strings.TrimSpace(req.RepositoryURL)
	if url == "" {
		url = strings.TrimSpace(req.GitHubURL)
	}
	if url == "" {
		writeError(w, http.StatusBadRequest, domain.KindInvalidRepositoryURL, "repository_url is required")
		return
	}

	t, err := h.Tutorials.Submit(r.Context(), url, req.Ref)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/status/"+t.ID)
	writeJSON(w, http.StatusAccepted, analyzeResponse{
		TaskID:       t.ID,
		Status:       t.Status,
		Message:      t.Message,
		StatusURL:    "/status/" + t.ID,
		ResultsURL:   "/results/" + t.ID,
		WebSocketURL: "/ws/" + t.ID,
	})
}

// GetStatus handles GET /status/{id}.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tutorials.Status(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type resultsResponse struct {
	TaskID   string             `json:"task_id"`
	Tutorial *tutorial.Tutorial `json:"tutorial"`
	Exports  map[string]string  `json:"exports"`
}

// GetResults handles GET /results/{id}.
func (h *Handlers) GetResults(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	t, err := h.Tutorials.Result(id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	exports := make(map[string]string)
	for _, f := range h.Tutorials.Formats() {
		exports[f] = "/export/" + id + "/" + f
	}
	writeJSON(w, http.StatusOK, resultsResponse{TaskID: id, Tutorial: t, Exports: exports})
}

// Export handles GET /export/{id}/{format}. A task that has not completed
// has nothing to export and is reported as not found.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Tutorials.Export(urlParam(r, "id"), urlParam(r, "format"))
	if err != nil {
		if domain.KindOf(err) == domain.KindTaskNotCompleted {
			writeError(w, http.StatusNotFound, domain.KindTaskNotCompleted, domain.MessageOf(err))
			return
		}
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

// Watch handles GET /ws/{id}.
func (h *Handlers) Watch(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	last, err := h.Tutorials.Status(id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.Hub.Serve(w, r, id, func() task.Task {
		if t, err := h.Tutorials.Status(id); err == nil {
			return t
		}
		return last
	})
}

type healthResponse struct {
	Status      string                   `json:"status"`
	Version     string                   `json:"version"`
	Providers   []service.ProviderStatus `json:"providers"`
	Breaker     string                   `json:"breaker"`
	Tasks       map[task.Status]int      `json:"tasks"`
	NATS        string                   `json:"nats"`
	Connections int                      `json:"websocket_connections"`
}

// Health handles GET /health. The service is degraded when no LLM provider
// has a key or the provider circuit is open.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Version:   h.Version,
		Providers: h.Providers.Status(),
		Breaker:   h.Breaker.State().String(),
		Tasks:     h.Tutorials.Counts(),
		NATS:      "disabled",
	}
	configured := false
	for _, p := range resp.Providers {
		configured = configured || p.Configured
	}
	if !configured || h.Breaker.State() == resilience.StateOpen {
		resp.Status = "degraded"
	}
	if h.Events != nil {
		resp.NATS = "disconnected"
		if h.Events.IsConnected() {
			resp.NATS = "connected"
		}
	}
	if h.Hub != nil {
		resp.Connections = h.Hub.ConnectionCount()
	}
	writeJSON(w, http.StatusOK, resp)
}
