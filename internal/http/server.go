package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ignatij/blogflow/internal/log"
	"github.com/ignatij/blogflow/pkg/models"
	"github.com/ignatij/blogflow/pkg/service"
	"github.com/ignatij/blogflow/pkg/storage"
)

type createWorkflowRequest struct {
	WorkflowID string        `json:"workflow_id"`
	Tasks      []models.Task `json:"tasks"`
}

type messageResponse struct {
	WorkflowID string `json:"workflow_id"`
	Message    string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewMux routes the workflow API to svc.
func NewMux(svc *service.WorkflowService) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/workflows", WorkflowsHandler(svc))
	mux.HandleFunc("/workflows/", WorkflowByIDHandler(svc))
	return mux
}

// StartServer serves the API until ctx is cancelled.
func StartServer(ctx context.Context, port string, svc *service.WorkflowService) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.GetLogger().Infof("Starting blogflow server on :%s", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.GetLogger().Info("Shutting down blogflow server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "blogflow server is running")
}

func WorkflowsHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listWorkflowsHTTP(w, svc)
		case http.MethodPost:
			createWorkflowHTTP(w, r, svc)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// WorkflowByIDHandler serves /workflows/{id} and its sub-resources.
func WorkflowByIDHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/workflows/"), "/"), "/")
		if parts[0] == "" || len(parts) > 2 {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		id := parts[0]
		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			getWorkflowHTTP(w, svc, id)
		case action == "" && r.Method == http.MethodDelete:
			deleteWorkflowHTTP(w, svc, id)
		case action == "status" && r.Method == http.MethodGet:
			monitorWorkflowHTTP(w, svc, id)
		case action == "logs" && r.Method == http.MethodGet:
			workflowLogsHTTP(w, svc, id)
		case (action == "start" || action == "pause" || action == "resume") && r.Method == http.MethodPost:
			workflowActionHTTP(w, r, svc, id, action)
		case action == "" || action == "status" || action == "logs" || action == "start" || action == "pause" || action == "resume":
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		default:
			writeError(w, http.StatusNotFound, "Not found")
		}
	}
}

func createWorkflowHTTP(w http.ResponseWriter, r *http.Request, svc *service.WorkflowService) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.GetLogger().Errorf("Invalid JSON in POST /workflows: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.WorkflowID == "" {
		writeError(w, http.StatusBadRequest, "Missing 'workflow_id' parameter")
		return
	}
	if err := svc.Create(r.Context(), req.WorkflowID, req.Tasks); err != nil {
		log.GetLogger().Errorf("Failed to create workflow: %v", err)
		writeServiceError(w, "Failed to create workflow", err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{
		WorkflowID: req.WorkflowID,
		Message:    fmt.Sprintf("Created workflow '%s' with %d tasks", req.WorkflowID, len(req.Tasks)),
	})
}

func listWorkflowsHTTP(w http.ResponseWriter, svc *service.WorkflowService) {
	workflows, err := svc.List()
	if err != nil {
		log.GetLogger().Errorf("Failed to list workflows: %v", err)
		writeServiceError(w, "Failed to list workflows", err)
		return
	}
	if workflows == nil {
		workflows = []models.Workflow{}
	}
	writeJSON(w, http.StatusOK, workflows)
}

func getWorkflowHTTP(w http.ResponseWriter, svc *service.WorkflowService, id string) {
	wf, err := svc.Get(id)
	if err != nil {
		writeServiceError(w, "Failed to get workflow", err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func monitorWorkflowHTTP(w http.ResponseWriter, svc *service.WorkflowService, id string) {
	report, err := svc.Monitor(id)
	if err != nil {
		writeServiceError(w, "Failed to monitor workflow", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func workflowLogsHTTP(w http.ResponseWriter, svc *service.WorkflowService, id string) {
	logs, err := svc.Logs(id)
	if err != nil {
		writeServiceError(w, "Failed to get execution logs", err)
		return
	}
	if logs == nil {
		logs = []models.ExecutionLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func deleteWorkflowHTTP(w http.ResponseWriter, svc *service.WorkflowService, id string) {
	if err := svc.Delete(id); err != nil {
		log.GetLogger().Errorf("Failed to delete workflow '%s': %v", id, err)
		writeServiceError(w, "Failed to delete workflow", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{WorkflowID: id, Message: fmt.Sprintf("Deleted workflow '%s'", id)})
}

func workflowActionHTTP(w http.ResponseWriter, r *http.Request, svc *service.WorkflowService, id, action string) {
	var err error
	switch action {
	case "start":
		err = svc.Start(r.Context(), id)
	case "pause":
		err = svc.Pause(id)
	case "resume":
		err = svc.Resume(r.Context(), id)
	}
	if err != nil {
		log.GetLogger().Errorf("Failed to %s workflow '%s': %v", action, id, err)
		writeServiceError(w, fmt.Sprintf("Failed to %s workflow", action), err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{WorkflowID: id, Message: fmt.Sprintf("Workflow '%s' %s", id, pastTense(action))})
}

func pastTense(action string) string {
	switch action {
	case "start":
		return "started"
	case "pause":
		return "paused"
	default:
		return "resumed"
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrWorkflowExists), errors.Is(err, storage.ErrAlreadyExists), errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidWorkflow):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, prefix string, err error) {
	writeError(w, statusFor(err), fmt.Sprintf("%s: %v", prefix, err))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}
