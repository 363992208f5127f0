package mapreduce

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/paulniziolek/mrjobs/pkg/mapreduce/job"
)

const maxUploadMemory = 32 << 20

// Handler serves the master's HTTP API.
func (m *Master) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", m.handleCreateJob)
	mux.HandleFunc("POST /jobs/upload", m.handleUploadJob)
	mux.HandleFunc("GET /jobs/{jobId}", m.handleJobStatus)
	mux.HandleFunc("GET /jobs/{jobId}/result", m.handleJobResult)
	mux.HandleFunc("POST /workers/register", m.handleRegister)
	mux.HandleFunc("POST /tasks/next", m.handleNextTask)
	mux.HandleFunc("POST /tasks/{taskId}/result", m.handleTaskResult)
	return mux
}

func (m *Master) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := m.CreateJob(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (m *Master) handleUploadJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidJob, err))
		return
	}
	code, header, err := r.FormFile("code")
	if err != nil {
		writeError(w, fmt.Errorf("%w: code file: %v", ErrInvalidJob, err))
		return
	}
	defer code.Close()

	req := CreateJobRequest{DatasetPath: r.FormValue("datasetPath")}
	for name, dst := range map[string]*int{
		"reducers":      &req.Reducers,
		"splitSizeMb":   &req.SplitSizeMb,
		"linesPerSplit": &req.LinesPerSplit,
	} {
		v := r.FormValue(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %s: %v", ErrInvalidJob, name, err))
			return
		}
		*dst = n
	}

	resp, err := m.UploadJob(code, header.Filename, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (m *Master) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	st, err := m.JobStatus(r.PathValue("jobId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (m *Master) handleJobResult(w http.ResponseWriter, r *http.Request) {
	path, err := m.ResultPath(r.PathValue("jobId"))
	if err != nil {
		writeError(w, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+job.FinalName+`"`)
	http.ServeContent(w, r, job.FinalName, st.ModTime(), f)
}

func (m *Master) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	ids, err := m.RegisterWorker(req.WorkerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RegisterResponse{OK: true, Workers: ids})
}

func (m *Master) handleNextTask(w http.ResponseWriter, r *http.Request) {
	var req GetTaskRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := m.NextTask(req.WorkerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GetTaskResponse{Task: t})
}

func (m *Master) handleTaskResult(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if !decode(w, r, &req) {
		return
	}
	if err := m.ReportResult(r.PathValue("taskId"), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{OK: true})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad request: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), ErrorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrUnknownJob), errors.Is(err, ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidJob), errors.Is(err, ErrNoWorker):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
