package server

import (
	"io"
	"net/http"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
)

const indexPage = `<!DOCTYPE html>
<html>
<head><title>RCE Pipeline</title></head>
<body>
<h1>Remote Code Execution Pipeline</h1>
<p>POST a file to /submit, then poll /status/{job_id} or open /ws/{job_id}.</p>
</body>
</html>
`

// registerRoutes sets up all HTTP routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /submit", s.handleSubmit)
	mux.HandleFunc("GET /status/{job_id}", s.handleStatus)
	mux.HandleFunc("GET /ws/{job_id}", s.handleWS)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, indexPage)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// handleMetrics is a stubbed scrape endpoint. It reports a single fixed
// gauge (rce_up 1) in Prometheus text format without wiring a real
// metrics registry.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	io.WriteString(w, "# HELP rce_up whether the ingress gate process is running\n")
	io.WriteString(w, "# TYPE rce_up gauge\n")
	io.WriteString(w, "rce_up 1\n")
}

// handleSubmit accepts a multipart upload under the "file" field and
// hands it to the ingress gate.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.app.Config.Ingress.MaxArtifactBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "failed to parse multipart upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing \"file\" form field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	job, err := s.app.Gate.Submit(r.Context(), header.Filename, data)
	if err != nil {
		s.logger.Error().Err(err).Str("filename", header.Filename).Msg("submission failed")
		WriteError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	jobID := r.PathValue("job_id")

	job, err := s.app.Registry.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("registry lookup failed")
		WriteError(w, http.StatusInternalServerError, "failed to look up job")
		return
	}
	if job == nil {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":       job.ID,
		"status":       job.Status,
		"submitted_at": job.CreatedAt,
		"logs":         job.Logs,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	s.app.Hub.ServeWS(w, r, jobID)
}
