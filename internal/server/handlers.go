package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/isomorph/internal/component"
	"github.com/conneroisu/isomorph/internal/errors"
	"github.com/conneroisu/isomorph/internal/livereload"
	"github.com/conneroisu/isomorph/internal/renderer"
	"github.com/conneroisu/isomorph/internal/version"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := s.pages.Render(ctx)
	s.recorder.ObserveRequest(err)
	if err != nil {
		if stderrors.Is(err, context.Canceled) {
			return
		}
		s.errors.Handle(ctx, err)
		s.writeErrorPage(w, r, err)
		return
	}

	if s.config.LiveReloadEnabled() {
		doc = livereload.Inject(doc, LiveReloadPath)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, doc); err != nil {
		s.logger.Debug(ctx, "Client went away", "error", err.Error())
	}
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	Environment string `json:"environment"`
	LiveReload  bool   `json:"live_reload"`
	Clients     int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.GetBuildInfo()
	resp := HealthResponse{
		Status:      "ok",
		Version:     info.Version,
		Commit:      info.GitCommit,
		Environment: s.config.Server.Environment,
		LiveReload:  s.config.LiveReloadEnabled(),
	}
	if s.hub != nil {
		resp.Clients = s.hub.Clients()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode health response")
	}
}

// writeErrorPage answers a failed render with a 500 page. Error detail is
// shown only in development.
func (s *Server) writeErrorPage(w http.ResponseWriter, r *http.Request, err error) {
	page, renderErr := renderer.New().Render(r.Context(),
		errorPage(err, middleware.GetReqID(r.Context()), s.config.IsDevelopment()), renderer.ModeStatic)
	w.Header().Set("Cache-Control", "no-store")
	if renderErr != nil {
		s.logger.Error(r.Context(), renderErr, "Failed to render error page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = io.WriteString(w, "<!DOCTYPE html>"+page)
}

const errorStyle = `body{font-family:system-ui,sans-serif;margin:3rem auto;max-width:48rem;color:#222}` +
	`h1{color:#b00020}dt{font-weight:600}dd{margin:0 0 .5rem 0;font-family:monospace;white-space:pre-wrap}`

func errorPage(err error, requestID string, detailed bool) component.Node {
	title, summary := "Render failed", "The page could not be rendered."
	if errors.IsTemplateError(err) {
		title, summary = "Shell template error", "The document shell could not be used."
	}

	body := []component.Node{
		component.El("h1", nil, component.Text(title)),
		component.El("p", nil, component.Text(summary)),
	}
	if detailed {
		var fields []component.Node
		field := func(name, value string) {
			if value != "" {
				fields = append(fields,
					component.El("dt", nil, component.Text(name)),
					component.El("dd", nil, component.Text(value)))
			}
		}
		var e *errors.Error
		if stderrors.As(err, &e) {
			field("Type", string(e.Type))
			field("Code", e.Code)
			field("Component", e.Component)
			field("Path", e.Path)
		}
		field("Error", err.Error())
		body = append(body, component.El("dl", nil, fields...))
	}
	if requestID != "" {
		body = append(body, component.El("p", nil,
			component.El("small", nil, component.Textf("Request ID: %s", requestID))))
	}

	return component.El("html", component.Attrs{"lang": "en"},
		component.El("head", nil,
			component.El("meta", component.Attrs{"charset": "utf-8"}),
			component.El("title", nil, component.Text(fmt.Sprintf("%d %s", http.StatusInternalServerError, title))),
			component.El("style", nil, component.Text(errorStyle)),
		),
		component.El("body", nil, body...),
	)
}
