// Package handlers exposes the diagram pipeline over HTTP and runs live
// editor sessions over websocket.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"diagram-sync/internal/adapter"
	"diagram-sync/internal/ai"
	"diagram-sync/internal/analyzer"
	"diagram-sync/internal/graph"
	"diagram-sync/internal/renderer"
	"diagram-sync/internal/sanitizer"
	"diagram-sync/internal/store"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// maxBody 单个请求体上限
const maxBody = 1 << 20

// Options API 依赖；AI 与 Store 可以为空
type Options struct {
	Registry *adapter.Registry
	AI       ai.Client
	Store    store.Store
	Debounce time.Duration
	Spacing  float64
	Logger   zerolog.Logger
}

// API HTTP 接口
type API struct {
	opts     Options
	analyzer *analyzer.HybridAnalyzer
	inferer  *analyzer.RelationshipInferer
	report   *renderer.MarkdownRenderer
	history  *renderer.HistoryRenderer
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewAPI 创建 API
func NewAPI(opts Options) *API {
	if opts.Registry == nil {
		opts.Registry = adapter.DefaultRegistry(opts.Spacing)
	}
	return &API{
		opts:     opts,
		analyzer: analyzer.NewHybridAnalyzer(opts.Registry, opts.AI, opts.Spacing, opts.Logger),
		inferer:  analyzer.NewRelationshipInferer(),
		report:   renderer.NewMarkdownRenderer(),
		history:  renderer.NewHistoryRenderer(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许跨域
			},
		},
		log: opts.Logger,
	}
}

// Router 注册全部路由
func (a *API) Router() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", a.handleHealth).Methods("GET")
	api.HandleFunc("/types", a.handleTypes).Methods("GET")

	api.HandleFunc("/clean", a.handleClean).Methods("POST")
	api.HandleFunc("/parse", a.handleParse).Methods("POST")
	api.HandleFunc("/generate", a.handleGenerate).Methods("POST")
	api.HandleFunc("/validate", a.handleValidate).Methods("POST")
	api.HandleFunc("/suggest", a.handleSuggest).Methods("POST")
	api.HandleFunc("/report", a.handleReport).Methods("POST")

	api.HandleFunc("/documents/{id}/versions", a.handleHistory).Methods("GET")
	api.HandleFunc("/documents/{id}/versions/latest", a.handleLatest).Methods("GET")

	api.HandleFunc("/ws", a.handleSession)
	return router
}

type textRequest struct {
	Text        string `json:"text"`
	DiagramType string `json:"diagramType,omitempty"`
	AllowAI     bool   `json:"allowAI,omitempty"`
}

type cleanResponse struct {
	sanitizer.Result
	Found bool `json:"found"`
}

type parseResponse struct {
	DiagramType      string                 `json:"diagramType"`
	CleanText        string                 `json:"cleanText"`
	RemovedLineCount int                    `json:"removedLineCount"`
	Result           graph.ParseResult      `json:"result"`
	Validation       graph.ValidationResult `json:"validation"`
	Diagnostics      []string               `json:"diagnostics"`
	Message          string                 `json:"message,omitempty"`
}

type generateRequest struct {
	DiagramType string       `json:"diagramType"`
	Direction   string       `json:"direction,omitempty"`
	Indent      string       `json:"indent,omitempty"`
	Nodes       []graph.Node `json:"nodes"`
	Edges       []graph.Edge `json:"edges"`
}

type generateResponse struct {
	DiagramType string `json:"diagramType"`
	Text        string `json:"text"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"ai":     a.opts.AI != nil,
		"store":  a.opts.Store != nil,
	})
}

func (a *API) handleTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"types": a.opts.Registry.Types()})
}

func (a *API) handleClean(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := sanitizer.Clean(req.Text)
	respondJSON(w, http.StatusOK, cleanResponse{Result: res, Found: err == nil})
}

func (a *API) handleParse(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	if req.AllowAI && a.opts.AI == nil {
		respondError(w, http.StatusBadRequest, "ai assistance is not configured")
		return
	}
	an := a.analyzer.Analyze(r.Context(), req.Text, analyzer.Options{DiagramType: req.DiagramType, AllowAI: req.AllowAI})
	respondJSON(w, http.StatusOK, parseResponse{
		DiagramType:      an.Adapter.Type(),
		CleanText:        an.Clean.Text,
		RemovedLineCount: an.Clean.RemovedLineCount,
		Result:           an.Result,
		Validation:       an.Validation,
		Diagnostics:      an.Diagnostics(),
		Message:          an.Result.Metadata.Failure.Message(),
	})
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.DiagramType == "" {
		respondError(w, http.StatusBadRequest, "diagramType is required")
		return
	}
	ad := a.opts.Registry.Resolve(req.DiagramType)
	text := ad.Generate(req.Nodes, req.Edges, adapter.GenerateOptions{Direction: req.Direction, Indent: req.Indent})
	respondJSON(w, http.StatusOK, generateResponse{DiagramType: ad.Type(), Text: text})
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	an := a.analyzer.Analyze(r.Context(), req.Text, analyzer.Options{DiagramType: req.DiagramType})
	respondJSON(w, http.StatusOK, an.Validation)
}

func (a *API) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	an := a.analyzer.Analyze(r.Context(), req.Text, analyzer.Options{DiagramType: req.DiagramType})
	if !an.Result.Success {
		respondError(w, http.StatusUnprocessableEntity, an.Result.Metadata.Failure.Message())
		return
	}
	if an.Adapter.DefaultNodeRole() != graph.RoleEntity {
		respondError(w, http.StatusBadRequest, "relationship suggestions need an erDiagram")
		return
	}
	suggestions := a.inferer.Infer(an.Result.Nodes, an.Result.Edges)
	if suggestions == nil {
		suggestions = []analyzer.Suggestion{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	an := a.analyzer.Analyze(r.Context(), req.Text, analyzer.Options{DiagramType: req.DiagramType})
	if !an.Result.Success {
		respondError(w, http.StatusUnprocessableEntity, an.Result.Metadata.Failure.Message())
		return
	}
	doc := graph.Document{
		DiagramType:      an.Adapter.Type(),
		RawText:          an.Clean.Text,
		Nodes:            an.Result.Nodes,
		Edges:            an.Result.Edges,
		ParseDiagnostics: an.Diagnostics(),
	}
	var suggestions []analyzer.Suggestion
	if an.Adapter.DefaultNodeRole() == graph.RoleEntity {
		suggestions = a.inferer.Infer(doc.Nodes, doc.Edges)
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(a.report.Render(doc, suggestions)))
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.opts.Store == nil {
		respondError(w, http.StatusNotImplemented, "no persistence configured")
		return
	}
	id := mux.Vars(r)["id"]
	versions, err := a.opts.Store.History(r.Context(), id)
	if err != nil {
		a.log.Error().Err(err).Str("doc", id).Msg("load history")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(a.history.Render(id, versions, r.URL.Query().Get("content") == "true")))
		return
	}
	if versions == nil {
		versions = []store.Version{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"documentId": id, "versions": versions})
}

func (a *API) handleLatest(w http.ResponseWriter, r *http.Request) {
	if a.opts.Store == nil {
		respondError(w, http.StatusNotImplemented, "no persistence configured")
		return
	}
	id := mux.Vars(r)["id"]
	v, err := a.opts.Store.Latest(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no saved version")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
