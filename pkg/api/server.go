/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api exposes the device cache over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/lens-sync/pkg/aggregator"
	lensHttp "github.com/carverauto/lens-sync/pkg/http"
	"github.com/carverauto/lens-sync/pkg/lens"
	"github.com/carverauto/lens-sync/pkg/logger"
	"github.com/carverauto/lens-sync/pkg/models"
	"github.com/carverauto/lens-sync/pkg/poller"
	"github.com/gorilla/mux"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	healthPath          = "/healthz"
	maxFilterBody       = 64 << 10
)

// DeviceService is the subset of aggregator.Service the API serves.
type DeviceService interface {
	GetSummaryStatistics(ctx context.Context) (map[string]string, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
	ListDevicesByID(ctx context.Context, ids []string) ([]models.Device, error)
	ExecuteControl(ctx context.Context, deviceID, action string) error
	UpdateFilters(modelNames, rooms, sites, excludedRooms string)
	Status() poller.Status
}

var _ DeviceService = (*aggregator.Service)(nil)

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string        `json:"status"`
	Poller poller.Status `json:"poller"`
}

// Server is the HTTP front end. It implements lifecycle.Service.
type Server struct {
	addr       string
	router     *mux.Router
	service    DeviceService
	corsConfig models.CORSConfig
	apiKey     string
	logger     logger.Logger
	srv        *http.Server
	listening  chan struct{}
	boundAddr  string

	mu      sync.Mutex
	stopped bool
}

// Option configures a Server.
type Option func(*Server)

// WithCORS sets the CORS policy.
func WithCORS(cfg models.CORSConfig) Option {
	return func(s *Server) {
		s.corsConfig = cfg
	}
}

// WithAPIKey requires the given key on every /api route.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		s.logger = log
	}
}

// NewServer builds the router for svc. Call Start to listen on addr.
func NewServer(addr string, svc DeviceService, options ...Option) *Server {
	s := &Server{
		addr:      addr,
		router:    mux.NewRouter(),
		service:   svc,
		logger:    logger.NewTestLogger(),
		listening: make(chan struct{}),
	}

	for _, o := range options {
		o(s)
	}

	s.setupRoutes()

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(lensHttp.RequestIDMiddleware)
	s.router.Use(func(next http.Handler) http.Handler {
		return lensHttp.CommonMiddleware(next, s.corsConfig, s.logger)
	})
	s.router.Use(lensHttp.APIKeyMiddlewareWithOptions(lensHttp.APIKeyOptions{
		APIKey:          s.apiKey,
		ExcludePaths:    []string{healthPath},
		LogUnauthorized: true,
		Logger:          s.logger,
	}))

	s.router.HandleFunc(healthPath, s.getHealth).Methods(http.MethodGet)

	r := s.router.PathPrefix("/api").Subrouter()
	r.HandleFunc("/summary", s.getSummary).Methods(http.MethodGet)
	r.HandleFunc("/devices", s.getDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices/{id}", s.getDevice).Methods(http.MethodGet)
	r.HandleFunc("/devices/{id}/controls/{action}", s.executeControl).Methods(http.MethodPost)
	r.HandleFunc("/filters", s.putFilters).Methods(http.MethodPut)

	// Preflight requests are answered by CommonMiddleware.
	s.router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves until Stop is called. It returns nil at once if
// Stop has already been called.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.boundAddr = ln.Addr().String()
	close(s.listening)
	s.mu.Unlock()

	s.logger.Info().Str("addr", s.boundAddr).Msg("HTTP API listening")

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Addr blocks until the server is listening and returns the bound address.
func (s *Server) Addr(ctx context.Context) (string, error) {
	select {
	case <-s.listening:
		return s.boundAddr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop shuts the server down gracefully.
// A Shutdown that lands before Serve makes Serve return http.ErrServerClosed.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	return s.srv.Shutdown(ctx)
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Poller: s.service.Status()})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.GetSummaryStatistics(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, stats)
}

// getDevices serves the full snapshot, or the subset named by repeated or
// comma-separated id query parameters.
func (s *Server) getDevices(w http.ResponseWriter, r *http.Request) {
	ids := queryIDs(r)

	var (
		devices []models.Device
		err     error
	)

	if len(ids) > 0 {
		devices, err = s.service.ListDevicesByID(r.Context(), ids)
	} else {
		devices, err = s.service.ListDevices(r.Context())
	}

	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, devices)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	devices, err := s.service.ListDevicesByID(r.Context(), []string{id})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if len(devices) == 0 {
		s.writeError(w, r, "device not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, r, http.StatusOK, devices[0])
}

func (s *Server) executeControl(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, action := vars["id"], vars["action"]

	if err := s.service.ExecuteControl(r.Context(), id, action); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, models.ControlResponse{DeviceID: id, Action: action, Status: "ok"})
}

func (s *Server) putFilters(w http.ResponseWriter, r *http.Request) {
	var req models.FilterRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFilterBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, "invalid filter request: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.service.UpdateFilters(req.Models, req.Rooms, req.Sites, req.ExcludedRooms)

	w.WriteHeader(http.StatusNoContent)
}

func queryIDs(r *http.Request) []string {
	var ids []string

	for _, v := range r.URL.Query()["id"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	return ids
}

// statusForError maps service error kinds onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, aggregator.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, aggregator.ErrUnsupportedControl):
		return http.StatusBadRequest
	case errors.Is(err, lens.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, lens.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, lens.ErrControl):
		return http.StatusConflict
	case errors.Is(err, lens.ErrTransport), errors.Is(err, lens.ErrProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)

	ev := s.logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.logger.Error()
	}

	ev.Err(err).
		Str("path", r.URL.Path).
		Str("request_id", lensHttp.RequestIDFromContext(r.Context())).
		Int("status", status).
		Msg("Request failed")

	s.writeError(w, r, err.Error(), status)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, message string, status int) {
	s.writeJSON(w, r, status, models.ErrorResponse{
		Message:   message,
		Status:    status,
		RequestID: lensHttp.RequestIDFromContext(r.Context()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Failed to encode response")
	}
}
