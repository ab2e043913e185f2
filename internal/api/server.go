// Package api exposes the plant care engine as a JSON HTTP API.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/PlantDoctor/internal/catalog"
	"github.com/digkill/PlantDoctor/internal/diagnosis"
	"github.com/digkill/PlantDoctor/internal/models"
	"github.com/digkill/PlantDoctor/internal/service"
	"github.com/digkill/PlantDoctor/internal/storage"
)

const maxBodyBytes = 12 << 20

type Server struct {
	addr      string
	log       *slog.Logger
	tokens    *TokenIssuer
	sessions  *service.SessionService
	home      *service.HomeService
	plants    *service.PlantService
	diagnoses *service.DiagnosisService
	catalog   catalog.Catalog
	router    *chi.Mux
}

func NewServer(addr string, log *slog.Logger, tokens *TokenIssuer, sessions *service.SessionService, home *service.HomeService, plants *service.PlantService, diagnoses *service.DiagnosisService, cat catalog.Catalog) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:      addr,
		log:       log,
		tokens:    tokens,
		sessions:  sessions,
		home:      home,
		plants:    plants,
		diagnoses: diagnoses,
		catalog:   cat,
		router:    r,
	}
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/catalog", s.handleCatalog)
	r.Post("/auth/signup", s.handleSignUp)
	r.Post("/auth/login", s.handleLogIn)

	r.Group(func(protected chi.Router) {
		protected.Use(s.sessionMiddleware)
		protected.Post("/auth/logout", s.handleLogOut)
		protected.Get("/me", s.handleMe)
		protected.Post("/me/upgrade", s.handleUpgrade)
		protected.Get("/home", s.handleHome)
		protected.Post("/diagnoses", s.handleDiagnose)
		protected.Route("/plants", func(r chi.Router) {
			r.Get("/", s.handleListPlants)
			r.Post("/", s.handleCreatePlant)
			r.Get("/{id}", s.handleGetPlant)
			r.Delete("/{id}", s.handleDeletePlant)
			r.Post("/{id}/water", s.handleWater)
			r.Post("/{id}/photos", s.handleAddPhoto)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// sessionMiddleware resolves the bearer token to a live session. A token whose
// session was logged out is rejected even before it expires.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			s.writeError(w, r, service.ErrNoSession)
			return
		}
		claims, err := s.tokens.Parse(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		sess, err := s.sessions.Current(r.Context(), claims.Scope)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if sess == nil || sess.User.Email != claims.Email {
			s.writeError(w, r, service.ErrNoSession)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithSession(r.Context(), *sess)))
	})
}

func mustSession(r *http.Request) service.Session {
	sess, ok := service.SessionFromContext(r.Context())
	if !ok {
		panic("api: handler mounted without session middleware")
	}
	return sess
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	Email     string    `json:"email"`
	IsPremium bool      `json:"isPremium"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserView(u models.User) userView {
	return userView{Email: u.Email, IsPremium: u.IsPremium, CreatedAt: u.CreatedAt}
}

type authResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, s.sessions.SignUp, http.StatusCreated)
}

func (s *Server) handleLogIn(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, s.sessions.LogIn, http.StatusOK)
}

type authFunc func(ctx context.Context, scope, email, password string) (service.Session, error)

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, auth authFunc, status int) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	token, scope, err := s.tokens.Issue(service.NormalizeEmail(req.Email))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := auth(r.Context(), scope, req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, status, authResponse{Token: token, User: newUserView(sess.User)})
}

func (s *Server) handleLogOut(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.LogOut(r.Context(), mustSession(r).Scope); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, newUserView(mustSession(r).User))
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Upgrade(r.Context(), mustSession(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newUserView(sess.User))
}

type homeResponse struct {
	User userView `json:"user"`
	service.Home
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	home, err := s.home.Load(r.Context(), mustSession(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := homeResponse{User: newUserView(home.User), Home: home}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.catalog)
}

type diagnoseRequest struct {
	Image         string               `json:"image"`
	MediaType     string               `json:"mediaType"`
	PlantName     string               `json:"plantName"`
	Questionnaire models.Questionnaire `json:"questionnaire"`
}

type diagnoseResponse struct {
	Diagnosis models.Diagnosis `json:"diagnosis"`
	State     string           `json:"state"`
	Error     string           `json:"error,omitempty"`
	Usage     service.Usage    `json:"usage"`
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var req diagnoseRequest
	if !s.decode(w, r, &req) {
		return
	}
	image, mediaType, err := decodeImage(req.Image, req.MediaType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.diagnoses.Diagnose(r.Context(), mustSession(r), diagnosis.Request{
		Image:         image,
		MediaType:     mediaType,
		PlantName:     req.PlantName,
		Questionnaire: req.Questionnaire,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := diagnoseResponse{Diagnosis: out.Diagnosis, State: out.State.String(), Usage: out.Usage}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPlants(w http.ResponseWriter, r *http.Request) {
	plants, err := s.plants.List(r.Context(), mustSession(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plants)
}

type createPlantRequest struct {
	Name          string               `json:"name"`
	Image         string               `json:"image"`
	MediaType     string               `json:"mediaType"`
	Questionnaire models.Questionnaire `json:"questionnaire"`
	Diagnosis     models.Diagnosis     `json:"diagnosis"`
}

func (s *Server) handleCreatePlant(w http.ResponseWriter, r *http.Request) {
	var req createPlantRequest
	if !s.decode(w, r, &req) {
		return
	}
	image, mediaType, err := decodeImage(req.Image, req.MediaType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	plant, err := s.plants.Create(r.Context(), mustSession(r), service.NewPlant{
		Name:          req.Name,
		Questionnaire: req.Questionnaire,
		Diagnosis:     req.Diagnosis,
		Image:         image,
		ContentType:   mediaType,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, plant)
}

func (s *Server) handleGetPlant(w http.ResponseWriter, r *http.Request) {
	id, ok := s.plantID(w, r)
	if !ok {
		return
	}
	plant, err := s.plants.Get(r.Context(), mustSession(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plant)
}

func (s *Server) handleDeletePlant(w http.ResponseWriter, r *http.Request) {
	id, ok := s.plantID(w, r)
	if !ok {
		return
	}
	if err := s.plants.Delete(r.Context(), mustSession(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type waterRequest struct {
	Version int `json:"version"`
}

func (s *Server) handleWater(w http.ResponseWriter, r *http.Request) {
	id, ok := s.plantID(w, r)
	if !ok {
		return
	}
	var req waterRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	plant, err := s.plants.MarkWatered(r.Context(), mustSession(r), id, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plant)
}

type photoRequest struct {
	Image     string `json:"image"`
	MediaType string `json:"mediaType"`
	Notes     string `json:"notes"`
	Version   int    `json:"version"`
}

func (s *Server) handleAddPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := s.plantID(w, r)
	if !ok {
		return
	}
	var req photoRequest
	if !s.decode(w, r, &req) {
		return
	}
	image, mediaType, err := decodeImage(req.Image, req.MediaType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	plant, err := s.plants.AddPhoto(r.Context(), mustSession(r), id, service.Photo{
		Image:       image,
		ContentType: mediaType,
		Notes:       req.Notes,
	}, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plant)
}

func (s *Server) plantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid plant id", service.ErrValidation))
		return 0, false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid json: %w", service.ErrValidation, err))
		return false
	}
	return true
}

// decodeImage accepts a data URI or plain base64.
func decodeImage(value, mediaType string) ([]byte, string, error) {
	if value == "" {
		return nil, "", fmt.Errorf("%w: image is required", service.ErrValidation)
	}
	if data, ct, ok := storage.ParseDataURI(value); ok {
		if mediaType == "" {
			mediaType = ct
		}
		return data, storage.ContentType(data, mediaType), nil
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, "", fmt.Errorf("%w: image is not base64", service.ErrValidation)
	}
	return data, storage.ContentType(data, mediaType), nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
