package handlers

import (
	"context"
	"database/sql"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/dchest/captcha"
	"github.com/go-chi/chi/v5"

	"daybook/auth"
	"daybook/config"
	"daybook/i18n"
	"daybook/memory"
	"daybook/models"
	"daybook/upload"
)

// Deps are the components the HTTP surface delegates to.
type Deps struct {
	DB          *sql.DB
	Credentials *auth.CredentialStore
	Sessions    *auth.SessionManager
	Memories    *memory.Store
	Uploads     *upload.Handler
	Translator  *i18n.Translator
	Logger      *slog.Logger
}

type Handler struct {
	cfg         *config.Config
	db          *sql.DB
	credentials *auth.CredentialStore
	sessions    *auth.SessionManager
	memories    *memory.Store
	uploads     *upload.Handler
	tr          *i18n.Translator
	logger      *slog.Logger

	loginLimiter  *rateLimiter
	signupLimiter *rateLimiter
	pages         map[string]*template.Template
}

func New(cfg *config.Config, deps Deps) (*Handler, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	return &Handler{
		cfg:           cfg,
		db:            deps.DB,
		credentials:   deps.Credentials,
		sessions:      deps.Sessions,
		memories:      deps.Memories,
		uploads:       deps.Uploads,
		tr:            deps.Translator,
		logger:        deps.Logger,
		loginLimiter:  newRateLimiter(),
		signupLimiter: newRateLimiter(),
		pages:         pages,
	}, nil
}

// Router wires the JSON API at the root, the rendered-view pages under
// /app and the shared image/captcha endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, Recoverer(h.logger), Logger(h.logger), SecurityHeadersMiddleware, CORSMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendJSONResponse(w, http.StatusNotFound, APIResponse{Status: "error", Message: http.StatusText(http.StatusNotFound)})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		lang := h.tr.DetectLanguage(r)
		sendJSONResponse(w, http.StatusMethodNotAllowed, APIResponse{Status: "error", Message: h.tr.T(lang, "MethodNotAllowed")})
	})

	r.Get("/healthz", h.Health)
	r.Handle("/captcha/*", captcha.Server(captcha.StdWidth, captcha.StdHeight))

	r.Post("/register", h.APIRegister)
	r.Post("/login", h.APILogin)
	r.Group(func(r chi.Router) {
		r.Use(h.requireSession(h.apiUnauthorized))
		r.Get("/logout", h.APILogout)
		r.Post("/upload", h.APIUpload)
		r.Get("/memories/{date}", h.APIListMemories)
		r.Get("/uploads/{name}", h.ServeUpload)
	})

	r.Route("/app", h.webRoutes)

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "health check failed", "error", err)
		sendJSONResponse(w, http.StatusServiceUnavailable, APIResponse{Status: "error", Message: "database unavailable"})
		return
	}
	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Message: "ok"})
}

// ServeUpload streams an image to the user whose memory references it.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	name := chi.URLParam(r, "name")

	owned, err := h.memories.OwnsImage(r.Context(), id.UserID, name)
	if err != nil {
		h.internalError(w, r, "check image owner", err)
		return
	}
	if !owned {
		http.NotFound(w, r)
		return
	}

	rc, err := h.uploads.Open(r.Context(), name)
	if errors.Is(err, upload.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.internalError(w, r, "open upload", err)
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "stream upload", "error", err, "name", name)
	}
}

// saveMemory runs the shared upload flow for both profiles: validate the
// form, store the optional image, insert the row, and delete the image
// again if the insert fails.
func (h *Handler) saveMemory(ctx context.Context, w http.ResponseWriter, r *http.Request) (int64, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return 0, models.ErrUnauthenticated
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return 0, err
	}

	date := r.FormValue("date")
	content := r.FormValue("content")
	if strings.TrimSpace(date) == "" || strings.TrimSpace(content) == "" {
		return 0, models.ErrValidation
	}

	var ref string
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		if header.Filename != "" {
			ref, err = h.uploads.Store(ctx, file, header.Filename)
			if err != nil {
				return 0, err
			}
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		return 0, err
	}

	memoryID, err := h.memories.Create(ctx, id.UserID, date, content, ref)
	if err != nil {
		if ref != "" {
			if rmErr := h.uploads.Remove(ctx, ref); rmErr != nil {
				h.logger.ErrorContext(ctx, "orphaned upload", "ref", ref, "error", rmErr)
			}
		}
		return 0, err
	}

	h.logger.InfoContext(ctx, "memory created", "memory_id", memoryID, "user_id", id.UserID, "date", date, "image", ref)
	return memoryID, nil
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, "error", err, "request_id", GetRequestID(r.Context()))
	lang := h.tr.DetectLanguage(r)
	sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: h.tr.T(lang, "InternalServerError")})
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
