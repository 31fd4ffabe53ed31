package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"daybook/auth"
	"daybook/models"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// memoryView is the wire shape of one entry in GET /memories/{date}.
type memoryView struct {
	Content string  `json:"content"`
	Image   *string `json:"image"`
	Date    string  `json:"date"`
}

type credentialsInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func sendJSONResponse(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, status int, key string) {
	lang := h.tr.DetectLanguage(r)
	sendJSONResponse(w, status, APIResponse{Status: "error", Message: h.tr.T(lang, key)})
}

func (h *Handler) apiUnauthorized(w http.ResponseWriter, r *http.Request) {
	h.sendError(w, r, http.StatusUnauthorized, "Unauthorized")
}

func (h *Handler) APIRegister(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if !h.signupLimiter.Allow(ip) {
		h.sendError(w, r, http.StatusTooManyRequests, "TooManyAttempts")
		return
	}

	var input credentialsInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "InvalidRequestBody")
		return
	}

	user, err := h.credentials.Register(r.Context(), input.Username, input.Password)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrConflict):
		h.signupLimiter.RecordFailure(ip)
		h.sendError(w, r, http.StatusConflict, "UsernameAlreadyExists")
		return
	case errors.Is(err, auth.ErrPasswordTooShort):
		h.sendError(w, r, http.StatusBadRequest, "PasswordTooShort")
		return
	case errors.Is(err, models.ErrValidation):
		h.sendError(w, r, http.StatusBadRequest, "MissingCredentials")
		return
	default:
		h.internalError(w, r, "register user", err)
		return
	}

	h.logger.InfoContext(r.Context(), "user registered", "user_id", user.ID, "username", user.Username)
	lang := h.tr.DetectLanguage(r)
	sendJSONResponse(w, http.StatusCreated, APIResponse{
		Status:  "success",
		Message: h.tr.T(lang, "Registered"),
		Data: map[string]any{
			"user_id":  user.ID,
			"username": user.Username,
		},
	})
}

// APILogin binds a session and answers with an API token. The session
// cookie is set as well so browser clients work without the header.
func (h *Handler) APILogin(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if !h.loginLimiter.Allow(ip) {
		h.sendError(w, r, http.StatusTooManyRequests, "TooManyAttempts")
		return
	}

	var input credentialsInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "InvalidRequestBody")
		return
	}
	if input.Username == "" || input.Password == "" {
		h.sendError(w, r, http.StatusBadRequest, "MissingCredentials")
		return
	}

	user, ok, err := h.credentials.Verify(r.Context(), input.Username, input.Password)
	if err != nil {
		h.internalError(w, r, "verify credentials", err)
		return
	}
	if !ok {
		h.loginLimiter.RecordFailure(ip)
		h.sendError(w, r, http.StatusUnauthorized, "InvalidCredentials")
		return
	}
	h.loginLimiter.Reset(ip)

	token, err := h.sessions.Start(w, r, user)
	if err != nil {
		h.internalError(w, r, "start session", err)
		return
	}

	lang := h.tr.DetectLanguage(r)
	sendJSONResponse(w, http.StatusOK, APIResponse{
		Status:  "success",
		Message: h.tr.T(lang, "LoggedIn"),
		Data: map[string]any{
			"token":    token,
			"user_id":  user.ID,
			"username": user.Username,
		},
	})
}

func (h *Handler) APILogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(w, r); err != nil {
		h.internalError(w, r, "end session", err)
		return
	}
	lang := h.tr.DetectLanguage(r)
	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Message: h.tr.T(lang, "LoggedOut")})
}

func (h *Handler) APIUpload(w http.ResponseWriter, r *http.Request) {
	id, err := h.saveMemory(r.Context(), w, r)
	switch {
	case err == nil:
	case isTooLarge(err):
		h.sendError(w, r, http.StatusRequestEntityTooLarge, "UploadTooLarge")
		return
	case errors.Is(err, models.ErrValidation):
		h.sendError(w, r, http.StatusBadRequest, "MissingFields")
		return
	case errors.Is(err, models.ErrUnauthenticated):
		h.apiUnauthorized(w, r)
		return
	default:
		h.internalError(w, r, "save memory", err)
		return
	}

	lang := h.tr.DetectLanguage(r)
	sendJSONResponse(w, http.StatusOK, APIResponse{
		Status:  "success",
		Message: h.tr.T(lang, "MemorySaved"),
		Data:    map[string]any{"id": id},
	})
}

// APIListMemories answers with a bare JSON array, newest first.
func (h *Handler) APIListMemories(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	date := chi.URLParam(r, "date")

	memories, err := h.memories.ListByDate(r.Context(), id.UserID, date)
	if err != nil {
		h.internalError(w, r, "list memories", err)
		return
	}

	out := make([]memoryView, 0, len(memories))
	for _, m := range memories {
		v := memoryView{Content: m.Content, Date: m.Date}
		if m.ImagePath != "" {
			image := m.ImagePath
			v.Image = &image
		}
		out = append(out, v)
	}
	sendJSONResponse(w, http.StatusOK, out)
}
