package handlers

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/dchest/captcha"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"

	"daybook/auth"
	"daybook/crypto"
	"daybook/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages rendered inside the shared layout; feed_snippet.html stands alone
var layoutPages = []string{"login.html", "signup.html", "calendar.html"}

type calendarDay struct {
	Day       int
	Date      string
	HasMemory bool
}

func parsePages() (map[string]*template.Template, error) {
	// T is rebound per request to the caller's language.
	funcs := template.FuncMap{"T": func(key string) string { return key }}

	pages := make(map[string]*template.Template, len(layoutPages)+1)
	for _, name := range layoutPages {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, err
		}
		pages[name] = tmpl
	}

	snippet, err := template.New("feed_snippet.html").Funcs(funcs).ParseFS(templateFS, "templates/feed_snippet.html")
	if err != nil {
		return nil, err
	}
	pages["feed_snippet.html"] = snippet
	return pages, nil
}

func (h *Handler) webRoutes(r chi.Router) {
	r.Use(h.limitBody, h.csrfProtect)

	r.Get("/login", h.LoginPage)
	r.Post("/login", h.Login)
	r.Get("/signup", h.SignupPage)
	r.Post("/signup", h.Signup)

	r.Group(func(r chi.Router) {
		r.Use(h.requireSession(redirectToLogin))
		r.Get("/", h.Calendar)
		r.Post("/logout", h.Logout)
		r.Post("/upload", h.Upload)
		r.Get("/memories/{date}", h.Feed)
	})
}

func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) csrfProtect(next http.Handler) http.Handler {
	protect := csrf.Protect(
		crypto.DeriveKey(h.cfg.SessionKey, "csrf"),
		csrf.Secure(h.cfg.SecureCookies),
		csrf.Path("/app"),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.logger.WarnContext(r.Context(), "csrf check failed", "reason", csrf.FailureReason(r), "request_id", GetRequestID(r.Context()))
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})),
	)(next)

	if h.cfg.SecureCookies {
		return protect
	}
	// Without TLS the Referer check must be told the request is plaintext.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		protect.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
	})
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/app/login", http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	lang := h.tr.DetectLanguage(r)

	tmpl, err := h.pages[name].Clone()
	if err != nil {
		h.internalError(w, r, "clone template", err)
		return
	}
	tmpl.Funcs(template.FuncMap{
		"T": func(key string) string { return h.tr.T(lang, key) },
	})

	if data == nil {
		data = map[string]any{}
	}
	data["AppName"] = h.cfg.AppName
	data["Lang"] = lang
	data["csrfField"] = csrf.TemplateField(r)

	entry := "layout"
	if name == "feed_snippet.html" {
		entry = "feed"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, entry, data); err != nil {
		h.logger.ErrorContext(r.Context(), "render template", "template", name, "error", err)
	}
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login.html", nil)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	lang := h.tr.DetectLanguage(r)
	ip := getClientIP(r)
	if !h.loginLimiter.Allow(ip) {
		h.render(w, r, http.StatusTooManyRequests, "login.html", map[string]any{"Error": h.tr.T(lang, "TooManyAttempts")})
		return
	}

	user, ok, err := h.credentials.Verify(r.Context(), r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		h.internalError(w, r, "verify credentials", err)
		return
	}
	if !ok {
		h.loginLimiter.RecordFailure(ip)
		h.render(w, r, http.StatusUnauthorized, "login.html", map[string]any{"Error": h.tr.T(lang, "InvalidCredentials")})
		return
	}
	h.loginLimiter.Reset(ip)

	if _, err := h.sessions.Start(w, r, user); err != nil {
		h.internalError(w, r, "start session", err)
		return
	}
	http.Redirect(w, r, "/app/", http.StatusSeeOther)
}

func (h *Handler) SignupPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "signup.html", map[string]any{"CaptchaID": captcha.New()})
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	lang := h.tr.DetectLanguage(r)
	fail := func(status int, key string) {
		h.render(w, r, status, "signup.html", map[string]any{
			"Error":     h.tr.T(lang, key),
			"CaptchaID": captcha.New(),
		})
	}

	ip := getClientIP(r)
	if !h.signupLimiter.Allow(ip) {
		fail(http.StatusTooManyRequests, "TooManyAttempts")
		return
	}
	if !captcha.VerifyString(r.FormValue("captcha_id"), r.FormValue("captcha_solution")) {
		h.signupLimiter.RecordFailure(ip)
		fail(http.StatusBadRequest, "InvalidCaptcha")
		return
	}

	user, err := h.credentials.Register(r.Context(), r.FormValue("username"), r.FormValue("password"))
	switch {
	case err == nil:
	case errors.Is(err, models.ErrConflict):
		h.signupLimiter.RecordFailure(ip)
		fail(http.StatusConflict, "UsernameAlreadyExists")
		return
	case errors.Is(err, auth.ErrPasswordTooShort):
		fail(http.StatusBadRequest, "PasswordTooShort")
		return
	case errors.Is(err, models.ErrValidation):
		fail(http.StatusBadRequest, "MissingCredentials")
		return
	default:
		h.internalError(w, r, "register user", err)
		return
	}

	h.logger.InfoContext(r.Context(), "user registered", "user_id", user.ID, "username", user.Username)
	if _, err := h.sessions.Start(w, r, user); err != nil {
		h.internalError(w, r, "start session", err)
		return
	}
	http.Redirect(w, r, "/app/", http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(w, r); err != nil {
		h.internalError(w, r, "end session", err)
		return
	}
	http.Redirect(w, r, "/app/login", http.StatusSeeOther)
}

// Calendar renders one month, ?month=YYYY-MM, defaulting to the current
// one, with the days that have memories marked.
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	month, err := time.Parse("2006-01", r.URL.Query().Get("month"))
	if err != nil {
		now := time.Now()
		month = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	last := month.AddDate(0, 1, -1)

	dates, err := h.memories.DatesWithMemories(r.Context(), id.UserID, month.Format(time.DateOnly), last.Format(time.DateOnly))
	if err != nil {
		h.internalError(w, r, "list memory dates", err)
		return
	}
	marked := make(map[string]bool, len(dates))
	for _, d := range dates {
		marked[d] = true
	}

	// leading blanks so the first day lands on its weekday column
	days := make([]calendarDay, int(month.Weekday()), int(month.Weekday())+last.Day())
	for d := month; !d.After(last); d = d.AddDate(0, 0, 1) {
		date := d.Format(time.DateOnly)
		days = append(days, calendarDay{Day: d.Day(), Date: date, HasMemory: marked[date]})
	}

	h.render(w, r, http.StatusOK, "calendar.html", map[string]any{
		"Username": id.Username,
		"Month":    month.Format("January 2006"),
		"Prev":     month.AddDate(0, -1, 0).Format("2006-01"),
		"Next":     month.AddDate(0, 1, 0).Format("2006-01"),
		"Days":     days,
		"Today":    time.Now().Format(time.DateOnly),
	})
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	_, err := h.saveMemory(r.Context(), w, r)
	switch {
	case err == nil:
		http.Redirect(w, r, "/app/", http.StatusSeeOther)
	case isTooLarge(err):
		http.Error(w, h.tr.T(h.tr.DetectLanguage(r), "UploadTooLarge"), http.StatusRequestEntityTooLarge)
	case errors.Is(err, models.ErrValidation):
		http.Error(w, h.tr.T(h.tr.DetectLanguage(r), "MissingFields"), http.StatusBadRequest)
	case errors.Is(err, models.ErrUnauthenticated):
		redirectToLogin(w, r)
	default:
		h.internalError(w, r, "save memory", err)
	}
}

// Feed renders the memories of one day as an HTML fragment.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	date := chi.URLParam(r, "date")

	memories, err := h.memories.ListByDate(r.Context(), id.UserID, date)
	if err != nil {
		h.internalError(w, r, "list memories", err)
		return
	}
	h.render(w, r, http.StatusOK, "feed_snippet.html", map[string]any{
		"Date":     date,
		"Memories": memories,
	})
}
