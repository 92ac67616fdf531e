package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/respond"
	"github.com/MrEthical07/authcore/middleware"
)

const maxBodyBytes = 1 << 20

var errBadBody = &authcore.Error{Kind: authcore.KindValidation, Message: "Invalid request body"}

// Options configures the handler.
type Options struct {
	Logger *slog.Logger
	// TrustForwardedFor reads the client address from X-Forwarded-For.
	TrustForwardedFor bool
}

type handler struct {
	engine *authcore.Engine
	log    *slog.Logger
}

// New returns the routed handler for engine.
func New(engine *authcore.Engine, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &handler{engine: engine, log: log}
	guard := middleware.Guard(engine)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", h.register)
	mux.HandleFunc("POST /auth/google/login", h.googleLogin)
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("GET /auth/refresh", h.refresh)
	mux.HandleFunc("POST /auth/refresh", h.refresh)
	mux.Handle("GET /auth/me", guard(http.HandlerFunc(h.me)))
	mux.Handle("PATCH /auth/me", guard(http.HandlerFunc(h.editMe)))
	mux.Handle("POST /auth/logout", guard(http.HandlerFunc(h.logoutAll)))
	mux.HandleFunc("POST /auth/verify", h.sendVerification)
	mux.HandleFunc("PATCH /auth/verify", h.verify)
	mux.HandleFunc("POST /auth/forgot-password", h.sendForgotPassword)
	mux.HandleFunc("PATCH /auth/forgot-password", h.changePassword)

	client := middleware.ClientContext(middleware.ClientOptions{TrustForwardedFor: opts.TrustForwardedFor})
	return client(h.logRequests(mux))
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var in authcore.RegisterInput
	if !decodeBody(w, r, &in) {
		return
	}
	if _, err := h.engine.Register(r.Context(), in); err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "Registration successful", nil)
}

func (h *handler) googleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	pair, err := h.engine.LoginWithFederatedIdentity(r.Context(), body.AccessToken)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Successfully logged in", pair)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	pair, err := h.engine.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Successfully logged in", pair)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	pair, err := h.engine.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Successfully refreshed tokens", pair)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	user, err := h.engine.GetSelf(r.Context(), claims.UserID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Successfully get current user data", user)
}

func (h *handler) editMe(w http.ResponseWriter, r *http.Request) {
	var in authcore.EditInput
	if !decodeBody(w, r, &in) {
		return
	}
	claims, _ := middleware.ClaimsFromContext(r.Context())
	user, err := h.engine.EditSelf(r.Context(), claims.UserID, in)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Successfully update current user data", user)
}

func (h *handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := h.engine.LogoutAll(r.Context(), claims.UserID); err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Successfully logged out", nil)
}

func (h *handler) sendVerification(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RequestEmailVerification(r.Context(), r.URL.Query().Get("email")); err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Verification email successfully sent", nil)
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := h.engine.ConfirmEmailVerification(r.Context(), q.Get("email"), q.Get("token")); err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Successfully verified", nil)
}

func (h *handler) sendForgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RequestPasswordReset(r.Context(), r.URL.Query().Get("email")); err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Verification email successfully sent", nil)
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var in authcore.PasswordResetInput
	if !decodeBody(w, r, &in) {
		return
	}
	if err := h.engine.ConfirmPasswordReset(r.Context(), in); err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Successfully verified", nil)
}

// decodeBody reads a JSON object into dst. An empty body leaves dst zero
// so field validation reports the missing values.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(w, errBadBody)
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}
