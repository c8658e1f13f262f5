// auth.go — обработчики /api/v1/auth endpoints.
// Вход по номеру документа, регистрация не-членов, текущий аккаунт,
// выход и смена пароля.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/memberbridge/internal/api/errors"
	"github.com/bigkaa/memberbridge/internal/api/middleware"
	"github.com/bigkaa/memberbridge/internal/domain/model"
	"github.com/bigkaa/memberbridge/internal/service"
)

// Login — POST /api/v1/auth/login.
// 201 — аккаунт создан из реестра или справочника, 200 — вход локального аккаунта.
// Неизвестный номер и неверный пароль неразличимы для клиента.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	result, err := h.resolver.ResolveLogin(r.Context(), req.NationalID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrInvalidCredential), errors.Is(err, service.ErrNotFound):
			apierrors.InvalidCredentials(w)
		case errors.Is(err, service.ErrUpstreamUnavailable):
			h.logger.Warn("Справочник недоступен при входе", slog.String("error", err.Error()))
			apierrors.UpstreamUnavailable(w, "Справочник членов клуба временно недоступен, повторите попытку позже")
		case errors.Is(err, service.ErrConflict):
			apierrors.Conflict(w, "Аккаунт с такими данными уже существует")
		default:
			h.logger.Error("Ошибка входа", slog.String("error", err.Error()))
			apierrors.InternalError(w, "Ошибка входа")
		}
		return
	}

	status := http.StatusOK
	if result.Source != model.SourceLocal {
		status = http.StatusCreated
	}
	h.writeSession(w, status, result.Account, result.Source, result.RosterFound)
}

// Register — POST /api/v1/auth/register.
// Регистрирует не-члена клуба и сразу выдаёт токен сессии.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	acc, err := h.accounts.Register(r.Context(), service.RegisterInput{
		NationalID:           req.NationalID,
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrConflict):
			apierrors.Conflict(w, err.Error())
		default:
			h.logger.Error("Ошибка регистрации", slog.String("error", err.Error()))
			apierrors.InternalError(w, "Ошибка регистрации")
		}
		return
	}

	h.writeSession(w, http.StatusCreated, acc, model.SourceRegister, false)
}

// GetCurrentAccount — GET /api/v1/auth/me.
func (h *APIHandler) GetCurrentAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.currentAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(acc))
}

// Logout — POST /api/v1/auth/logout.
// Отзывает предъявленный токен до истечения его срока.
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.SessionFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия в контексте")
		return
	}

	if err := h.sessions.Revoke(r.Context(), claims); err != nil {
		h.logger.Error("Ошибка отзыва токена",
			slog.String("account_id", claims.Subject),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка выхода")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword — POST /api/v1/auth/change-password.
func (h *APIHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := middleware.SessionFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия в контексте")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	err := h.accounts.ChangePassword(r.Context(), claims.Subject,
		req.CurrentPassword, req.NewPassword, req.NewPasswordConfirmation)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrInvalidCredential):
			apierrors.ValidationError(w, "Текущий пароль неверен")
		case errors.Is(err, service.ErrNotFound):
			apierrors.Unauthorized(w, "Аккаунт не найден")
		default:
			h.logger.Error("Ошибка смены пароля",
				slog.String("account_id", claims.Subject),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Ошибка смены пароля")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// currentAccount загружает аккаунт владельца сессии.
// При ошибке ответ уже записан.
func (h *APIHandler) currentAccount(w http.ResponseWriter, r *http.Request) (*model.Account, bool) {
	claims := middleware.SessionFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия в контексте")
		return nil, false
	}

	acc, err := h.accounts.Get(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.Unauthorized(w, "Аккаунт не найден")
			return nil, false
		}
		h.logger.Error("Ошибка получения аккаунта",
			slog.String("account_id", claims.Subject),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка получения аккаунта")
		return nil, false
	}
	return acc, true
}

// writeSession выпускает токен сессии и записывает ответ.
func (h *APIHandler) writeSession(w http.ResponseWriter, status int, acc *model.Account, source model.LoginSource, rosterFound bool) {
	token, expiresAt, err := h.sessions.Issue(acc.ID, acc.NationalID)
	if err != nil {
		h.logger.Error("Ошибка выпуска токена сессии",
			slog.String("account_id", acc.ID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка выпуска токена")
		return
	}

	writeJSON(w, status, sessionResponse{
		Token:       token,
		ExpiresAt:   expiresAt,
		Account:     mapAccount(acc),
		Source:      string(source),
		RosterFound: rosterFound,
	})
}
