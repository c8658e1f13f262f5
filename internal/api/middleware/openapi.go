package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	apierrors "github.com/bigkaa/memberbridge/internal/api/errors"
)

// OpenAPIValidator возвращает middleware, проверяющий запросы по контракту.
// Пути и методы, отсутствующие в контракте, пропускаются дальше без проверки.
// Аутентификацию выполняют SessionAuth и JWTAuth, поэтому схемы security
// здесь не проверяются.
func OpenAPIValidator(doc *openapi3.T, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("создание OpenAPI-маршрутизатора: %w", err)
	}
	logger = logger.With(slog.String("component", "openapi_validator"))

	opts := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if !errors.Is(err, routers.ErrPathNotFound) && !errors.Is(err, routers.ErrMethodNotAllowed) {
					logger.Warn("Ошибка поиска маршрута", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    opts,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				apierrors.ValidationError(w, validationMessage(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

// validationMessage формирует краткое сообщение об ошибке валидации.
func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		reason := reqErr.Reason
		var schemaErr *openapi3.SchemaError
		if errors.As(reqErr.Err, &schemaErr) {
			reason = schemaErr.Reason
			if field := schemaErr.JSONPointer(); len(field) > 0 && reqErr.Parameter == nil {
				return fmt.Sprintf("Поле %s: %s", field[len(field)-1], reason)
			}
		}
		if reqErr.Parameter != nil {
			return fmt.Sprintf("Параметр %s: %s", reqErr.Parameter.Name, reason)
		}
		if reason != "" {
			return reason
		}
	}
	return "Запрос не соответствует контракту: " + err.Error()
}
