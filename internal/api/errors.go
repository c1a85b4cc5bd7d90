package api

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/profile"
)

// AppError is an error with the HTTP status it should be reported with.
type AppError struct {
	Code    int
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError builds an AppError.
func NewAppError(code int, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// classify maps domain errors to an AppError.
func classify(err error) *AppError {
	var app *AppError
	if errors.As(err, &app) {
		return app
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return NewAppError(fe.Code, fe.Message, nil)
	}
	var unknown *profile.UnknownError
	switch {
	case errors.As(err, &unknown):
		return NewAppError(fiber.StatusNotFound, unknown.Error(), nil)
	case errors.Is(err, extractor.ErrFileTooLarge):
		return NewAppError(fiber.StatusRequestEntityTooLarge, err.Error(), nil)
	case errors.Is(err, extractor.ErrUnsupportedFormat):
		return NewAppError(fiber.StatusUnsupportedMediaType, err.Error(), nil)
	}
	return NewAppError(fiber.StatusInternalServerError, "internal server error", err)
}

// errorHandler renders every error as {"success":false,"error":...}.
func errorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		app := classify(err)
		if app.Code >= fiber.StatusInternalServerError {
			log.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		}
		return c.Status(app.Code).JSON(ErrorResponse{Success: false, Error: app.Message})
	}
}
