package httputil

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jwalitptl/carelink/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError names one request field that failed binding.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
}

// StatusOf maps the error taxonomy onto HTTP.
func StatusOf(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrConflict:
		return http.StatusConflict
	case errors.ErrInvalidInput:
		return http.StatusBadRequest
	case errors.ErrTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func RespondWithNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// RespondWithError sends an error response. Internal errors are masked and
// attached to the context so the logger middleware records the cause.
func RespondWithError(c *gin.Context, err error) {
	status := StatusOf(err)
	body := &Error{Code: errors.CodeOf(err).String()}

	var appErr *errors.AppError
	switch {
	case status == http.StatusInternalServerError:
		body.Message = "internal server error"
		_ = c.Error(err)
	case stderrors.As(err, &appErr):
		body.Message = appErr.Message
	default:
		body.Message = err.Error()
	}

	c.AbortWithStatusJSON(status, Response{Success: false, Error: body})
}

// RespondWithBindError reports a ShouldBind failure as invalid input, listing
// the offending fields when the validator produced them.
func RespondWithBindError(c *gin.Context, err error) {
	body := &Error{
		Code:    errors.ErrInvalidInput.String(),
		Message: "invalid request body",
	}

	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		for _, fe := range verrs {
			body.Fields = append(body.Fields, FieldError{Field: fe.Field(), Tag: fe.Tag()})
		}
	} else {
		body.Message = err.Error()
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, Response{Success: false, Error: body})
}

// ParamUUID parses a path parameter, answering 400 when it is not a UUID.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondWithError(c, errors.InvalidInput("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}
