package contact

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/pkg/errors"
	"github.com/jwalitptl/carelink/pkg/httputil"
)

type Service interface {
	SubmitContact(ctx context.Context, req *model.ContactRequest) error
	FindPersonByEmail(ctx context.Context, email string) (model.Person, error)
}

// Handler serves the unauthenticated surface: the contact form and the
// email lookup used by sign-in flows.
type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/contact", h.SubmitContact)
	r.GET("/people", h.FindByEmail)
}

func (h *Handler) SubmitContact(c *gin.Context) {
	var req model.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	if err := h.service.SubmitContact(c.Request.Context(), &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, httputil.Response{Success: true})
}

type personView struct {
	Kind   model.PersonKind `json:"kind"`
	Person model.Person     `json:"person"`
}

func (h *Handler) FindByEmail(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		httputil.RespondWithError(c, errors.InvalidInput("email query parameter is required", nil))
		return
	}

	p, err := h.service.FindPersonByEmail(c.Request.Context(), email)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, personView{Kind: p.Kind(), Person: p})
}
