package inquiry

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/pkg/httputil"
)

type Service interface {
	CreateInquiry(ctx context.Context, req *model.CreateInquiryRequest) (*model.Inquiry, error)
	AnswerInquiry(ctx context.Context, id uuid.UUID, req *model.AnswerInquiryRequest) (*model.Inquiry, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	inquiries := r.Group("/inquiries")
	{
		inquiries.POST("", h.CreateInquiry)
		inquiries.POST("/:id/answer", h.AnswerInquiry)
	}
}

func (h *Handler) CreateInquiry(c *gin.Context) {
	var req model.CreateInquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	inq, err := h.service.CreateInquiry(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, inq)
}

func (h *Handler) AnswerInquiry(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req model.AnswerInquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	inq, err := h.service.AnswerInquiry(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, inq)
}
