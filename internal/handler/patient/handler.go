package patient

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/pkg/httputil"
)

// Service is the slice of the relationship manager the patient routes need.
type Service interface {
	CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	ListPatients(ctx context.Context) ([]*model.Patient, error)
	UpdatePatient(ctx context.Context, id uuid.UUID, req *model.UpdatePersonRequest) (*model.Patient, error)
	DeletePatient(ctx context.Context, id uuid.UUID) error

	LinkDoctor(ctx context.Context, patientID, doctorID uuid.UUID) error
	UnlinkDoctor(ctx context.Context, patientID, doctorID uuid.UUID) error
	DoctorsOf(ctx context.Context, patientID uuid.UUID) ([]*model.Doctor, error)

	AppointmentsOfPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Appointment, error)
	InquiriesOfPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Inquiry, error)
	GrantRole(ctx context.Context, kind model.PersonKind, personID uuid.UUID, roleName string) (*model.User, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.CreatePatient)
		patients.GET("", h.ListPatients)
		patients.GET("/:id", h.GetPatient)
		patients.PUT("/:id", h.UpdatePatient)
		patients.DELETE("/:id", h.DeletePatient)

		patients.GET("/:id/doctors", h.ListDoctors)
		patients.POST("/:id/doctors/:doctorId", h.LinkDoctor)
		patients.DELETE("/:id/doctors/:doctorId", h.UnlinkDoctor)

		patients.GET("/:id/appointments", h.ListAppointments)
		patients.GET("/:id/inquiries", h.ListInquiries)
		patients.POST("/:id/roles", h.GrantRole)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	p, err := h.service.CreatePatient(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, p)
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}

	p, err := h.service.GetPatient(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, p)
}

func (h *Handler) ListPatients(c *gin.Context) {
	patients, err := h.service.ListPatients(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patients)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req model.UpdatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	p, err := h.service.UpdatePatient(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, p)
}

func (h *Handler) DeletePatient(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeletePatient(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithNoContent(c)
}

func (h *Handler) ListDoctors(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}

	doctors, err := h.service.DoctorsOf(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, doctors)
}

func (h *Handler) LinkDoctor(c *gin.Context) {
	patientID, doctorID, ok := pair(c)
	if !ok {
		return
	}

	if err := h.service.LinkDoctor(c.Request.Context(), patientID, doctorID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithNoContent(c)
}

func (h *Handler) UnlinkDoctor(c *gin.Context) {
	patientID, doctorID, ok := pair(c)
	if !ok {
		return
	}

	if err := h.service.UnlinkDoctor(c.Request.Context(), patientID, doctorID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithNoContent(c)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}

	appointments, err := h.service.AppointmentsOfPatient(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) ListInquiries(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}

	inquiries, err := h.service.InquiriesOfPatient(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, inquiries)
}

func (h *Handler) GrantRole(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req model.GrantRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	user, err := h.service.GrantRole(c.Request.Context(), model.PersonKindPatient, id, req.Role)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, user)
}

func pair(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	patientID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	doctorID, ok := httputil.ParamUUID(c, "doctorId")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return patientID, doctorID, true
}
