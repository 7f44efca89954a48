package handler

import (
	"net/http"

	"adcert/internal/middleware"
	"adcert/internal/model"
	"adcert/internal/service"
	"adcert/pkg/response"

	"github.com/gin-gonic/gin"
)

type SubmissionHandler struct {
	submissionService  service.SubmissionService
	certificateService service.CertificateService
}

func NewSubmissionHandler(submissionService service.SubmissionService, certificateService service.CertificateService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService, certificateService: certificateService}
}

func (h *SubmissionHandler) RegisterRoutes(router *gin.RouterGroup) {
	submissions := router.Group("/api/submissions")
	{
		submissions.POST("", middleware.RequireRole(model.RoleAdvertiser), h.CreateSubmission)
		submissions.GET("", middleware.Authenticated(), h.ListSubmissions)
		submissions.GET("/:id", middleware.Authenticated(), h.GetSubmission)
		submissions.PUT("/:id/status", middleware.RequireRole(model.RoleReviewer, model.RoleAdmin), h.TransitionSubmission)
		submissions.GET("/:id/comments", middleware.Authenticated(), h.ListComments)
		submissions.GET("/:id/certificate", middleware.Authenticated(), h.GetCertificate)
		submissions.POST("/:id/certificate", middleware.RequireRole(model.RoleAdmin), h.RetryCertificate)
	}
}

// CreateSubmission stores a new campaign for review
// @Summary      Create submission
// @Description  Creates a campaign submission in pending status for the calling advertiser
// @Tags         submissions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateSubmissionRequest  true  "Submission Payload"
// @Success      201      {object}  response.Response{data=service.SubmissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/submissions [post]
func (h *SubmissionHandler) CreateSubmission(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	var req service.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	sub, err := h.submissionService.CreateSubmission(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, sub))
}

// ListSubmissions returns the submissions visible to the caller
// @Summary      List submissions
// @Description  Advertisers see their own submissions; reviewers and admins see all. Most recent first.
// @Tags         submissions
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "Filter by status (pending, under_review, approved, rejected, requires_changes)"
// @Success      200     {object}  response.Response{data=[]service.SubmissionResponse}
// @Failure      400     {object}  response.Response
// @Router       /api/submissions [get]
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	subs, err := h.submissionService.ListSubmissions(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, subs))
}

// GetSubmission fetches one submission
// @Summary      Get submission
// @Tags         submissions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.SubmissionResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/submissions/{id} [get]
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	sub, err := h.submissionService.GetSubmission(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, sub))
}

// TransitionSubmission moves a submission through review
// @Summary      Transition submission
// @Description  Changes the review status, optionally recording a comment. Approval issues the certificate.
// @Description  A 503 with code CERTIFICATE_ISSUANCE_FAILED still carries the approved submission in data.
// @Tags         submissions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Submission ID"
// @Param        payload  body      service.TransitionRequest  true  "Transition Payload"
// @Success      200      {object}  response.Response{data=service.TransitionResult}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      503      {object}  response.Response{data=service.TransitionResult}
// @Router       /api/submissions/{id}/status [put]
func (h *SubmissionHandler) TransitionSubmission(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	var req service.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.submissionService.Transition(c.Request.Context(), c.Param("id"), userID, req)
	if err != nil {
		// result is non-nil when the status change committed but issuance failed
		if result != nil {
			respondError(c, err, result)
			return
		}
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ListComments returns review comments; internal ones only for staff
// @Summary      List comments
// @Tags         submissions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=[]service.CommentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/submissions/{id}/comments [get]
func (h *SubmissionHandler) ListComments(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	comments, err := h.submissionService.ListComments(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, comments))
}

// GetCertificate returns the certificate of an approved submission
// @Summary      Get submission certificate
// @Tags         certificates
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.CertificateResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/submissions/{id}/certificate [get]
func (h *SubmissionHandler) GetCertificate(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	cert, err := h.certificateService.GetForSubmission(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, cert))
}

// RetryCertificate re-runs issuance for an approved submission without a certificate
// @Summary      Retry certificate issuance
// @Tags         certificates
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Submission ID"
// @Success      201  {object}  response.Response{data=service.CertificateResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /api/submissions/{id}/certificate [post]
func (h *SubmissionHandler) RetryCertificate(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	cert, err := h.certificateService.RetryIssuance(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, cert))
}
