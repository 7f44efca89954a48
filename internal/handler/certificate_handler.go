package handler

import (
	"net/http"

	"adcert/internal/middleware"
	"adcert/internal/model"
	"adcert/internal/service"
	"adcert/pkg/response"

	"github.com/gin-gonic/gin"
)

type CertificateHandler struct {
	certificateService service.CertificateService
}

func NewCertificateHandler(certificateService service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificateService: certificateService}
}

func (h *CertificateHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Public: anyone holding a printed certificate may check it.
	router.GET("/api/verify/:number", h.Verify)

	certificates := router.Group("/api/certificates")
	certificates.Use(middleware.RequireRole(model.RoleAdmin))
	{
		certificates.PUT("/:number/revoke", h.Revoke)
	}
}

// Verify classifies a certificate number as VALID, EXPIRED or INVALID
// @Summary      Verify certificate
// @Description  Public lookup. Unknown numbers return INVALID with no details.
// @Tags         certificates
// @Produce      json
// @Param        number  path      string  true  "Certificate number, e.g. ARCON-2024-000123"
// @Success      200     {object}  response.Response{data=service.VerificationResult}
// @Failure      500     {object}  response.Response
// @Router       /api/verify/{number} [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.certificateService.Verify(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Revoke deactivates a certificate
// @Summary      Revoke certificate
// @Tags         certificates
// @Security     BearerAuth
// @Produce      json
// @Param        number  path      string  true  "Certificate number"
// @Success      200     {object}  response.Response{data=service.CertificateResponse}
// @Failure      403     {object}  response.Response
// @Failure      404     {object}  response.Response
// @Router       /api/certificates/{number}/revoke [put]
func (h *CertificateHandler) Revoke(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	cert, err := h.certificateService.Revoke(c.Request.Context(), userID, c.Param("number"))
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, cert))
}
