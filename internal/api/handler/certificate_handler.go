package handler

import (
	"html/template"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"

	"github.com/cuongbtq/mintgate/internal/api/dto"
)

// certificateID matches an asset gateway transaction id
var certificateID = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

var certificatePage = template.Must(template.New("certificate").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta property="og:image" content="{{.ImageURL}}">
<meta property="og:title" content="{{.Title}}">
<meta property="og:description" content="{{.Description}}">
{{- if .UIURL}}
<meta property="og:url" content="{{.UIURL}}">
{{- end}}
<meta name="twitter:card" content="summary_large_image">
<meta name="twitter:image" content="{{.ImageURL}}">
</head>
<body>
<img src="{{.ImageURL}}" alt="{{.Title}}">
{{- if .UIURL}}
<script>window.location.replace({{.UIURL}});</script>
{{- end}}
</body>
</html>
`))

// CertificateConfig configures the certificate share page
type CertificateConfig struct {
	CollectionName  string
	AssetGatewayURL string
	// UIURL is where visitors are sent on; empty disables the redirect
	UIURL string
}

type certificateView struct {
	Title       string
	Description string
	ImageURL    string
	UIURL       string
}

// CertificateHandler renders share pages for uploaded certificate images
type CertificateHandler struct {
	cfg CertificateConfig
}

// NewCertificateHandler creates a new CertificateHandler instance
func NewCertificateHandler(cfg *CertificateConfig) *CertificateHandler {
	return &CertificateHandler{cfg: *cfg}
}

// GetCertificate handles GET /certificates/:certificate_id
// Serves a page with link preview tags for the certificate image
func (h *CertificateHandler) GetCertificate(c *gin.Context) {
	id := c.Param("certificate_id")
	if !certificateID.MatchString(id) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not found"})
		return
	}

	name := h.cfg.CollectionName
	if name == "" {
		name = "Collection"
	}

	c.Render(http.StatusOK, render.HTML{
		Template: certificatePage,
		Data: certificateView{
			Title:       name + " Certificate of Adoption",
			Description: "Mint your own " + name + " on the blockchain today!",
			ImageURL:    strings.TrimRight(h.cfg.AssetGatewayURL, "/") + "/" + id + "?ext=png",
			UIURL:       h.cfg.UIURL,
		},
	})
}
