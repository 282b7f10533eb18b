package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/go-authgate/qbo-bridge/extract"
	"github.com/go-authgate/qbo-bridge/qbo"
)

func (s *Server) billFromOCR(c *gin.Context) {
	var inv qbo.InvoiceIn
	if err := c.ShouldBindJSON(&inv); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	out, err := s.deps.Bills.FromInvoice(c.Request.Context(), &inv, false)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type processPDFRequest struct {
	PDFURL      string `json:"pdf_url"`
	URL         string `json:"url"`
	PDFURLCamel string `json:"pdfUrl"`
}

func (r processPDFRequest) documentURL() string {
	for _, u := range []string{r.PDFURL, r.URL, r.PDFURLCamel} {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

type processPDFResponse struct {
	*qbo.InvoiceProcessed
	Invoice *qbo.InvoiceIn `json:"invoice"`
}

// billFromPDF sends a document through extraction and books the result,
// creating the vendor when it does not exist yet.
func (s *Server) billFromPDF(c *gin.Context) {
	if s.deps.Extractor == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"detail": extractionOffDetail})
		return
	}

	var req processPDFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	docURL := req.documentURL()
	if docURL == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "pdf_url is required"})
		return
	}

	ctx := c.Request.Context()
	resp, err := s.deps.Extractor.Process(ctx, docURL)
	if err != nil {
		abortWithError(c, err)
		return
	}

	inv := extract.ToInvoice(resp, docURL)
	if inv.VendorName == "" {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"detail":  "no vendor name found in the extracted document",
			"invoice": inv,
		})
		return
	}

	out, err := s.deps.Bills.FromInvoice(ctx, inv, true)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, processPDFResponse{InvoiceProcessed: out, Invoice: inv})
}
