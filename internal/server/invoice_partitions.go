package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	archivedomain "github.com/smallbiznis/scholara/internal/invoicearchive/domain"
)

type createPartitionsRequest struct {
	Year *int `json:"year"`
}

func (s *Server) CreateInvoicePartitions(c *gin.Context) {
	var req createPartitionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Year == nil {
		AbortWithError(c, newValidationError("year", "required", "year is required"))
		return
	}

	if err := s.archiveSvc.CreatePartitions(c.Request.Context(), *req.Year); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"year": *req.Year}})
}

func (s *Server) ListInvoicePartitions(c *gin.Context) {
	partitions, err := s.archiveSvc.GetPartitionInfo(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if partitions == nil {
		partitions = []archivedomain.PartitionInfo{}
	}

	c.JSON(http.StatusOK, gin.H{"data": partitions})
}

// ArchiveInvoices runs one archive pass. An empty body uses the configured policy.
func (s *Server) ArchiveInvoices(c *gin.Context) {
	var override archivedomain.PolicyOverride
	if err := c.ShouldBindJSON(&override); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.archiveSvc.ArchiveOldInvoices(c.Request.Context(), &override)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result.ProcessedPartitions == nil {
		result.ProcessedPartitions = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetArchivingStats(c *gin.Context) {
	stats, err := s.archiveSvc.GetArchivingStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
