package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nixxel-company-limited/escpos-receipt-server/escpos"
	"github.com/nixxel-company-limited/escpos-receipt-server/job"
)

const serviceName = "escpos-receipt-server"

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	JobID   string `json:"jobId,omitempty"`
}

type PrinterInfo struct {
	ID        int    `json:"id"`
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
}

type PrintersResponse struct {
	Success  bool          `json:"success"`
	Printers []PrinterInfo `json:"printers"`
	Message  string        `json:"message,omitempty"`
}

type PrintRequest struct {
	Content   *escpos.Receipt `json:"content"`
	PrinterID *int            `json:"printerId"`
}

type HealthResponse struct {
	Status  string    `json:"status"`
	Service string    `json:"service"`
	Time    time.Time `json:"time"`
}

// StatusFor maps a failure kind to an HTTP status
func StatusFor(kind job.Kind) int {
	switch kind {
	case job.KindNoContent:
		return http.StatusBadRequest
	case job.KindNoPrintersFound, job.KindPrinterNotFound:
		return http.StatusNotFound
	case job.KindOpenFailed:
		return http.StatusServiceUnavailable
	case job.KindTransferFailed, job.KindCloseFailed:
		return http.StatusBadGateway
	case job.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: serviceName,
		Time:    time.Now().UTC(),
	})
}

func (s *Server) handlePrinters(c *gin.Context) {
	devices, err := s.service.Printers()
	if err != nil {
		s.logger.Printf("Error listing printers: %v", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: err.Error()})
		return
	}

	printers := make([]PrinterInfo, 0, len(devices))
	for _, d := range devices {
		printers = append(printers, PrinterInfo{ID: d.Index, VendorID: d.VendorID, ProductID: d.ProductID})
	}

	resp := PrintersResponse{Success: true, Printers: printers}
	if len(printers) == 0 {
		resp.Message = "No USB printers found"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePrint(c *gin.Context) {
	var req PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "Invalid request body: " + err.Error()})
		return
	}

	printJob, err := s.service.Print(c.Request.Context(), req.Content, req.PrinterID)
	if err != nil {
		c.JSON(StatusFor(job.KindOf(err)), Response{Success: false, Error: err.Error(), JobID: jobID(printJob)})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Print job sent successfully",
		JobID:   jobID(printJob),
	})
}

func jobID(j *job.PrintJob) string {
	if j == nil {
		return ""
	}
	return j.ID
}
