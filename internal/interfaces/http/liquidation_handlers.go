package http

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/viaticos/internal/domain/entity"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GetLiquidation handles GET /api/v1/liquidations/:id
func (h *Handlers) GetLiquidation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	liq, err := h.liquidations.Get(c.Request.Context(), id)
	h.respondLiquidation(c, liq, err)
}

// AddComprobante handles POST /api/v1/liquidations/:id/comprobantes
func (h *Handlers) AddComprobante(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var body ComprobanteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, err)
		return
	}

	liq, err := h.liquidations.AddComprobante(c.Request.Context(), id, body.ExpectedVersion, body.input(), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	setETag(c, liq.Version)
	ok(c, http.StatusCreated, toLiquidationResponse(liq))
}

// UpdateComprobante handles PATCH /api/v1/liquidations/:id/comprobantes/:cid
func (h *Handlers) UpdateComprobante(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	cid, err := pathID(c, "cid")
	if err != nil {
		h.fail(c, err)
		return
	}
	var body UpdateComprobanteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, err)
		return
	}

	liq, err := h.liquidations.UpdateComprobante(c.Request.Context(), id, cid, body.ExpectedVersion, body.patch(), actor(c))
	h.respondLiquidation(c, liq, err)
}

// RemoveComprobante handles DELETE /api/v1/liquidations/:id/comprobantes/:cid
func (h *Handlers) RemoveComprobante(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	cid, err := pathID(c, "cid")
	if err != nil {
		h.fail(c, err)
		return
	}
	version, err := ifMatchVersion(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	liq, err := h.liquidations.RemoveComprobante(c.Request.Context(), id, cid, version, actor(c))
	h.respondLiquidation(c, liq, err)
}

// CloseLiquidation handles POST /api/v1/liquidations/:id/close
func (h *Handlers) CloseLiquidation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var body VersionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.liquidations.Close(c.Request.Context(), id, body.ExpectedVersion, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	setETag(c, result.Liquidation.Version)
	ok(c, http.StatusOK, CloseResponse{
		Liquidation: toLiquidationResponse(result.Liquidation),
		Request:     toRequestResponse(result.Request),
	})
}

// ExportReport handles GET /api/v1/liquidations/:id/report.xlsx
func (h *Handlers) ExportReport(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	// Buffered so a failed export still gets a JSON error.
	var buf bytes.Buffer
	if err := h.liquidations.ExportReport(c.Request.Context(), id, &buf); err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="liquidacion-%s.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handlers) respondLiquidation(c *gin.Context, liq *entity.Liquidation, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	setETag(c, liq.Version)
	ok(c, http.StatusOK, toLiquidationResponse(liq))
}
