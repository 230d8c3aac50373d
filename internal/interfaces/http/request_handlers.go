package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/application/service"
	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/workflow"
)

// CreateRequest handles POST /api/v1/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, err)
		return
	}

	req, err := h.requests.Create(c.Request.Context(), service.CreateRequestInput{
		Header:  body.header(),
		Options: body.Options.toOptions(),
		Actor:   body.RequesterID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	setETag(c, req.Version)
	ok(c, http.StatusCreated, toRequestResponse(req))
}

// ListRequests handles GET /api/v1/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, err)
		return
	}

	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	filter := port.RequestFilter{
		State:       workflow.State(q.State),
		RequesterID: q.RequesterID,
		ApproverID:  q.ApproverID,
		Limit:       q.Limit,
		Offset:      q.Offset,
	}
	reqs, total, err := h.requests.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]RequestResponse, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, toRequestResponse(req))
	}
	ok(c, http.StatusOK, ListResponse{Items: items, Total: total, Limit: q.Limit, Offset: q.Offset})
}

// GetRequest handles GET /api/v1/requests/:id; the snapshot includes history
func (h *Handlers) GetRequest(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	req, err := h.requests.Get(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	history, err := h.requests.History(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := toRequestResponse(req)
	resp.History = history
	setETag(c, req.Version)
	ok(c, http.StatusOK, resp)
}

// UpdateHeader handles PATCH /api/v1/requests/:id
func (h *Handlers) UpdateHeader(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var body UpdateHeaderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, err)
		return
	}

	req, err := h.requests.UpdateHeader(c.Request.Context(), id, body.ExpectedVersion, body.patch(), actor(c))
	h.respondRequest(c, req, err)
}

// UpdateItem handles PATCH /api/v1/requests/:id/items/:itemId
func (h *Handlers) UpdateItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		h.fail(c, err)
		return
	}
	var body UpdateItemBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, err)
		return
	}

	req, err := h.requests.UpdateItem(c.Request.Context(), id, itemID, body.ExpectedVersion, body.patch(), actor(c))
	h.respondRequest(c, req, err)
}

// RemoveItem handles DELETE /api/v1/requests/:id/items/:itemId
func (h *Handlers) RemoveItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		h.fail(c, err)
		return
	}
	version, err := ifMatchVersion(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	req, err := h.requests.RemoveItem(c.Request.Context(), id, itemID, version, actor(c))
	h.respondRequest(c, req, err)
}

// SubmitRequest handles POST /api/v1/requests/:id/submit
func (h *Handlers) SubmitRequest(c *gin.Context) {
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

	req, err := h.requests.Submit(c.Request.Context(), id, body.ExpectedVersion, actor(c))
	h.respondRequest(c, req, err)
}

// DecideRequest handles POST /api/v1/requests/:id/decision
func (h *Handlers) DecideRequest(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var body DecisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.approvals.Decide(c.Request.Context(), id, service.Decision{
		Approve:          body.Decision == "approve",
		AuthorizedAmount: body.AuthorizedAmount,
		Reason:           body.Reason,
		DecidedBy:        body.DecidedBy,
		ExpectedVersion:  body.ExpectedVersion,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := DecisionResponse{Request: toRequestResponse(result.Request)}
	if result.Liquidation != nil {
		liq := toLiquidationResponse(result.Liquidation)
		resp.Liquidation = &liq
	}
	setETag(c, result.Request.Version)
	ok(c, http.StatusOK, resp)
}

// OpenLiquidation handles POST /api/v1/requests/:id/liquidation.
// Opening twice returns the existing liquidation.
func (h *Handlers) OpenLiquidation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	liq, err := h.liquidations.Open(c.Request.Context(), id, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	setETag(c, liq.Version)
	ok(c, http.StatusOK, toLiquidationResponse(liq))
}

func (h *Handlers) respondRequest(c *gin.Context, req *entity.Request, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	setETag(c, req.Version)
	ok(c, http.StatusOK, toRequestResponse(req))
}
