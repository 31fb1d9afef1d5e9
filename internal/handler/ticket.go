package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-queue/internal/errs"
	"github.com/psds-microservice/ticket-queue/internal/kafka"
	"github.com/psds-microservice/ticket-queue/internal/service"
	"go.uber.org/zap"
)

const operationFailed = "operation failed"

type TicketHandler struct {
	svc                service.TicketServicer
	events             kafka.EventProducer
	defaultServiceType string
	log                *zap.Logger
}

func NewTicketHandler(svc service.TicketServicer, events kafka.EventProducer, defaultServiceType string, log *zap.Logger) *TicketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TicketHandler{svc: svc, events: events, defaultServiceType: defaultServiceType, log: log}
}

// fail отвечает 500, не раскрывая детали хранилища.
func (h *TicketHandler) fail(c *gin.Context, op string, err error) {
	h.log.Error(op+" failed", zap.Error(err), zap.String("request_id", RequestID(c)))
	c.JSON(http.StatusInternalServerError, gin.H{"error": operationFailed})
}

// publish — fire-and-forget: событие не отменяется вместе с запросом.
func (h *TicketHandler) publish(c *gin.Context, event string, payload map[string]interface{}) {
	if h.events == nil {
		return
	}
	h.events.ProduceEvent(context.WithoutCancel(c.Request.Context()), event, payload)
}

func (h *TicketHandler) StartDay(c *gin.Context) {
	res, err := h.svc.StartDay(c.Request.Context())
	if err != nil {
		h.fail(c, "start day", err)
		return
	}
	h.publish(c, kafka.EventDayStarted, map[string]interface{}{"day": res.Day})
	c.JSON(http.StatusOK, res)
}

func (h *TicketHandler) EndDay(c *gin.Context) {
	res, err := h.svc.EndDay(c.Request.Context())
	if err != nil {
		h.fail(c, "end day", err)
		return
	}
	h.publish(c, kafka.EventDayEnded, map[string]interface{}{"day": res.Day})
	c.JSON(http.StatusOK, res)
}

type takeTicketRequest struct {
	ServiceType string `json:"service_type"`
}

// Take принимает пустое тело; тогда service_type берётся из конфига.
func (h *TicketHandler) Take(c *gin.Context) {
	var req takeTicketRequest
	if c.Request.Body != nil {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	if req.ServiceType == "" {
		req.ServiceType = h.defaultServiceType
	}
	res, err := h.svc.Take(c.Request.Context(), req.ServiceType)
	if err != nil {
		h.fail(c, "take ticket", err)
		return
	}
	if res.Closed {
		c.JSON(http.StatusOK, gin.H{"closed": true, "message": res.Message})
		return
	}
	h.publish(c, kafka.EventTicketTaken, map[string]interface{}{
		"day":           res.Day,
		"ticket_number": res.Ticket.Number,
		"service_type":  res.Ticket.ServiceType,
	})
	c.JSON(http.StatusCreated, res)
}

func (h *TicketHandler) Status(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context())
	if err != nil {
		h.fail(c, "status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *TicketHandler) CallNext(c *gin.Context) {
	res, err := h.svc.CallNext(c.Request.Context())
	if err != nil {
		h.fail(c, "call next", err)
		return
	}
	if res.Called {
		h.publish(c, kafka.EventTicketCalled, map[string]interface{}{"ticket_number": *res.CurrentTicket})
	}
	c.JSON(http.StatusOK, res)
}

func (h *TicketHandler) FinishCurrent(c *gin.Context) {
	res, err := h.svc.FinishCurrent(c.Request.Context())
	if err != nil {
		h.fail(c, "finish current", err)
		return
	}
	if res.Finished {
		h.publish(c, kafka.EventTicketFinished, map[string]interface{}{"ticket_number": *res.FinishedTicket})
	}
	c.JSON(http.StatusOK, res)
}

func (h *TicketHandler) Snapshot(c *gin.Context) {
	snap, err := h.svc.Snapshot(c.Request.Context())
	if err != nil {
		h.fail(c, "snapshot", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *TicketHandler) Get(c *gin.Context) {
	number, err := strconv.ParseInt(c.Param("number"), 10, 64)
	if err != nil || number < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket number"})
		return
	}
	t, err := h.svc.GetTicket(c.Request.Context(), number)
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		h.fail(c, "get ticket", err)
		return
	}
	c.JSON(http.StatusOK, t)
}
