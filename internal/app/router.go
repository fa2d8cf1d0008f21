package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kis-gateway/internal/kis"
	"kis-gateway/internal/monitor"
)

const (
	stockBasePath          = "/api/stock"
	recommendationBasePath = "/api/stock-recommendation"

	requestIDHeader  = "X-Request-ID"
	requestIDKey     = "request_id"
	jsonContentType  = "application/json; charset=utf-8"
	defaultEventPage = 200
	maxEventPage     = 1000
)

var (
	errMissingStockCode = errors.New("stockCode 不能为空")
	errMissingCodes     = errors.New("codes 查询参数不能为空")
	errQuoteNotFound    = errors.New("未找到该标的的现价")
	errUnknownEventType = errors.New("未知的事件类型")
)

// Gateway 为券商网关的五个操作。
type Gateway interface {
	PlaceOrder(ctx context.Context, order kis.OrderRequest) (json.RawMessage, error)
	Holdings(ctx context.Context) (kis.Holdings, error)
	Quote(ctx context.Context, code string) (kis.Quote, bool, error)
	TopTraded(ctx context.Context) (json.RawMessage, error)
}

// QuoteBatcher 批量查询现价。
type QuoteBatcher interface {
	Quotes(ctx context.Context, codes []string) ([]kis.Quote, error)
}

// EventLog 为调用审计的读写入口。
type EventLog interface {
	ListEvents(ctx context.Context, eventType monitor.EventType, limit int) ([]monitor.Event, error)
	RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{})
}

// Pinger 用于健康检查。
type Pinger interface {
	Ping(ctx context.Context) error
}

type handler struct {
	gateway Gateway
	quotes  QuoteBatcher
	events  EventLog
	health  Pinger
	logger  *zap.Logger
}

type orderPayload struct {
	StockCode      string `json:"stockCode"`
	InstrumentCode string `json:"instrumentCode"`
	Quantity       int    `json:"quantity" binding:"required,gt=0"`
}

func (p orderPayload) code() string {
	if code := strings.TrimSpace(p.StockCode); code != "" {
		return code
	}
	return strings.TrimSpace(p.InstrumentCode)
}

func newRouter(h *handler) *gin.Engine {
	if h.logger == nil {
		h.logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))

	router.GET("/healthz", h.healthz)
	router.GET("/api/events", h.listEvents)

	stock := router.Group(stockBasePath)
	{
		stock.POST("/buy", h.orderHandler(kis.SideBuy))
		stock.POST("/sell", h.orderHandler(kis.SideSell))
		stock.GET("/my-stocks", h.myStocks)
		stock.GET("/details/:stockCode", h.details)
		stock.GET("/prices", h.prices)
	}

	recommendation := router.Group(recommendationBasePath)
	{
		recommendation.GET("/top-traded", h.topTraded)
	}

	return router
}

func (h *handler) orderHandler(side kis.Side) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload orderPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
		code := payload.code()
		if code == "" {
			writeError(c, http.StatusBadRequest, errMissingStockCode)
			return
		}

		confirmation, err := h.gateway.PlaceOrder(c.Request.Context(), kis.OrderRequest{
			InstrumentCode: code,
			Quantity:       payload.Quantity,
			Side:           side,
		})
		if err != nil {
			h.fail(c, "下单失败", err, zap.String("stock_code", code))
			return
		}
		c.Data(http.StatusOK, jsonContentType, confirmation)
	}
}

func (h *handler) myStocks(c *gin.Context) {
	holdings, err := h.gateway.Holdings(c.Request.Context())
	if err != nil {
		h.fail(c, "持仓查询失败", err)
		return
	}
	c.JSON(http.StatusOK, holdings)
}

func (h *handler) details(c *gin.Context) {
	code := strings.TrimSpace(c.Param("stockCode"))
	if code == "" {
		writeError(c, http.StatusBadRequest, errMissingStockCode)
		return
	}

	quote, found, err := h.gateway.Quote(c.Request.Context(), code)
	if err != nil {
		h.fail(c, "现价查询失败", err, zap.String("stock_code", code))
		return
	}
	if !found {
		writeError(c, http.StatusNotFound, errQuoteNotFound)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *handler) prices(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("codes"))
	if raw == "" {
		writeError(c, http.StatusBadRequest, errMissingCodes)
		return
	}

	quotes, err := h.quotes.Quotes(c.Request.Context(), strings.Split(raw, ","))
	if err != nil {
		h.fail(c, "批量现价查询失败", err)
		return
	}
	c.JSON(http.StatusOK, quotes)
}

func (h *handler) topTraded(c *gin.Context) {
	payload, err := h.gateway.TopTraded(c.Request.Context())
	if err != nil {
		h.fail(c, "成交量排行查询失败", err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, payload)
}

func (h *handler) listEvents(c *gin.Context) {
	limit := defaultEventPage
	if qs := c.Query("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			if v > maxEventPage {
				v = maxEventPage
			}
			limit = v
		}
	}

	eventType := monitor.EventType("")
	if typ := strings.TrimSpace(c.Query("type")); typ != "" {
		eventType = monitor.EventType(strings.ToLower(typ))
		if !eventType.Valid() {
			writeError(c, http.StatusBadRequest, errUnknownEventType)
			return
		}
	}

	events, err := h.events.ListEvents(c.Request.Context(), eventType, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *handler) healthz(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail 记录网关错误并统一返回 500。
func (h *handler) fail(c *gin.Context, msg string, err error, fields ...zap.Field) {
	outcome := kis.Classify(err)
	requestID := c.GetString(requestIDKey)

	fields = append(fields,
		zap.String("route", c.FullPath()),
		zap.String("outcome", string(outcome)),
		zap.String(requestIDKey, requestID),
		zap.Error(err),
	)
	h.logger.Error(msg, fields...)

	if h.events != nil {
		h.events.RecordError(c.Request.Context(), msg, err, map[string]interface{}{
			"route":      c.FullPath(),
			"outcome":    string(outcome),
			"request_id": requestID,
		})
	}

	writeError(c, http.StatusInternalServerError, err)
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// requestLogger 为每个请求分配 request id 并输出访问日志。
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		logger.Info("请求完成",
			zap.String(requestIDKey, requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
