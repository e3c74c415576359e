package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/gateway"
)

// Server — HTTP API витрины поверх reconciliation-движка.
type Server struct {
	engine *checkout.Engine
	logger *log.Entry
	router *gin.Engine
}

// NewServer создаёт HTTP-сервер и регистрирует маршруты.
func NewServer(engine *checkout.Engine, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("component", "http")
	}

	gin.SetMode(gin.ReleaseMode)
	registerValidationsOnce.Do(registerValidations)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		logger: logger,
		router: router,
	}
	s.registerRoutes()
	return s
}

// Handler возвращает корневой http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run поднимает сервер и останавливает его при отмене ctx.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("HTTP API слушает %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Warn("http shutdown with error")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api/v1")

	// Server-to-server нотификация redirect-шлюза: без identity-заголовков,
	// подпись проверяется внутри движка.
	api.POST("/payments/redirect/notify", s.handleRedirectNotify)

	authed := api.Group("")
	authed.Use(authRequired())
	{
		authed.POST("/orders", s.handleCreateOrder)
		authed.GET("/orders", s.handleListOrders)
		authed.GET("/orders/:id", s.handleGetOrder)
		authed.GET("/orders/:id/payment", s.handleGetPaymentStatus)
		authed.POST("/orders/:id/payment/card/intent", s.handleCreateCardIntent)
		authed.POST("/orders/:id/payment/card/confirm", s.handleConfirmCardPayment)
		authed.POST("/orders/:id/payment/redirect", s.handleInitiateRedirect)
		authed.POST("/orders/:id/payment/cancel", s.handleCancelPendingPayment)
		authed.POST("/orders/:id/cancel", s.handleCustomerCancel)
	}

	admin := api.Group("/admin")
	admin.Use(authRequired(), adminRequired())
	{
		admin.POST("/orders/:id/status", s.handleAdminTransition)
	}
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	order, err := s.engine.CreateOrder(c.Request.Context(), principalFrom(c), req.toEngine())
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, apiResponse{Success: true, Data: toOrderResponse(order)})
}

func (s *Server) handleListOrders(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.badRequest(c, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	orders, err := s.engine.ListOrders(c.Request.Context(), principalFrom(c), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}

	result := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResponse(order))
	}
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: result})
}

func (s *Server) handleGetOrder(c *gin.Context) {
	order, err := s.engine.GetOrder(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: toOrderResponse(order)})
}

func (s *Server) handleGetPaymentStatus(c *gin.Context) {
	view, err := s.engine.GetPaymentStatus(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: toPaymentStatusResponse(view)})
}

func (s *Server) handleCreateCardIntent(c *gin.Context) {
	init, err := s.engine.CreateCardIntent(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: toInitiationResponse(init)})
}

func (s *Server) handleConfirmCardPayment(c *gin.Context) {
	var req confirmCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	order, err := s.engine.ConfirmCardPayment(c.Request.Context(), principalFrom(c), c.Param("id"), req.IntentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: toOrderResponse(order)})
}

func (s *Server) handleInitiateRedirect(c *gin.Context) {
	init, err := s.engine.InitiateRedirect(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: toInitiationResponse(init)})
}

func (s *Server) handleCancelPendingPayment(c *gin.Context) {
	order, err := s.engine.CancelPendingPayment(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: toOrderResponse(order)})
}

func (s *Server) handleCustomerCancel(c *gin.Context) {
	order, err := s.engine.CustomerCancel(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: toOrderResponse(order)})
}

func (s *Server) handleAdminTransition(c *gin.Context) {
	var req adminStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	order, err := s.engine.AdminTransition(c.Request.Context(), principalFrom(c), c.Param("id"), domain.OrderStatus(req.Status))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: toOrderResponse(order)})
}

// handleRedirectNotify принимает form-encoded нотификацию шлюза. Ответ всегда
// 200 OK: шлюз ретраит любые другие коды, а исход сверки он не интерпретирует.
func (s *Server) handleRedirectNotify(c *gin.Context) {
	notification := &gateway.RedirectNotification{
		MerchantID:     c.PostForm("merchant_id"),
		OrderID:        c.PostForm("order_id"),
		Amount:         c.PostForm("amount"),
		Currency:       c.PostForm("currency"),
		StatusCode:     c.PostForm("status_code"),
		Signature:      c.PostForm("md5sig"),
		Method:         c.PostForm("method"),
		StatusMessage:  c.PostForm("status_message"),
		CardHolderName: c.PostForm("card_holder_name"),
		CardNo:         c.PostForm("card_no"),
	}

	if err := s.engine.HandleRedirectNotification(c.Request.Context(), notification); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": notification.OrderID,
			"reason":   string(domain.ReasonOf(err)),
		}).Warn("redirect notification rejected")
	}

	c.String(http.StatusOK, "OK")
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, apiResponse{
		Success: false,
		Code:    string(domain.ReasonValidation),
		Message: err.Error(),
	})
}

func (s *Server) writeError(c *gin.Context, err error) {
	reason := domain.ReasonOf(err)
	status := statusFromReason(reason)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed")
	}

	response := apiResponse{
		Success: false,
		Code:    string(reason),
		Message: err.Error(),
	}

	// Отказ по минимальной сумме не тупиковый: клиенту отдаются методы,
	// которыми заказ на эту сумму всё ещё можно оплатить.
	var belowMin *domain.AmountBelowMinimumError
	if errors.As(err, &belowMin) {
		response.Data = gin.H{
			"min_amount_minor":  belowMin.MinAmountMinor,
			"suggested_methods": belowMin.SuggestedMethods,
		}
	}

	c.JSON(status, response)
}

func statusFromReason(reason domain.Reason) int {
	switch reason {
	case domain.ReasonValidation, domain.ReasonIntegrity:
		return http.StatusBadRequest
	case domain.ReasonNotFound:
		return http.StatusNotFound
	case domain.ReasonAccessDenied:
		return http.StatusForbidden
	case domain.ReasonConflict:
		return http.StatusConflict
	case domain.ReasonUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
