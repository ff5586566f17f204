package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gamekey-store/internal/auth"
	"gamekey-store/internal/checkout"
	"gamekey-store/internal/database"
)

// handleHealth reports service and database health
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleListProducts returns the storefront catalog with stock counts
func (s *Server) handleListProducts(c *gin.Context) {
	views, err := s.catalog.Listing(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build product listing")
		errorResponse(c, http.StatusInternalServerError, "failed to load products")
		return
	}
	successResponse(c, views)
}

// handleGetProduct returns one product by slug
func (s *Server) handleGetProduct(c *gin.Context) {
	view, err := s.catalog.Product(c.Request.Context(), c.Param("slug"))
	if errors.Is(err, database.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("slug", c.Param("slug")).Msg("failed to load product")
		errorResponse(c, http.StatusInternalServerError, "failed to load product")
		return
	}
	successResponse(c, view)
}

// handleStatusPage returns the public detection status board: every product
// with its status badge, no prices or stock.
func (s *Server) handleStatusPage(c *gin.Context) {
	views, err := s.catalog.Listing(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build status page")
		errorResponse(c, http.StatusInternalServerError, "failed to load status")
		return
	}
	rows := make([]gin.H, 0, len(views))
	for _, v := range views {
		rows = append(rows, gin.H{
			"slug":         v.Slug,
			"name":         v.Name,
			"game":         v.Game,
			"status":       v.Status,
			"status_label": v.StatusLabel,
		})
	}
	successResponse(c, rows)
}

// handleValidateCoupon checks a discount code against a subtotal
func (s *Server) handleValidateCoupon(c *gin.Context) {
	var req struct {
		Code          string `json:"code" binding:"required"`
		SubtotalCents int64  `json:"subtotal_cents"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "code is required")
		return
	}
	result, err := s.coupons.Validate(c.Request.Context(), req.Code, req.SubtotalCents)
	if err != nil {
		s.logger.Error().Err(err).Msg("coupon validation failed")
		errorResponse(c, http.StatusInternalServerError, "failed to validate coupon")
		return
	}
	successResponse(c, result)
}

// handleCreateCheckout creates a pending order and a provider checkout
// session, returning the hosted payment URL.
func (s *Server) handleCreateCheckout(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid checkout request")
		return
	}

	result, err := s.checkout.Start(c.Request.Context(), &req)
	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrUnknownVariant),
		errors.Is(err, checkout.ErrBadQuantity):
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("checkout failed")
		errorResponse(c, http.StatusBadGateway, "failed to start checkout")
		return
	}
	successResponse(c, result)
}

// handleLegacyCreateCheckout is the old storefront checkout route. Same
// pipeline, different response shape: the old client expects camelCase keys
// without the success envelope.
func (s *Server) handleLegacyCreateCheckout(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid checkout request")
		return
	}

	result, err := s.checkout.Start(c.Request.Context(), &req)
	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrUnknownVariant),
		errors.Is(err, checkout.ErrBadQuantity):
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("checkout failed")
		errorResponse(c, http.StatusBadGateway, "failed to start checkout")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderId":     result.OrderID,
		"checkoutUrl": result.CheckoutURL,
	})
}

// sessionStatusResponse answers the payment status polling endpoints
func sessionStatusResponse(c *gin.Context, cs *database.CheckoutSession) {
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"paid":           cs.Status == database.SessionCompleted,
		"status":         cs.Status,
		"amount_cents":   cs.AmountCents,
		"currency":       cs.Currency,
		"paid_at":        cs.PaidAt,
		"customer_email": cs.CustomerEmail,
	})
}

// handleMoneyMotionCheckStatus is polled by the storefront while the
// customer sits on the provider's payment page. The local row is
// authoritative once the webhook has landed; until then we ask the provider
// directly so the redirect does not race the webhook.
func (s *Server) handleMoneyMotionCheckStatus(c *gin.Context) {
	sessionID := c.Query("session")
	if sessionID == "" {
		errorResponse(c, http.StatusBadRequest, "session is required")
		return
	}

	cs, err := s.repo.GetCheckoutSession(c.Request.Context(), sessionID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		errorResponse(c, http.StatusInternalServerError, "failed to load session")
		return
	}
	if cs != nil && cs.Status == database.SessionCompleted {
		sessionStatusResponse(c, cs)
		return
	}

	remote, remoteErr := s.moneymotion.GetSessionStatus(c.Request.Context(), sessionID)
	if remoteErr == nil {
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"paid":           remote.Paid,
			"status":         remote.Status,
			"amount_cents":   remote.TotalInCents,
			"currency":       remote.Currency,
			"paid_at":        remote.PaidAt,
			"customer_email": remote.CustomerEmail,
		})
		return
	}
	if cs != nil {
		s.logger.Warn().Err(remoteErr).Str("session", sessionID).Msg("provider status check failed, serving local state")
		sessionStatusResponse(c, cs)
		return
	}
	errorResponse(c, http.StatusNotFound, "session not found")
}

// handleLegacyCheckStatus serves the old polling route, which passed the
// provider session id as ?token= and only ever read local state.
func (s *Server) handleLegacyCheckStatus(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		errorResponse(c, http.StatusBadRequest, "token is required")
		return
	}
	cs, err := s.repo.GetCheckoutSession(c.Request.Context(), token)
	if errors.Is(err, database.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load session")
		return
	}
	sessionStatusResponse(c, cs)
}

// handleOrderLookup lets a customer retrieve their order with its keys.
// Both the order number and the purchase email must match.
func (s *Server) handleOrderLookup(c *gin.Context) {
	orderNumber := strings.TrimSpace(c.Query("order_number"))
	email := strings.TrimSpace(c.Query("email"))
	if orderNumber == "" || email == "" {
		errorResponse(c, http.StatusBadRequest, "order_number and email are required")
		return
	}

	order, err := s.repo.GetOrderByNumber(c.Request.Context(), orderNumber)
	if errors.Is(err, database.ErrNotFound) || (err == nil && !strings.EqualFold(order.CustomerEmail, email)) {
		errorResponse(c, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("order lookup failed")
		errorResponse(c, http.StatusInternalServerError, "failed to load order")
		return
	}

	items, err := s.repo.GetOrderItems(c.Request.Context(), order.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load order items")
		errorResponse(c, http.StatusInternalServerError, "failed to load order")
		return
	}
	licenses, err := s.repo.GetLicensesByOrder(c.Request.Context(), order.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load order licenses")
		errorResponse(c, http.StatusInternalServerError, "failed to load order")
		return
	}

	view := &checkout.OrderView{
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		AmountCents:   order.AmountCents,
		Currency:      order.Currency,
		CustomerEmail: order.CustomerEmail,
		CreatedAt:     order.CreatedAt,
		Items:         items,
		Licenses:      make([]checkout.LicenseView, 0, len(licenses)),
	}
	for _, lic := range licenses {
		if lic.Status == database.LicenseRevoked {
			continue
		}
		lv := checkout.LicenseView{
			ProductName: lic.ProductName,
			Pending:     lic.Status == database.LicensePending,
		}
		// placeholder keys are not real credentials, hide them
		if !lv.Pending {
			lv.Key = lic.LicenseKey
		}
		view.Licenses = append(view.Licenses, lv)
	}
	successResponse(c, view)
}

// ============================================================================
// AUTH
// ============================================================================

func requestMeta(c *gin.Context) auth.RequestMeta {
	return auth.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "email and password are required")
		return
	}

	tokens, err := s.authService.Login(c.Request.Context(), req.Email, req.Password, requestMeta(c))
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   authErr.Message,
			"code":    authErr.Code,
		})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("login failed")
		errorResponse(c, http.StatusInternalServerError, "login failed")
		return
	}
	successResponse(c, tokens)
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "refresh_token is required")
		return
	}
	tokens, err := s.authService.Refresh(c.Request.Context(), req.RefreshToken)
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   authErr.Message,
			"code":    authErr.Code,
		})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("token refresh failed")
		errorResponse(c, http.StatusInternalServerError, "token refresh failed")
		return
	}
	successResponse(c, tokens)
}

func (s *Server) handleAcceptInvite(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Name     string `json:"name" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "token, name and password are required")
		return
	}
	member, err := s.authService.AcceptInvite(c.Request.Context(), req.Token, req.Name, req.Password)
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   authErr.Message,
			"code":    authErr.Code,
		})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("invite acceptance failed")
		errorResponse(c, http.StatusInternalServerError, "failed to accept invite")
		return
	}
	successResponse(c, member)
}

func (s *Server) handleLogout(c *gin.Context) {
	claims := auth.ClaimsFrom(c)
	if claims != nil {
		s.authService.Logout(c.Request.Context(), claims, requestMeta(c))
	}
	successResponse(c, gin.H{"logged_out": true})
}

func (s *Server) handleMe(c *gin.Context) {
	claims := auth.ClaimsFrom(c)
	successResponse(c, gin.H{
		"member_id":   claims.MemberID,
		"email":       claims.Email,
		"role":        claims.Role,
		"permissions": claims.Permissions,
	})
}
