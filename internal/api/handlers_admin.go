package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"gamekey-store/internal/auth"
	"gamekey-store/internal/database"
)

// ============================================================================
// ORDERS
// ============================================================================

func (s *Server) handleListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	orders, err := s.repo.ListOrders(c.Request.Context(), limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list orders")
		errorResponse(c, http.StatusInternalServerError, "failed to list orders")
		return
	}
	successResponse(c, orders)
}

func (s *Server) handleGetOrder(c *gin.Context) {
	order, err := s.repo.GetOrderByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load order")
		return
	}
	items, err := s.repo.GetOrderItems(c.Request.Context(), order.ID)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load order items")
		return
	}
	licenses, err := s.repo.GetLicensesByOrder(c.Request.Context(), order.ID)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load order licenses")
		return
	}
	successResponse(c, gin.H{
		"order":    order,
		"items":    items,
		"licenses": licenses,
	})
}

var adminOrderStatuses = map[database.OrderStatus]bool{
	database.OrderPending:   true,
	database.OrderPaid:      true,
	database.OrderCompleted: true,
	database.OrderFailed:    true,
	database.OrderRefunded:  true,
	database.OrderDisputed:  true,
	database.OrderExpired:   true,
}

func (s *Server) handleUpdateOrderStatus(c *gin.Context) {
	var req struct {
		Status database.OrderStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !adminOrderStatuses[req.Status] {
		errorResponse(c, http.StatusBadRequest, "invalid order status")
		return
	}
	err := s.repo.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status)
	if errors.Is(err, database.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to update order")
		return
	}
	successResponse(c, gin.H{"status": req.Status})
}

// ============================================================================
// LICENSES / STOCK
// ============================================================================

func (s *Server) handleListLicenses(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	var status *database.LicenseStatus
	if q := c.Query("status"); q != "" {
		st := database.LicenseStatus(q)
		status = &st
	}
	licenses, err := s.repo.ListLicenses(c.Request.Context(), status, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list licenses")
		errorResponse(c, http.StatusInternalServerError, "failed to list licenses")
		return
	}
	successResponse(c, licenses)
}

// handleBulkAddLicenses ingests a batch of keys into one of the three
// stock pools. Omitting product_id makes them general stock; omitting
// variant_id makes them product-wide.
func (s *Server) handleBulkAddLicenses(c *gin.Context) {
	var req struct {
		Keys        []string `json:"keys" binding:"required"`
		ProductID   *string  `json:"product_id"`
		VariantID   *string  `json:"variant_id"`
		ProductName *string  `json:"product_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Keys) == 0 {
		errorResponse(c, http.StatusBadRequest, "keys are required")
		return
	}
	if req.VariantID != nil && req.ProductID == nil {
		errorResponse(c, http.StatusBadRequest, "variant_id requires product_id")
		return
	}

	added, err := s.repo.BulkAddLicenses(c.Request.Context(), req.Keys, req.ProductID, req.VariantID, req.ProductName)
	if err != nil {
		s.logger.Error().Err(err).Msg("bulk license import failed")
		errorResponse(c, http.StatusInternalServerError, "failed to add licenses")
		return
	}
	s.catalog.Invalidate(c.Request.Context())
	successResponse(c, gin.H{"added": added})
}

func (s *Server) handleDeleteLicense(c *gin.Context) {
	err := s.repo.DeleteLicense(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "license not found or not unused")
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to delete license")
		return
	}
	s.catalog.Invalidate(c.Request.Context())
	successResponse(c, gin.H{"deleted": true})
}

func (s *Server) handleRevokeOrderLicenses(c *gin.Context) {
	revoked, err := s.repo.RevokeLicensesByOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to revoke licenses")
		return
	}
	successResponse(c, gin.H{"revoked": revoked})
}

func (s *Server) handleStockSummary(c *gin.Context) {
	summary, err := s.repo.GetStockSummary(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load stock summary")
		return
	}
	counts, err := s.repo.GetStockCounts(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load stock counts")
		return
	}
	successResponse(c, gin.H{
		"summary": summary,
		"pools": gin.H{
			"general":    counts.General,
			"by_product": counts.ByProduct,
			"by_variant": counts.ByVariant,
		},
	})
}

// ============================================================================
// PRODUCTS
// ============================================================================

func (s *Server) handleCreateProduct(c *gin.Context) {
	var req struct {
		Name         string `json:"name" binding:"required"`
		Game         string `json:"game"`
		Description  string `json:"description"`
		Image        string `json:"image"`
		DisplayOrder int    `json:"display_order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "name is required")
		return
	}

	product := &database.Product{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Slug:         slug.Make(req.Name),
		Game:         req.Game,
		Description:  req.Description,
		Image:        req.Image,
		Status:       database.ProductActive,
		DisplayOrder: req.DisplayOrder,
	}
	if err := s.repo.CreateProduct(c.Request.Context(), product); err != nil {
		s.logger.Error().Err(err).Str("name", req.Name).Msg("failed to create product")
		errorResponse(c, http.StatusInternalServerError, "failed to create product")
		return
	}
	s.catalog.Invalidate(c.Request.Context())
	successResponse(c, product)
}

func (s *Server) handleCreateVariant(c *gin.Context) {
	var req struct {
		Duration     string `json:"duration" binding:"required"`
		PriceCents   int64  `json:"price_cents" binding:"required"`
		DisplayOrder int    `json:"display_order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PriceCents <= 0 {
		errorResponse(c, http.StatusBadRequest, "duration and a positive price_cents are required")
		return
	}

	if _, err := s.repo.GetProductByID(c.Request.Context(), c.Param("id")); err != nil {
		errorResponse(c, http.StatusNotFound, "product not found")
		return
	}

	variant := &database.ProductVariant{
		ID:           uuid.New().String(),
		ProductID:    c.Param("id"),
		Duration:     req.Duration,
		PriceCents:   req.PriceCents,
		DisplayOrder: req.DisplayOrder,
	}
	if err := s.repo.CreateVariant(c.Request.Context(), variant); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to create variant")
		return
	}
	s.catalog.Invalidate(c.Request.Context())
	successResponse(c, variant)
}

var productStatuses = map[database.ProductStatus]bool{
	database.ProductActive:      true,
	database.ProductInactive:    true,
	database.ProductMaintenance: true,
}

func (s *Server) handleUpdateProductStatus(c *gin.Context) {
	var req struct {
		Status database.ProductStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !productStatuses[req.Status] {
		errorResponse(c, http.StatusBadRequest, "invalid product status")
		return
	}
	err := s.repo.UpdateProductStatus(c.Request.Context(), c.Param("id"), req.Status)
	if errors.Is(err, database.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to update product")
		return
	}
	s.catalog.Invalidate(c.Request.Context())
	successResponse(c, gin.H{"status": req.Status})
}

// ============================================================================
// COUPONS
// ============================================================================

func (s *Server) handleListCoupons(c *gin.Context) {
	coupons, err := s.repo.ListCoupons(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list coupons")
		return
	}
	successResponse(c, coupons)
}

func (s *Server) handleCreateCoupon(c *gin.Context) {
	var req struct {
		Code          string                `json:"code" binding:"required"`
		DiscountType  database.DiscountType `json:"discount_type" binding:"required"`
		DiscountValue int64                 `json:"discount_value" binding:"required"`
		MaxUses       *int                  `json:"max_uses"`
		ExpiresAt     *time.Time            `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "code, discount_type and discount_value are required")
		return
	}
	if req.DiscountType != database.DiscountPercent && req.DiscountType != database.DiscountFixed {
		errorResponse(c, http.StatusBadRequest, "discount_type must be percent or fixed")
		return
	}
	if req.DiscountType == database.DiscountPercent && (req.DiscountValue < 1 || req.DiscountValue > 100) {
		errorResponse(c, http.StatusBadRequest, "percent discounts must be between 1 and 100")
		return
	}
	if req.DiscountValue <= 0 {
		errorResponse(c, http.StatusBadRequest, "discount_value must be positive")
		return
	}

	cp := &database.Coupon{
		ID:            uuid.New().String(),
		Code:          req.Code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MaxUses:       req.MaxUses,
		IsActive:      true,
		ExpiresAt:     req.ExpiresAt,
	}
	if err := s.repo.CreateCoupon(c.Request.Context(), cp); err != nil {
		s.logger.Error().Err(err).Str("code", req.Code).Msg("failed to create coupon")
		errorResponse(c, http.StatusInternalServerError, "failed to create coupon")
		return
	}
	successResponse(c, cp)
}

func (s *Server) handleSetCouponActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "active is required")
		return
	}
	err := s.repo.SetCouponActive(c.Request.Context(), c.Param("id"), *req.Active)
	if errors.Is(err, database.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "coupon not found")
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to update coupon")
		return
	}
	successResponse(c, gin.H{"active": *req.Active})
}

func (s *Server) handleDeleteCoupon(c *gin.Context) {
	err := s.repo.DeleteCoupon(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "coupon not found")
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to delete coupon")
		return
	}
	successResponse(c, gin.H{"deleted": true})
}

// ============================================================================
// OUTBOUND WEBHOOKS
// ============================================================================

func (s *Server) handleListWebhooks(c *gin.Context) {
	hooks, err := s.repo.ListWebhooks(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	successResponse(c, hooks)
}

func (s *Server) handleCreateWebhook(c *gin.Context) {
	var req struct {
		Name   string   `json:"name" binding:"required"`
		URL    string   `json:"url" binding:"required,url"`
		Events []string `json:"events" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Events) == 0 {
		errorResponse(c, http.StatusBadRequest, "name, url and events are required")
		return
	}

	hook := &database.Webhook{
		ID:       uuid.New().String(),
		Name:     req.Name,
		URL:      req.URL,
		Events:   req.Events,
		IsActive: true,
	}
	if err := s.repo.CreateWebhook(c.Request.Context(), hook); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to create webhook")
		return
	}
	successResponse(c, hook)
}

func (s *Server) handleUpdateWebhook(c *gin.Context) {
	var req struct {
		Name     string   `json:"name" binding:"required"`
		URL      string   `json:"url" binding:"required,url"`
		Events   []string `json:"events" binding:"required"`
		IsActive *bool    `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Events) == 0 {
		errorResponse(c, http.StatusBadRequest, "name, url, events and is_active are required")
		return
	}

	hook := &database.Webhook{
		ID:       c.Param("id"),
		Name:     req.Name,
		URL:      req.URL,
		Events:   req.Events,
		IsActive: *req.IsActive,
	}
	err := s.repo.UpdateWebhook(c.Request.Context(), hook)
	if errors.Is(err, database.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "webhook not found")
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to update webhook")
		return
	}
	successResponse(c, hook)
}

func (s *Server) handleDeleteWebhook(c *gin.Context) {
	err := s.repo.DeleteWebhook(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "webhook not found")
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to delete webhook")
		return
	}
	successResponse(c, gin.H{"deleted": true})
}

// ============================================================================
// TEAM / AUDIT / SETTINGS
// ============================================================================

func (s *Server) handleListTeam(c *gin.Context) {
	members, err := s.repo.ListTeamMembers(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list team members")
		return
	}
	successResponse(c, members)
}

func (s *Server) handleInviteMember(c *gin.Context) {
	var req struct {
		Email       string   `json:"email" binding:"required,email"`
		Role        string   `json:"role" binding:"required"`
		Permissions []string `json:"permissions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "email and role are required")
		return
	}

	member, token, err := s.authService.InviteMember(c.Request.Context(), req.Email, req.Role, req.Permissions)
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
		s.logger.Error().Err(err).Msg("invite failed")
		errorResponse(c, http.StatusInternalServerError, "failed to invite member")
		return
	}
	successResponse(c, gin.H{
		"member":       member,
		"invite_token": token,
	})
}

func (s *Server) handleUpdateMemberPermissions(c *gin.Context) {
	var req struct {
		Role        string   `json:"role" binding:"required"`
		Permissions []string `json:"permissions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "role is required")
		return
	}

	err := s.authService.UpdatePermissions(c.Request.Context(), c.Param("id"), req.Role, req.Permissions)
	var authErr *auth.AuthError
	switch {
	case errors.As(err, &authErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   authErr.Message,
			"code":    authErr.Code,
		})
	case errors.Is(err, database.ErrNotFound):
		errorResponse(c, http.StatusNotFound, "team member not found")
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, "failed to update permissions")
	default:
		successResponse(c, gin.H{"updated": true})
	}
}

func (s *Server) handleRemoveMember(c *gin.Context) {
	err := s.authService.RemoveMember(c.Request.Context(), c.Param("id"))
	var authErr *auth.AuthError
	switch {
	case errors.As(err, &authErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   authErr.Message,
			"code":    authErr.Code,
		})
	case errors.Is(err, database.ErrNotFound):
		errorResponse(c, http.StatusNotFound, "team member not found")
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, "failed to remove member")
	default:
		successResponse(c, gin.H{"removed": true})
	}
}

func (s *Server) handleListAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := s.repo.ListAuditEvents(c.Request.Context(), limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list audit events")
		return
	}
	successResponse(c, events)
}

func (s *Server) handleActiveSessions(c *gin.Context) {
	sessions, err := s.authService.ActiveSessions(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to derive active sessions")
		return
	}
	successResponse(c, sessions)
}

// handleForceLogout closes another actor's session in the activity view by
// writing a synthetic logout event. Advisory: issued tokens keep working
// until they expire.
func (s *Server) handleForceLogout(c *gin.Context) {
	var req struct {
		ActorRole       string `json:"actor_role" binding:"required"`
		ActorIdentifier string `json:"actor_identifier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "actor_role and actor_identifier are required")
		return
	}
	s.authService.ForceLogout(c.Request.Context(), req.ActorRole, req.ActorIdentifier, requestMeta(c))
	successResponse(c, gin.H{"logged_out": true})
}

// settings exposed to the dashboard; smtp_password stays write-only
var settingsKeys = []string{"smtp_host", "smtp_port", "smtp_user", "smtp_from", "store_notice"}

func (s *Server) handleGetSettings(c *gin.Context) {
	settings, err := s.repo.GetSystemSettings(c.Request.Context(), settingsKeys...)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load settings")
		return
	}
	successResponse(c, settings)
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil || len(req) == 0 {
		errorResponse(c, http.StatusBadRequest, "settings object is required")
		return
	}
	allowed := map[string]bool{"smtp_password": true}
	for _, k := range settingsKeys {
		allowed[k] = true
	}
	for key, value := range req {
		if !allowed[key] {
			errorResponse(c, http.StatusBadRequest, "unknown setting: "+key)
			return
		}
		if err := s.repo.SetSystemSetting(c.Request.Context(), key, strings.TrimSpace(value)); err != nil {
			errorResponse(c, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}
	successResponse(c, gin.H{"updated": len(req)})
}
