package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/stockerhq/stocker/internal/subscription/domain"
)

func (s *Server) CreateSubscription(c *gin.Context) {
	var req subscriptiondomain.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PackageCode = strings.TrimSpace(req.PackageCode)
	req.BillingCycle = strings.TrimSpace(req.BillingCycle)

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetActiveSubscription(c *gin.Context) {
	resp, err := s.subscriptionSvc.GetActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := s.subscriptionSvc.GetByID(c.Request.Context(), subscriptionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), subscriptionID, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SuspendSubscription(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.subscriptionSvc.Suspend(c.Request.Context(), subscriptionID, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReactivateSubscription(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := s.subscriptionSvc.Reactivate(c.Request.Context(), subscriptionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ChangeSubscriptionPackage(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req subscriptiondomain.ChangePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.SubscriptionID = subscriptionID
	req.PackageCode = strings.TrimSpace(req.PackageCode)

	resp, err := s.subscriptionSvc.ChangePackage(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateSubscriptionBillingCycle(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		BillingCycle string `json:"billing_cycle"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.UpdateBillingCycle(c.Request.Context(), subscriptionID, strings.TrimSpace(req.BillingCycle))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddSubscriptionModule(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req subscriptiondomain.ModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.SubscriptionID = subscriptionID
	req.ModuleCode = strings.TrimSpace(req.ModuleCode)

	resp, err := s.subscriptionSvc.AddModule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveSubscriptionModule(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		AbortWithError(c, newValidationError("code", "invalid_code", "invalid code"))
		return
	}

	resp, err := s.subscriptionSvc.RemoveModule(c.Request.Context(), subscriptiondomain.ModuleRequest{
		SubscriptionID: subscriptionID,
		ModuleCode:     code,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecordSubscriptionUsage(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req subscriptiondomain.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.SubscriptionID = subscriptionID
	req.MetricCode = strings.TrimSpace(req.MetricCode)

	resp, err := s.subscriptionSvc.RecordUsage(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetStorageStatus(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := s.subscriptionSvc.GetStorageStatus(c.Request.Context(), subscriptionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetStorageBucket(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req subscriptiondomain.StorageBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.SubscriptionID = subscriptionID
	req.TenantHandle = strings.TrimSpace(req.TenantHandle)

	resp, err := s.subscriptionSvc.SetStorageBucket(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateStorageUsage(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req subscriptiondomain.StorageUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.SubscriptionID = subscriptionID

	resp, err := s.subscriptionSvc.UpdateStorageUsage(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateStorageQuota(c *gin.Context) {
	subscriptionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		QuotaGB int `json:"quota_gb"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.UpdateStorageQuota(c.Request.Context(), subscriptionID, req.QuotaGB)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
