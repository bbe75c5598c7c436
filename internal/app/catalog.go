package app

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"booking-scheduler/internal/auth"
	"booking-scheduler/internal/domain"
)

type businessInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Address     *string `json:"address"`
	IsActive    *bool   `json:"is_active"`
}

func (in businessInput) apply(b *domain.Business) {
	if in.Name != nil {
		b.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		b.Description = *in.Description
	}
	if in.Address != nil {
		b.Address = *in.Address
	}
	if in.IsActive != nil {
		b.IsActive = *in.IsActive
	}
}

type serviceInput struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	DurationMinutes *int    `json:"duration_minutes"`
	Price           *string `json:"price"`
	IsActive        *bool   `json:"is_active"`
}

func (in serviceInput) apply(s *domain.Service) {
	if in.Name != nil {
		s.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		s.Description = *in.Description
	}
	if in.DurationMinutes != nil {
		s.DurationMinutes = *in.DurationMinutes
	}
	if in.Price != nil {
		s.Price = *in.Price
	}
	if in.IsActive != nil {
		s.IsActive = *in.IsActive
	}
}

func validateService(s domain.Service) error {
	if s.Name == "" {
		return invalid("service name is required")
	}
	if s.DurationMinutes <= 0 {
		return invalid("duration must be greater than 0")
	}
	return nil
}

// ownedBusiness loads business id and checks that the caller owns it.
func (a *App) ownedBusiness(c *gin.Context, id string) (domain.Business, bool) {
	biz, err := a.Store.GetBusiness(c.Request.Context(), id)
	if err != nil {
		a.respondError(c, domain.Storage("get business", err))
		return biz, false
	}
	if biz.OwnerID != auth.UserID(c) {
		a.respondError(c, domain.Errorf(domain.KindForbidden, "access denied"))
		return biz, false
	}
	return biz, true
}

func (a *App) ownedService(c *gin.Context, id string) (domain.Service, bool) {
	svc, err := a.Store.GetService(c.Request.Context(), id)
	if err != nil {
		a.respondError(c, domain.Storage("get service", err))
		return svc, false
	}
	if _, ok := a.ownedBusiness(c, svc.BusinessID); !ok {
		return svc, false
	}
	return svc, true
}

// GET /api/businesses?mine=true
func (a *App) ListBusinessesHandler(c *gin.Context) {
	mine := c.Query("mine") == "true"
	list, err := a.Store.ListBusinesses(c.Request.Context(), !mine)
	if err != nil {
		a.respondError(c, domain.Storage("list businesses", err))
		return
	}
	out := make([]domain.Business, 0, len(list))
	uid := auth.UserID(c)
	for _, b := range list {
		if !mine || b.OwnerID == uid {
			out = append(out, b)
		}
	}
	c.JSON(http.StatusOK, out)
}

// POST /api/businesses
// The caller becomes the owner; the default weekly schedule is created with it.
func (a *App) CreateBusinessHandler(c *gin.Context) {
	var in businessInput
	if err := c.ShouldBindJSON(&in); err != nil {
		a.respondError(c, invalid("%s", err.Error()))
		return
	}
	biz := domain.Business{OwnerID: auth.UserID(c), IsActive: true}
	in.apply(&biz)
	if biz.Name == "" {
		a.respondError(c, invalid("business name is required"))
		return
	}
	ctx := c.Request.Context()
	if err := a.Store.CreateBusiness(ctx, &biz); err != nil {
		a.respondError(c, domain.Storage("create business", err))
		return
	}
	// The availability read seeds the default week again when this fails.
	if err := a.Store.UpsertAvailability(ctx, biz.ID, domain.DefaultWeek(biz.ID)); err != nil {
		a.Log.Warn().Err(err).Str("business_id", biz.ID).Msg("seed default availability")
	}
	c.JSON(http.StatusCreated, biz)
}

// GET /api/businesses/:id
func (a *App) GetBusinessHandler(c *gin.Context) {
	biz, err := a.Store.GetBusiness(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, domain.Storage("get business", err))
		return
	}
	c.JSON(http.StatusOK, biz)
}

// PUT /api/businesses/:id
func (a *App) UpdateBusinessHandler(c *gin.Context) {
	biz, ok := a.ownedBusiness(c, c.Param("id"))
	if !ok {
		return
	}
	var in businessInput
	if err := c.ShouldBindJSON(&in); err != nil {
		a.respondError(c, invalid("%s", err.Error()))
		return
	}
	in.apply(&biz)
	if biz.Name == "" {
		a.respondError(c, invalid("business name is required"))
		return
	}
	if err := a.Store.UpdateBusiness(c.Request.Context(), &biz); err != nil {
		a.respondError(c, domain.Storage("update business", err))
		return
	}
	c.JSON(http.StatusOK, biz)
}

// DELETE /api/businesses/:id
func (a *App) DeleteBusinessHandler(c *gin.Context) {
	biz, ok := a.ownedBusiness(c, c.Param("id"))
	if !ok {
		return
	}
	if err := a.Store.DeleteBusiness(c.Request.Context(), biz.ID); err != nil {
		a.respondError(c, domain.Storage("delete business", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/businesses/:id/services
func (a *App) ListServicesHandler(c *gin.Context) {
	list, err := a.Store.ListServices(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, domain.Storage("list services", err))
		return
	}
	if list == nil {
		list = []domain.Service{}
	}
	c.JSON(http.StatusOK, list)
}

// POST /api/businesses/:id/services
func (a *App) CreateServiceHandler(c *gin.Context) {
	biz, ok := a.ownedBusiness(c, c.Param("id"))
	if !ok {
		return
	}
	var in serviceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		a.respondError(c, invalid("%s", err.Error()))
		return
	}
	svc := domain.Service{BusinessID: biz.ID, DurationMinutes: 30, IsActive: true}
	in.apply(&svc)
	if err := validateService(svc); err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.Store.CreateService(c.Request.Context(), &svc); err != nil {
		a.respondError(c, domain.Storage("create service", err))
		return
	}
	c.JSON(http.StatusCreated, svc)
}

// GET /api/services/:id
func (a *App) GetServiceHandler(c *gin.Context) {
	svc, err := a.Store.GetService(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, domain.Storage("get service", err))
		return
	}
	c.JSON(http.StatusOK, svc)
}

// PUT /api/services/:id
func (a *App) UpdateServiceHandler(c *gin.Context) {
	svc, ok := a.ownedService(c, c.Param("id"))
	if !ok {
		return
	}
	var in serviceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		a.respondError(c, invalid("%s", err.Error()))
		return
	}
	in.apply(&svc)
	if err := validateService(svc); err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.Store.UpdateService(c.Request.Context(), &svc); err != nil {
		a.respondError(c, domain.Storage("update service", err))
		return
	}
	c.JSON(http.StatusOK, svc)
}

// DELETE /api/services/:id
func (a *App) DeleteServiceHandler(c *gin.Context) {
	svc, ok := a.ownedService(c, c.Param("id"))
	if !ok {
		return
	}
	if err := a.Store.DeleteService(c.Request.Context(), svc.ID); err != nil {
		a.respondError(c, domain.Storage("delete service", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
