package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"evcharge/internal/auth"
	"evcharge/internal/errors"
	"evcharge/internal/model"
	"evcharge/internal/service"
)

// ChargerHandler handles charger endpoints.
type ChargerHandler struct {
	chargerService service.ChargerService
}

// NewChargerHandler creates a new charger handler.
func NewChargerHandler(chargerService service.ChargerService) *ChargerHandler {
	return &ChargerHandler{chargerService: chargerService}
}

// CreateChargerRequest represents a new charger. The owner is always the caller.
type CreateChargerRequest struct {
	Name          string   `json:"name" validate:"required,max=255"`
	Latitude      *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude     *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Status        string   `json:"status" validate:"omitempty,oneof=active inactive"`
	PowerOutput   *float64 `json:"powerOutput" validate:"required,gte=0,lte=99999999.99"`
	ConnectorType string   `json:"connectorType" validate:"required,max=255"`
}

// UpdateChargerRequest carries the fields to change; absent fields are kept.
type UpdateChargerRequest struct {
	Name          *string  `json:"name" validate:"omitempty,max=255"`
	Latitude      *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude     *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Status        *string  `json:"status" validate:"omitempty,oneof=active inactive"`
	PowerOutput   *float64 `json:"powerOutput" validate:"omitempty,gte=0,lte=99999999.99"`
	ConnectorType *string  `json:"connectorType" validate:"omitempty,max=255"`
}

func (r CreateChargerRequest) input() service.ChargerInput {
	return service.ChargerInput{
		Name:          r.Name,
		Latitude:      *r.Latitude,
		Longitude:     *r.Longitude,
		Status:        model.ChargerStatus(r.Status),
		PowerOutput:   decimal.NewFromFloat(*r.PowerOutput).Round(model.PowerOutputScale),
		ConnectorType: r.ConnectorType,
	}
}

func (r UpdateChargerRequest) patch() service.ChargerPatch {
	p := service.ChargerPatch{
		Name:          r.Name,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		ConnectorType: r.ConnectorType,
	}
	if r.Status != nil {
		s := model.ChargerStatus(*r.Status)
		p.Status = &s
	}
	if r.PowerOutput != nil {
		d := decimal.NewFromFloat(*r.PowerOutput).Round(model.PowerOutputScale)
		p.PowerOutput = &d
	}
	return p
}

func principal(c echo.Context) (auth.Principal, error) {
	p, ok := auth.CurrentPrincipal(c)
	if !ok {
		return auth.Principal{}, respondError(c, errors.ErrUnauthenticated)
	}
	return p, nil
}

// ListChargers godoc
// @Summary List chargers visible to the caller
// @Description Admins see every charger; other users see their own.
// @Tags chargers
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.Charger
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /chargers [get]
func (h *ChargerHandler) ListChargers(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	chargers, err := h.chargerService.List(c.Request().Context(), p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, chargers)
}

// GetCharger godoc
// @Summary Get charger by id
// @Tags chargers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Charger ID"
// @Success 200 {object} model.Charger
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /chargers/{id} [get]
func (h *ChargerHandler) GetCharger(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}

	charger, err := h.chargerService.Get(c.Request().Context(), p, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, charger)
}

// CreateCharger godoc
// @Summary Create a charger owned by the caller
// @Tags chargers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateChargerRequest true "Charger data"
// @Success 201 {object} model.Charger
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /chargers [post]
func (h *ChargerHandler) CreateCharger(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req CreateChargerRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody()
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(err)
	}

	charger, err := h.chargerService.Create(c.Request().Context(), p, req.input())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, charger)
}

// UpdateCharger godoc
// @Summary Update a charger
// @Tags chargers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Charger ID"
// @Param request body UpdateChargerRequest true "Fields to change"
// @Success 200 {object} model.Charger
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /chargers/{id} [put]
func (h *ChargerHandler) UpdateCharger(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req UpdateChargerRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody()
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(err)
	}

	charger, err := h.chargerService.Update(c.Request().Context(), p, id, req.patch())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, charger)
}

// DeleteCharger godoc
// @Summary Delete a charger
// @Tags chargers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Charger ID"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /chargers/{id} [delete]
func (h *ChargerHandler) DeleteCharger(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.chargerService.Delete(c.Request().Context(), p, id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "charger deleted successfully"})
}
