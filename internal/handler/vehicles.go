package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mossos12/AlemAuto/internal/apierror"
	"github.com/Mossos12/AlemAuto/internal/dto"
	"github.com/Mossos12/AlemAuto/internal/service"
)

type VehiclesHandler struct{ svc service.InventoryService }

func NewVehiclesHandler(svc service.InventoryService) *VehiclesHandler {
	return &VehiclesHandler{svc: svc}
}

func (h *VehiclesHandler) List(c *gin.Context) {
	var filter dto.VehicleFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	resp, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *VehiclesHandler) Get(c *gin.Context) {
	resp, err := h.svc.Get(c.Request.Context(), c.Param("vin"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *VehiclesHandler) Create(c *gin.Context) {
	var req dto.CreateVehicleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *VehiclesHandler) Update(c *gin.Context) {
	var req dto.UpdateVehicleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Update(c.Request.Context(), c.Param("vin"), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *VehiclesHandler) MarkSold(c *gin.Context) {
	var req dto.MarkSoldRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.MarkSold(c.Request.Context(), c.Param("vin"), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *VehiclesHandler) SoldStats(c *gin.Context) {
	resp, err := h.svc.SoldStats(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
