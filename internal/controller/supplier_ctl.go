package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parts_search_v1_202610/internal/service"
)

type SupplierController struct {
	supplierService *service.SupplierService
}

func NewSupplierController(supplierService *service.SupplierService) *SupplierController {
	return &SupplierController{supplierService: supplierService}
}

// Stats 供应商调用统计
// @Summary 供应商调用统计
// @Description 最近 N 天的调用次数、失败次数、平均耗时
// @Tags Supplier
// @Produce json
// @Param id path int true "供应商ID"
// @Param days query int false "统计天数，默认 7"
// @Success 200 {object} service.SupplierUsage
// @Failure 400 {object} map[string]string "参数错误"
// @Failure 404 {object} map[string]string "供应商不存在"
// @Router /api/suppliers/{id}/stats [get]
func (h *SupplierController) Stats(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid supplier id"})
		return
	}

	days := 7
	if raw := c.Query("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days <= 0 || days > 365 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
			return
		}
	}

	usage, err := h.supplierService.Usage(c.Request.Context(), id, days)
	if err != nil {
		if errors.Is(err, service.ErrSupplierNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, usage)
}
