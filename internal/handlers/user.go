package handlers

import (
	"errors"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/database"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/services"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type UserHandler struct {
	service *services.UserService
}

func NewUserHandler(db *database.DB) *UserHandler {
	return &UserHandler{
		service: services.NewUserService(db),
	}
}

func SetupUserRoutes(router fiber.Router, db *database.DB) {
	h := NewUserHandler(db)

	router.Get("/me", h.GetMe)
	router.Patch("/me/radius", h.UpdateDefaultRadius)
	router.Post("/me/devices", h.RegisterDevice)
	router.Delete("/me/devices", h.UnregisterDevice)
}

// GetMe godoc
// @Summary Get current user profile
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Router /users/me [get]
func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	user, err := h.service.GetByID(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(user)
}

// UpdateRadiusRequest sets the preferred search radius.
type UpdateRadiusRequest struct {
	RadiusKm float64 `json:"radius_km"`
}

// UpdateDefaultRadius godoc
// @Summary Update preferred search radius
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateRadiusRequest true "Radius in km"
// @Success 200 {object} map[string]string
// @Router /users/me/radius [patch]
func (h *UserHandler) UpdateDefaultRadius(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req UpdateRadiusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.RadiusKm <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "radius_km must be positive"})
	}

	if err := h.service.UpdateDefaultRadius(c.UserContext(), userID, req.RadiusKm); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"message": "Default radius updated"})
}

// RegisterDeviceRequest registers an FCM token.
type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// RegisterDevice godoc
// @Summary Register an FCM device token
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RegisterDeviceRequest true "Device token"
// @Success 201 {object} map[string]string
// @Router /users/me/devices [post]
func (h *UserHandler) RegisterDevice(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req RegisterDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token is required"})
	}
	if req.Platform == "" {
		req.Platform = "android"
	}

	if err := h.service.RegisterDevice(c.UserContext(), userID, req.Token, req.Platform); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Device registered"})
}

// UnregisterDevice godoc
// @Summary Deactivate an FCM device token
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RegisterDeviceRequest true "Device token"
// @Success 200 {object} map[string]string
// @Router /users/me/devices [delete]
func (h *UserHandler) UnregisterDevice(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req RegisterDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token is required"})
	}

	if err := h.service.UnregisterDevice(c.UserContext(), userID, req.Token); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"message": "Device deactivated"})
}
