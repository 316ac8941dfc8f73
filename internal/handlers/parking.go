package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/config"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/database"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/middleware"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/models"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/services"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ParkingHandler struct {
	resolver    *services.Resolver
	spotService *services.SpotService
	userService *services.UserService
}

func NewParkingHandler(db *database.DB, resolver *services.Resolver) *ParkingHandler {
	return &ParkingHandler{
		resolver:    resolver,
		spotService: services.NewSpotService(db),
		userService: services.NewUserService(db),
	}
}

func SetupParkingRoutes(router fiber.Router, db *database.DB, cfg *config.Config, resolver *services.Resolver) {
	h := NewParkingHandler(db, resolver)

	router.Get("/nearby", middleware.OptionalAuth(cfg), h.Nearby)
	router.Get("/spots", h.ListSpots)
	router.Post("/spots", middleware.AuthRequired(cfg), h.CreateSpot)
	router.Get("/spots/:id", h.GetSpot)
	router.Get("/spots/:id/navigate", h.Navigate)
}

// Nearby godoc
// @Summary Find nearby parking spots
// @Description Resolves spots around a coordinate: local inventory first, then cached candidates, then OpenStreetMap expansion
// @Tags parking
// @Accept json
// @Produce json
// @Param lat query number true "Latitude"
// @Param lng query number true "Longitude"
// @Param radius query number false "Search radius in km"
// @Param limit query int false "Max results"
// @Success 200 {object} services.ResolveResponse
// @Router /parking/nearby [get]
func (h *ParkingHandler) Nearby(c *fiber.Ctx) error {
	latStr := c.Query("lat")
	lngStr := c.Query("lng")
	if latStr == "" || lngStr == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "lat and lng are required"})
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "lat must be a number"})
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "lng must be a number"})
	}

	var radius float64
	if radiusStr := c.Query("radius"); radiusStr != "" {
		radius, err = strconv.ParseFloat(radiusStr, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "radius must be a number"})
		}
	}

	limit, _ := strconv.Atoi(c.Query("limit", "0"))

	userID := middleware.UserIDFromContext(c)

	// Authenticated users without an explicit radius fall back to their
	// profile preference before the global default applies.
	if radius <= 0 && userID != nil {
		radius = h.userService.DefaultRadiusKm(c.UserContext(), *userID)
	}

	resp, err := h.resolver.Resolve(c.UserContext(), services.ResolveRequest{
		Lat:      lat,
		Lng:      lng,
		RadiusKm: radius,
		Limit:    limit,
		UserID:   userID,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidCoordinates) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "coordinates out of range"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(resp)
}

// ListSpots godoc
// @Summary List parking spots
// @Tags parking
// @Accept json
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Param source query string false "Filter by source (local, external)"
// @Param available query bool false "Only available spots"
// @Success 200 {object} services.SpotListResponse
// @Router /parking/spots [get]
func (h *ParkingHandler) ListSpots(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	facilityID, _ := strconv.Atoi(c.Query("facility_id", "0"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	result, err := h.spotService.List(c.UserContext(), &services.SpotFilter{
		Page:          page,
		Limit:         limit,
		Source:        c.Query("source"),
		FacilityID:    uint(facilityID),
		AvailableOnly: c.QueryBool("available", false),
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(result)
}

// CreateSpotRequest is the provider-facing create payload.
type CreateSpotRequest struct {
	Name         string   `json:"name"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	SpotType     string   `json:"spot_type"`
	PricePerHour *float64 `json:"price_per_hour"`
	FacilityID   *uint    `json:"facility_id"`
	IsAvailable  *bool    `json:"is_available"`
}

// CreateSpot godoc
// @Summary Register a parking spot
// @Tags parking
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateSpotRequest true "Spot data"
// @Success 201 {object} models.ParkingSpot
// @Router /parking/spots [post]
func (h *ParkingHandler) CreateSpot(c *fiber.Ctx) error {
	var req CreateSpotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "coordinates out of range"})
	}

	userID := middleware.UserIDFromContext(c)

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	spot := models.ParkingSpot{
		Name:         req.Name,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		SpotType:     req.SpotType,
		PricePerHour: req.PricePerHour,
		FacilityID:   req.FacilityID,
		ProviderID:   userID,
		IsAvailable:  available,
	}

	if err := h.spotService.CreateLocal(c.UserContext(), &spot); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(spot)
}

// GetSpot godoc
// @Summary Get a parking spot
// @Tags parking
// @Accept json
// @Produce json
// @Param id path int true "Spot ID"
// @Success 200 {object} models.ParkingSpot
// @Router /parking/spots/{id} [get]
func (h *ParkingHandler) GetSpot(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid spot ID"})
	}

	spot, err := h.spotService.GetByID(c.UserContext(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Spot not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(spot)
}

// Navigate godoc
// @Summary Get a navigation link for a spot
// @Tags parking
// @Accept json
// @Produce json
// @Param id path int true "Spot ID"
// @Success 200 {object} map[string]string
// @Router /parking/spots/{id}/navigate [get]
func (h *ParkingHandler) Navigate(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid spot ID"})
	}

	spot, err := h.spotService.GetByID(c.UserContext(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Spot not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	url := fmt.Sprintf("https://www.google.com/maps/dir/?api=1&destination=%.6f,%.6f", spot.Latitude, spot.Longitude)
	return c.JSON(fiber.Map{
		"spot_id": strconv.Itoa(id),
		"name":    spot.Name,
		"url":     url,
	})
}
