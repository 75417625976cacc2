package records

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/foundry"
	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/platform/auth"
	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/platform/middleware"
	"github.com/gsiegel14/atlas-backend-proxy-sub000/pkg/pagination"
)

// Handler serves the clinical-data read endpoints.
type Handler struct {
	gateway         *Gateway
	resolver        *Resolver
	profileResolver *Resolver
	lookup          ProfileLookup
	allowOverride   bool
}

// NewHandler builds a Handler. allowOverride controls whether clinical
// read endpoints honor the patientId query override; the profile endpoint
// always does, with the override ranked ahead of claim-derived names.
func NewHandler(gateway *Gateway, resolver *Resolver, lookup ProfileLookup, allowOverride bool) *Handler {
	return &Handler{
		gateway:         gateway,
		resolver:        resolver,
		profileResolver: NewResolver(lookup, OverrideFirstOrder, resolver.logger),
		lookup:          lookup,
		allowOverride:   allowOverride,
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireScope("read:patient"))
	read.GET("/conditions", h.ListConditions)
	read.GET("/observations", h.ListObservations)
	read.GET("/procedures", h.ListProcedures)
	read.GET("/immunizations", h.ListImmunizations)
	read.GET("/allergies", h.ListAllergies)
	read.GET("/clinical-notes", h.ListClinicalNotes)
	read.GET("/encounters", h.ListEncounters)
	read.GET("/patient/profile", h.GetPatientProfile)
}

func (h *Handler) ListConditions(c echo.Context) error {
	return h.list(c, TypeCondition, "")
}

func (h *Handler) ListObservations(c echo.Context) error {
	return h.list(c, TypeObservation, c.QueryParam("category"))
}

func (h *Handler) ListProcedures(c echo.Context) error {
	return h.list(c, TypeProcedure, "")
}

func (h *Handler) ListImmunizations(c echo.Context) error {
	return h.list(c, TypeImmunization, "")
}

func (h *Handler) ListAllergies(c echo.Context) error {
	return h.list(c, TypeAllergy, "")
}

func (h *Handler) ListClinicalNotes(c echo.Context) error {
	return h.list(c, TypeClinicalNote, "")
}

func (h *Handler) ListEncounters(c echo.Context) error {
	return h.list(c, TypeEncounter, "")
}

func (h *Handler) list(c echo.Context, t ObjectType, category string) error {
	pctx, err := h.resolver.Resolve(c, c.QueryParam("patientId"), h.allowOverride)
	if err != nil {
		return h.respondError(c, err)
	}

	pg := pagination.FromContext(c)
	result, err := h.gateway.Fetch(c.Request().Context(), Query{
		ObjectType:    t,
		PatientID:     pctx.ResolvedID,
		PageSize:      pg.PageSize,
		PageToken:     pg.PageToken,
		SortField:     pg.SortField,
		SortDirection: pg.SortDirection,
		Category:      category,
	})
	if err != nil {
		return h.respondError(c, err)
	}

	var nextToken interface{}
	if result.NextPageToken != "" {
		nextToken = result.NextPageToken
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"data":          result.Records,
		"nextPageToken": nextToken,
		"fetchedAt":     result.FetchedAt.Format(time.RFC3339),
		"correlationId": middleware.CorrelationID(c),
	})
}

// GetPatientProfile resolves the caller's identity with the liberal
// override-first priority and returns the resolved context alongside the
// platform profile record when one exists.
func (h *Handler) GetPatientProfile(c echo.Context) error {
	pctx, err := h.profileResolver.Resolve(c, c.QueryParam("patientId"), true)
	if err != nil {
		return h.respondError(c, err)
	}

	var profile Profile
	if h.lookup != nil {
		// Best effort: the resolved context is still useful without it.
		profile, _ = h.lookup.LookupProfile(c.Request().Context(), pctx.MatchedIdentifier)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"data":          map[string]interface{}{"patient": pctx, "profile": profile},
		"correlationId": middleware.CorrelationID(c),
	})
}

// errorBody is the error envelope every failure response carries.
type errorBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
	Timestamp     string `json:"timestamp"`
}

// respondError maps a domain error onto the error taxonomy: status code,
// stable error code, and a message safe to show the caller.
func (h *Handler) respondError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	code := "UNEXPECTED"
	message := "internal server error"

	var invalid *foundry.InvalidRequestError
	switch {
	case errors.Is(err, ErrMissingIdentity):
		status = http.StatusBadRequest
		code = "MISSING_IDENTITY"
		message = "no patient identity could be resolved for this request"
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
		code = "INVALID_REQUEST"
		message = invalid.Message
	case errors.Is(err, foundry.ErrThrottled):
		status = http.StatusServiceUnavailable
		code = "UPSTREAM_THROTTLED"
		message = "the clinical data platform is rate limiting requests; retry shortly"
	case errors.Is(err, foundry.ErrMissingOntology):
		status = http.StatusInternalServerError
		code = "UPSTREAM_UNAVAILABLE"
		message = "the clinical data platform is not configured"
	default:
		var te *foundry.TransportError
		if errors.As(err, &te) {
			status = http.StatusServiceUnavailable
			code = "UPSTREAM_UNAVAILABLE"
			message = "the clinical data platform is unreachable"
		}
	}

	return c.JSON(status, map[string]interface{}{
		"error": errorBody{
			Code:          code,
			Message:       message,
			CorrelationID: middleware.CorrelationID(c),
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		},
	})
}
