package theatre

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Handler exposes one workflow session to a presentation client.
type Handler struct {
	wf *Workflow
}

func NewHandler(wf *Workflow) *Handler {
	return &Handler{wf: wf}
}

// RegisterRoutes mounts the session routes on g. writeMW guards the command
// routes, which mutate the backend.
func (h *Handler) RegisterRoutes(g *echo.Group, writeMW ...echo.MiddlewareFunc) {
	g.GET("/state", h.GetState)
	g.GET("/stages", h.ListStages)
	g.GET("/commands", h.ListCommands)
	g.GET("/route", h.GetRoute)
	g.PUT("/route", h.Navigate)
	g.PUT("/filters", h.SetFilters)
	g.PUT("/search", h.SetSearch)
	g.PUT("/options/:kind/search", h.SetOptionSearch)
	g.POST("/select", h.Select)
	g.POST("/retry", h.Retry)
	g.POST("/refresh", h.Refresh)
	g.POST("/dismiss-error", h.DismissError)
	g.POST("/clear-message", h.ClearMessage)
	g.PUT("/connectivity", h.SetConnectivity)
	g.PUT("/visibility", h.SetVisibility)
	g.POST("/commands/:command", h.Dispatch, writeMW...)
}

type textRequest struct {
	Text string `json:"text"`
}

type selectRequest struct {
	ID string `json:"id"`
}

type routeRequest struct {
	Path string `json:"path"`
}

type routeResponse struct {
	Path  string     `json:"path"`
	Route RouteState `json:"route"`
}

type connectivityRequest struct {
	Online bool `json:"online"`
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

type commandResponse struct {
	Snapshot *TheatreCase `json:"snapshot"`
	State    State        `json:"state"`
}

func (h *Handler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.wf.State())
}

func (h *Handler) ListStages(c echo.Context) error {
	return c.JSON(http.StatusOK, Stages())
}

func (h *Handler) ListCommands(c echo.Context) error {
	return c.JSON(http.StatusOK, CommandNames())
}

func (h *Handler) GetRoute(c echo.Context) error {
	return c.JSON(http.StatusOK, routeResponse{Path: h.wf.RoutePath(), Route: h.wf.route()})
}

func (h *Handler) Navigate(c echo.Context) error {
	var req routeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	path := Sanitize(req.Path)
	if path != BasePath && !strings.HasPrefix(path, BasePath+"?") {
		return echo.NewHTTPError(http.StatusBadRequest, "path must be under "+BasePath)
	}
	if err := h.wf.Navigate(c.Request().Context(), path); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, MsgLoadSnapshot)
	}
	return c.JSON(http.StatusOK, routeResponse{Path: h.wf.RoutePath(), Route: h.wf.route()})
}

func (h *Handler) SetFilters(c echo.Context) error {
	var f Filters
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f.QueueScope = QueueScope(strings.ToUpper(Sanitize(string(f.QueueScope))))
	f.Stage = Stage(strings.ToUpper(Sanitize(string(f.Stage))))
	f.Status = CaseStatus(strings.ToUpper(Sanitize(string(f.Status))))
	f.Finalized = ParseTriState(string(f.Finalized))
	if f.Stage != StageUnset && !f.Stage.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid stage")
	}
	if f.Status != "" && !f.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	if err := h.wf.SetFilters(c.Request().Context(), f); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, MsgLoadQueue)
	}
	return c.JSON(http.StatusOK, h.wf.State())
}

func (h *Handler) SetSearch(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.wf.SetSearch(req.Text)
	return c.JSON(http.StatusAccepted, h.wf.State())
}

func (h *Handler) SetOptionSearch(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.wf.SetOptionSearch(OptionKind(c.Param("kind")), req.Text); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) Select(c echo.Context) error {
	var req selectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.wf.Select(c.Request().Context(), req.ID); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, MsgLoadSnapshot)
	}
	return c.JSON(http.StatusOK, h.wf.State())
}

func (h *Handler) Retry(c echo.Context) error {
	if err := h.wf.Retry(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, h.wf.State())
}

// DismissError hides the current load error without retrying.
func (h *Handler) DismissError(c echo.Context) error {
	h.wf.DismissLoadError()
	return c.JSON(http.StatusOK, h.wf.State())
}

func (h *Handler) ClearMessage(c echo.Context) error {
	h.wf.ClearMessage()
	return c.JSON(http.StatusOK, h.wf.State())
}

// Refresh reloads the queue, the selected snapshot and the option
// directories. Individual failures are reported through the state.
func (h *Handler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	_ = h.wf.LoadQueue(ctx)
	_ = h.wf.RefreshSnapshot(ctx)
	_ = h.wf.RefreshOptions(ctx)
	return c.JSON(http.StatusOK, h.wf.State())
}

func (h *Handler) SetConnectivity(c echo.Context) error {
	var req connectivityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.wf.SetOnline(c.Request().Context(), req.Online)
	return c.JSON(http.StatusOK, h.wf.State())
}

func (h *Handler) SetVisibility(c echo.Context) error {
	var req visibilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.wf.SetVisible(req.Visible)
	return c.JSON(http.StatusOK, h.wf.State())
}

func (h *Handler) Dispatch(c echo.Context) error {
	name := CommandName(c.Param("command"))
	payload, ok := NewPayload(name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown command")
	}
	if err := c.Bind(payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	snap, err := h.wf.Dispatch(c.Request().Context(), name, payload)
	if err != nil {
		return commandHTTPError(err)
	}
	return c.JSON(http.StatusOK, commandResponse{Snapshot: snap, State: h.wf.State()})
}

func commandHTTPError(err error) error {
	var ce *CommandError
	if !errors.As(err, &ce) {
		if errors.Is(err, ErrUnknownCommand) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown command")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch ce.Kind {
	case KindValidation:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, ce.Message)
	case KindReadOnly:
		return echo.NewHTTPError(http.StatusForbidden, ce.Message)
	case KindOffline:
		return echo.NewHTTPError(http.StatusServiceUnavailable, ce.Message)
	default:
		return echo.NewHTTPError(http.StatusBadGateway, ce.Message)
	}
}
