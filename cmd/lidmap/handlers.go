package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bluesky-social/lidmap/mapping"
	"github.com/bluesky-social/lidmap/mapping/httplookup"

	"github.com/labstack/echo/v4"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type jidBody struct {
	JID string `json:"jid"`
}

type resolveRequest struct {
	PNs          []string `json:"pns"`
	LIDs         []string `json:"lids"`
	SkipExternal bool     `json:"skipExternal"`
	IgnoreDevice bool     `json:"ignoreDevice"`
}

type resolveResponse struct {
	LIDs map[string]string `json:"lids"`
	PNs  map[string]string `json:"pns"`
}

type mappingsRequest struct {
	Mappings []mapping.Pair `json:"mappings"`
	Force    bool           `json:"force"`
	BatchID  string         `json:"batchId,omitempty"`
}

type countBody struct {
	Count int `json:"count"`
}

// missing or unparseable values are false
func boolParam(c echo.Context, name string) bool {
	v, _ := strconv.ParseBool(c.QueryParam(name))
	return v
}

func resolveOptions(c echo.Context) mapping.ResolveOptions {
	return mapping.ResolveOptions{
		SkipExternal: boolParam(c, "skip_external"),
		IgnoreDevice: boolParam(c, "ignore_device"),
	}
}

func resolveErrorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, mapping.ErrInvalidIdentifier):
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidIdentifier",
			Message: err.Error(),
		})
	case errors.Is(err, mapping.ErrNotFound):
		return c.JSON(http.StatusNotFound, GenericError{
			Error:   "MappingNotFound",
			Message: err.Error(),
		})
	default:
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "InternalError",
			Message: err.Error(),
		})
	}
}

// Same response shape that httplookup consumes, so one instance can serve as another's external lookup.
func (srv *Server) HandleLookup(c echo.Context) error {
	ctx := c.Request().Context()

	lid, err := srv.resolver.LIDForPN(ctx, c.QueryParam("jid"), resolveOptions(c))
	if errors.Is(err, mapping.ErrNotFound) {
		return c.JSON(http.StatusOK, httplookup.LookupResponse{
			Results: []mapping.LookupResult{{Exists: false}},
		})
	} else if err != nil {
		return resolveErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, httplookup.LookupResponse{
		Results: []mapping.LookupResult{{Exists: true, LID: lid}},
	})
}

func (srv *Server) HandleLIDForPN(c echo.Context) error {
	ctx := c.Request().Context()

	lid, err := srv.resolver.LIDForPN(ctx, c.QueryParam("pn"), resolveOptions(c))
	if err != nil {
		return resolveErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, jidBody{JID: lid})
}

func (srv *Server) HandlePNForLID(c echo.Context) error {
	ctx := c.Request().Context()

	pn, err := srv.resolver.PNForLID(ctx, c.QueryParam("lid"), resolveOptions(c))
	if err != nil {
		return resolveErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, jidBody{JID: pn})
}

func (srv *Server) HandleResolve(c echo.Context) error {
	ctx := c.Request().Context()

	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidRequest",
			Message: fmt.Sprintf("%s", err),
		})
	}
	opts := mapping.ResolveOptions{
		SkipExternal: req.SkipExternal,
		IgnoreDevice: req.IgnoreDevice,
	}
	return c.JSON(http.StatusOK, resolveResponse{
		LIDs: srv.resolver.LIDsForPNs(ctx, req.PNs, opts),
		PNs:  srv.resolver.PNsForLIDs(ctx, req.LIDs, opts),
	})
}

func (srv *Server) HandleStoreMappings(c echo.Context) error {
	ctx := c.Request().Context()

	var req mappingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidRequest",
			Message: fmt.Sprintf("%s", err),
		})
	}
	res, err := srv.resolver.StoreMappings(ctx, req.Mappings, mapping.StoreOptions{
		ForceUpdate: req.Force,
		BatchID:     req.BatchID,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "StoreFailed",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, res)
}

func (srv *Server) HandleCacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, srv.resolver.CacheStats())
}

func (srv *Server) HandleCacheClear(c echo.Context) error {
	n := srv.resolver.ClearCache(c.QueryParam("pattern"))
	return c.JSON(http.StatusOK, countBody{Count: n})
}

func (srv *Server) HandleCachePreload(c echo.Context) error {
	var req mappingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidRequest",
			Message: fmt.Sprintf("%s", err),
		})
	}
	n := srv.resolver.Preload(req.Mappings)
	return c.JSON(http.StatusOK, countBody{Count: n})
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("lidmap-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "lidmap", Message: errorMessage})
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "lidmap"})
}
