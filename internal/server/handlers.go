package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"opencfg/internal/config"
)

// APIResponse is the uniform envelope of every JSON endpoint.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

const maskedValue = "********"

type configPayload struct {
	Values         map[string]any           `json:"values"`
	Sources        map[string]config.Source `json:"sources"`
	RestartPending bool                     `json:"restart_pending"`
	PendingKeys    []string                 `json:"pending_keys,omitempty"`
	UserConfigPath string                   `json:"user_config_path"`
}

// handleGetConfig returns the published snapshot with provenance. Values
// of sensitive keys are masked; the local CLI shows them, the network
// surface does not.
func (s *Server) handleGetConfig(c *gin.Context) {
	cfg := s.engine.Current()
	values := cfg.Values()
	for key, v := range values {
		spec, ok := config.Spec(key)
		if ok && spec.Sensitive {
			if str, isStr := v.(string); isStr && str != "" {
				values[key] = maskedValue
			}
		}
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: configPayload{
		Values:         values,
		Sources:        cfg.Sources(),
		RestartPending: s.engine.RestartPending(),
		PendingKeys:    s.engine.PendingKeys(),
		UserConfigPath: s.engine.UserConfigPath(),
	}})
}

type updateRequest struct {
	Values  map[string]any `json:"values" binding:"required"`
	Persist *bool          `json:"persist"`
}

// handlePutConfig applies a change request. Rejected requests return 422
// with the full accumulated validation result so the UI can show every
// problem at once.
func (s *Server) handlePutConfig(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	persist := true
	if req.Persist != nil {
		persist = *req.Persist
	}
	result, err := s.engine.Apply(config.ChangeRequest{Values: req.Values, Persist: persist})
	if err != nil {
		var validationErr *config.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusUnprocessableEntity, APIResponse{Success: false, Data: result, Error: err.Error()})
			return
		}
		var unknown *config.UnknownKeyError
		if errors.As(err, &unknown) {
			c.JSON(http.StatusBadRequest, APIResponse{Success: false, Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, APIResponse{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: result})
}

// handleValidateConfig dry-runs a change request: the candidate snapshot
// is resolved and validated but nothing is published or persisted.
func (s *Server) handleValidateConfig(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	validation, err := s.engine.DryRun(req.Values)
	if err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: validation})
}

// handleDiagnostics renders the diagnostics report. It always answers 200:
// a degraded section is data, not a transport failure.
func (s *Server) handleDiagnostics(c *gin.Context) {
	report := s.aggregator.Report(c.Request.Context())
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: report})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: gin.H{
		"status":          "ok",
		"restart_pending": s.engine.RestartPending(),
	}})
}
