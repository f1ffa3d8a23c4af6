package handlers

import (
	"errors"
	"net/http"

	"github.com/cloo-solutions/recall/internal/api"
	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/platform"
)

// handlePlatformError maps meeting-platform failures. Domain errors keep
// their own status; other platform responses are reported as a bad gateway.
func handlePlatformError(w http.ResponseWriter, err error, message string) {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		api.HandleError(w, err)
		return
	}
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) {
		api.Error(w, http.StatusBadGateway, message)
		return
	}
	api.Error(w, http.StatusInternalServerError, message)
}
