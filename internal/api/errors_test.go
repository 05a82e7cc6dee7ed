package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/playmesh/playmesh/internal/orchestration"
	"github.com/playmesh/playmesh/internal/placement"
	"github.com/playmesh/playmesh/internal/providers"
	"github.com/playmesh/playmesh/internal/storage"
	"github.com/playmesh/playmesh/models"
)

func TestMapDomainError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"unknown platform", orchestration.ErrUnknownPlatform, http.StatusNotFound, KindUnknownPlatform},
		{"wrapped unknown platform", fmt.Errorf("%w: n64", orchestration.ErrUnknownPlatform), http.StatusNotFound, KindUnknownPlatform},
		{"not found", storage.ErrNotFound, http.StatusNotFound, KindNotFound},
		{"gone", orchestration.ErrGone, http.StatusGone, KindGone},
		{"conflict", storage.ErrConflict, http.StatusConflict, KindConflict},
		{"busy", orchestration.ErrBusy, http.StatusServiceUnavailable, KindInsufficientProviders},
		{"no providers", orchestration.ErrInsufficientProviders, http.StatusServiceUnavailable, KindInsufficientProviders},
		{"no candidate", placement.ErrNoCandidate, http.StatusServiceUnavailable, KindInsufficientProviders},
		{"provider error", &providers.Error{Provider: models.ProviderTensorDock, Op: "create", Msg: "boom"}, http.StatusBadGateway, KindProviderError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, KindInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := mapDomainError(tc.err)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.kind, apiErr.Kind)
		})
	}
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, KindUnauthorized, kindForStatus(http.StatusUnauthorized))
	assert.Equal(t, KindForbidden, kindForStatus(http.StatusForbidden))
	assert.Equal(t, KindInternal, kindForStatus(http.StatusTeapot))
}
