package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"ebidash/internal/shared/testutil"
	"ebidash/pkg/contracts"
)

func TestHealthService(t *testing.T) {
	all := []string{"funding", "productivity", "administrative", "berkeley", "ip", "portfolio"}

	tests := []struct {
		name       string
		configured []string
		wantStatus string
		wantMsg    string
	}{
		{name: "all sources configured", configured: all, wantStatus: StatusReady, wantMsg: "6 sources configured"},
		{
			name:       "missing ledgers",
			configured: []string{"funding", "productivity"},
			wantStatus: StatusNotReady,
			wantMsg:    "unconfigured sources: administrative, berkeley, ip, portfolio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			hs := NewHealthService(contracts.GetVersionInfo(), newCatalog(t), tt.configured, logger)
			ctx := context.Background()

			ready := hs.ReadinessCheck(ctx)
			assert.Equal(t, tt.wantStatus, ready.Status)
			assert.Equal(t, tt.wantMsg, ready.Services["sources"].Message)
			assert.Equal(t, StatusReady, ready.Services["catalog"].Status)

			assert.Equal(t, StatusOK, hs.HealthCheck(ctx).Status)
			assert.Equal(t, StatusAlive, hs.LivenessCheck(ctx).Status)
			assert.Equal(t, contracts.Version, hs.Version()["version"])
		})
	}
}

func TestHealthService_NoCatalog(t *testing.T) {
	hs := NewHealthService(contracts.GetVersionInfo(), nil, nil, nil)
	ready := hs.ReadinessCheck(context.Background())
	assert.Equal(t, StatusNotReady, ready.Status)
	assert.Equal(t, "report catalog is empty", ready.Services["catalog"].Message)
}
