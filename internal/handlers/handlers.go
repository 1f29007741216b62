// Package handlers turns inbound MQTT submissions into lifecycle operations.
package handlers

import (
	"context"
	"fmt"

	"github.com/ukydev/fleet-safety/internal/lifecycle"
	"github.com/ukydev/fleet-safety/internal/middleware"
	"github.com/ukydev/fleet-safety/internal/models"
	"github.com/ukydev/fleet-safety/internal/recurrence"
)

// LifecycleService is the part of lifecycle.Service the handlers drive.
type LifecycleService interface {
	CheckMeterSchedules(ctx context.Context, sc lifecycle.Scope, reading models.MeterReading) ([]recurrence.MeterStatus, error)
	SubmitQuickInspection(ctx context.Context, sc lifecycle.Scope, p lifecycle.QuickInspectionParams) (*lifecycle.InspectionOutcome, error)
}

// ScopeFromContext builds the lifecycle scope of the authenticated user.
func ScopeFromContext(ctx context.Context) (lifecycle.Scope, error) {
	claims, ok := middleware.GetUserFromContext(ctx)
	if !ok {
		return lifecycle.Scope{}, fmt.Errorf("handlers: %w", middleware.ErrUnauthenticated)
	}
	return lifecycle.Scope{ActorID: claims.UserID, BranchID: claims.BranchID}, nil
}
