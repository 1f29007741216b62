package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-safety/internal/broker"
	"github.com/ukydev/fleet-safety/internal/lifecycle"
	"github.com/ukydev/fleet-safety/internal/models"
)

// QuickInspectionRequest is the body of a driver quick check.
type QuickInspectionRequest struct {
	VehicleID       string                `json:"vehicle_id"`
	Type            models.InspectionType `json:"type,omitempty"`
	Answers         map[string]string     `json:"answers"`
	Defects         map[string]string     `json:"defects,omitempty"`
	OdometerReading *float64              `json:"odometer_reading,omitempty"`
	Notes           string                `json:"notes,omitempty"`
}

// QuickInspectionHandler submits driver quick checks.
type QuickInspectionHandler struct {
	service LifecycleService
	log     *logrus.Entry
}

// NewQuickInspectionHandler creates a quick inspection handler.
func NewQuickInspectionHandler(service LifecycleService, log *logrus.Entry) *QuickInspectionHandler {
	return &QuickInspectionHandler{
		service: service,
		log:     log.WithField("handler", "quick_inspection"),
	}
}

// Handle implements broker.Handler.
func (h *QuickInspectionHandler) Handle(ctx context.Context, msg broker.Message) error {
	const op = "handlers.QuickInspection"
	sc, err := ScopeFromContext(ctx)
	if err != nil {
		return err
	}

	var req QuickInspectionRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return fmt.Errorf("%s: %w", op, models.ValidationError("invalid JSON: %v", err))
	}
	if req.VehicleID == "" {
		return fmt.Errorf("%s: %w", op, models.ValidationError("vehicle_id is required"))
	}

	out, err := h.service.SubmitQuickInspection(ctx, sc, lifecycle.QuickInspectionParams{
		VehicleID:       req.VehicleID,
		Type:            req.Type,
		Answers:         req.Answers,
		Defects:         req.Defects,
		OdometerReading: req.OdometerReading,
		Notes:           req.Notes,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	fields := logrus.Fields{
		"inspection_id":  out.Inspection.ID.Hex(),
		"vehicle_id":     req.VehicleID,
		"overall_result": out.Inspection.OverallResult,
		"can_operate":    out.CanOperate,
	}
	if out.WorkOrder != nil {
		fields["work_order_id"] = out.WorkOrder.ID.Hex()
	}
	h.log.WithFields(fields).Info("quick inspection submitted")
	return nil
}
