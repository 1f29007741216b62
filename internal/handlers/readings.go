package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-safety/internal/broker"
	"github.com/ukydev/fleet-safety/internal/models"
)

// ReadingHandler applies meter readings published on
// <prefix>/vehicles/<id>/readings.
type ReadingHandler struct {
	service LifecycleService
	prefix  string
	log     *logrus.Entry
}

// NewReadingHandler creates a reading handler for topics under prefix.
func NewReadingHandler(service LifecycleService, prefix string, log *logrus.Entry) *ReadingHandler {
	return &ReadingHandler{
		service: service,
		prefix:  prefix,
		log:     log.WithField("handler", "readings"),
	}
}

// Handle implements broker.Handler.
func (h *ReadingHandler) Handle(ctx context.Context, msg broker.Message) error {
	const op = "handlers.Reading"
	sc, err := ScopeFromContext(ctx)
	if err != nil {
		return err
	}

	vehicleID, ok := broker.VehicleIDFromTopic(h.prefix, msg.Topic)
	if !ok {
		return fmt.Errorf("%s: %w", op, models.ValidationError("not a readings topic: %s", msg.Topic))
	}

	var reading models.MeterReading
	if err := json.Unmarshal(msg.Payload, &reading); err != nil {
		return fmt.Errorf("%s: %w", op, models.ValidationError("invalid JSON: %v", err))
	}
	if reading.VehicleID != "" && reading.VehicleID != vehicleID {
		return fmt.Errorf("%s: %w", op, models.ValidationError("reading for %s published on topic of %s", reading.VehicleID, vehicleID))
	}
	reading.VehicleID = vehicleID
	if reading.Odometer == nil && reading.EngineHours == nil {
		return fmt.Errorf("%s: %w", op, models.ValidationError("reading carries no meter value"))
	}

	statuses, err := h.service.CheckMeterSchedules(ctx, sc, reading)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	due := 0
	for _, st := range statuses {
		if st.Due {
			due++
		}
	}
	h.log.WithFields(logrus.Fields{
		"vehicle_id": vehicleID,
		"schedules":  len(statuses),
		"due":        due,
	}).Debug("meter reading applied")
	return nil
}
