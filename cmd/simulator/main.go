// Command simulator drives a fleet over MQTT: vehicles report odometer and
// engine-hour readings as they move, and drivers periodically submit quick
// checklists.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-safety/internal/auth"
	"github.com/ukydev/fleet-safety/internal/broker"
	"github.com/ukydev/fleet-safety/internal/checklist"
	"github.com/ukydev/fleet-safety/internal/handlers"
	"github.com/ukydev/fleet-safety/internal/models"
)

type simConfig struct {
	Broker      string        `env:"MQTT_BROKER" envDefault:"tcp://localhost:1883"`
	ClientID    string        `env:"SIM_CLIENT_ID" envDefault:"fleet-simulator"`
	TopicPrefix string        `env:"MQTT_TOPIC_PREFIX" envDefault:"fleet"`
	JWTSecret   string        `env:"JWT_SECRET" envDefault:"default-secret-key-change-in-production"`
	BranchID    string        `env:"SIM_BRANCH_ID"`
	VehicleIDs  []string      `env:"SIM_VEHICLE_IDS,required" envSeparator:","`
	Tick        time.Duration `env:"SIM_TICK" envDefault:"2s"`
	QuickEvery  int           `env:"SIM_QUICK_EVERY" envDefault:"30"`
	DefectRate  float64       `env:"SIM_DEFECT_RATE" envDefault:"0.05"`
	OSRMURL     string        `env:"SIM_OSRM_URL"`
}

// Location represents a geographical location with latitude and longitude coordinates.
type Location = models.Location

// Cities for realistic routes
var cities = []Location{
	{Lat: 51.5074, Lon: -0.1278},  // London
	{Lat: 53.4808, Lon: -2.2426},  // Manchester
	{Lat: 52.4862, Lon: -1.8904},  // Birmingham
	{Lat: 51.4816, Lon: -3.1791},  // Cardiff
	{Lat: 55.9533, Lon: -3.1883},  // Edinburgh
	{Lat: 53.8008, Lon: -1.5491},  // Leeds
	{Lat: 51.4545, Lon: -2.5879},  // Bristol
	{Lat: 54.9783, Lon: -1.6178},  // Newcastle
}

func jitterLocation(base Location, meters float64) Location {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rand.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

func randomLocation() Location {
	base := cities[rand.Intn(len(cities))]
	return jitterLocation(base, 500) // start close to roads
}

// --- Routing & movement ---

type VehicleRoute struct {
	Points    []Location
	SegIndex  int
	SegOffset float64 // km along current segment
}

type VehicleState struct {
	VehicleID   string
	DriverToken string
	Position    Location
	SpeedKmh    float64
	Odometer    float64 // km
	EngineHours float64
	Route       *VehicleRoute
	Ticks       int
}

func haversineKm(a, b Location) float64 {
	R := 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return R * c
}

func lerp(a, b Location, t float64) Location {
	return Location{Lat: a.Lat + (b.Lat-a.Lat)*t, Lon: a.Lon + (b.Lon-a.Lon)*t}
}

// Router plans road routes. A nil router falls back to short jitter loops.
type Router interface {
	Route(start, end Location) ([]Location, error)
}

type osrmRouter struct {
	baseURL string
	client  *http.Client
}

func (r osrmRouter) Route(start, end Location) ([]Location, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		strings.TrimRight(r.baseURL, "/"), start.Lon, start.Lat, end.Lon, end.Lat)
	resp, err := r.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osrm status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var obj struct {
		Routes []struct {
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"routes"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	if len(obj.Routes) == 0 || len(obj.Routes[0].Geometry.Coordinates) < 2 {
		return nil, fmt.Errorf("no route")
	}
	coords := obj.Routes[0].Geometry.Coordinates
	pts := make([]Location, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		pts = append(pts, Location{Lat: c[1], Lon: c[0]})
	}
	return pts, nil
}

func planNewRoute(s *VehicleState, router Router) {
	start := s.Position
	fallback := &VehicleRoute{Points: []Location{start, jitterLocation(start, 2000)}}
	if router == nil {
		s.Route = fallback
		return
	}
	// pick far city
	end := jitterLocation(start, 2000)
	for i := 0; i < 10; i++ {
		cand := cities[rand.Intn(len(cities))]
		if haversineKm(start, cand) > 50 {
			end = jitterLocation(cand, 500)
			break
		}
	}
	pts, err := router.Route(start, end)
	if err != nil {
		s.Route = fallback
		return
	}
	s.Route = &VehicleRoute{Points: pts}
}

// stepAlongRoute moves the vehicle for tickSec at its current speed and
// returns the distance covered in km.
func stepAlongRoute(s *VehicleState, tickSec float64, router Router) float64 {
	if s.Route == nil || len(s.Route.Points) < 2 {
		planNewRoute(s, router)
	}
	remKm := s.SpeedKmh * (tickSec / 3600.0)
	moved := 0.0
	for remKm > 0 && s.Route.SegIndex < len(s.Route.Points)-1 {
		a := s.Route.Points[s.Route.SegIndex]
		b := s.Route.Points[s.Route.SegIndex+1]
		segLen := haversineKm(a, b)
		leftOnSeg := segLen - s.Route.SegOffset
		if remKm >= leftOnSeg {
			// advance to next segment
			s.Position = b
			s.Route.SegIndex++
			s.Route.SegOffset = 0
			remKm -= leftOnSeg
			moved += leftOnSeg
			continue
		}
		// stay on current segment
		t := (s.Route.SegOffset + remKm) / segLen
		t = math.Max(0, math.Min(1, t))
		s.Position = lerp(a, b, t)
		s.Route.SegOffset += remKm
		moved += remKm
		remKm = 0
	}
	// if reached end, plan new
	if s.Route.SegIndex >= len(s.Route.Points)-1 {
		planNewRoute(s, router)
	}
	return moved
}

// advance applies one tick of driving to the meters.
func advance(s *VehicleState, tick time.Duration, router Router) {
	// small speed noise
	s.SpeedKmh += (rand.Float64()*2 - 1) * 1.5
	s.SpeedKmh = math.Max(15, math.Min(90, s.SpeedKmh))

	s.Odometer += stepAlongRoute(s, tick.Seconds(), router)
	s.EngineHours += tick.Hours()
	s.Ticks++
}

func readingFromState(s *VehicleState, now time.Time) models.MeterReading {
	odo := math.Round(s.Odometer*10) / 10
	hours := math.Round(s.EngineHours*100) / 100
	pos := s.Position
	return models.MeterReading{
		VehicleID:   s.VehicleID,
		Timestamp:   now,
		Location:    &pos,
		Odometer:    &odo,
		EngineHours: &hours,
	}
}

// quickChecklist answers every slug, failing each with probability
// defectRate.
func quickChecklist(s *VehicleState, slugs []string, defectRate float64) handlers.QuickInspectionRequest {
	req := handlers.QuickInspectionRequest{
		VehicleID: s.VehicleID,
		Type:      models.InspectionTypePreTrip,
		Answers:   make(map[string]string, len(slugs)),
	}
	for _, slug := range slugs {
		if gofakeit.Float64Range(0, 1) < defectRate {
			req.Answers[slug] = "fail"
			if req.Defects == nil {
				req.Defects = map[string]string{}
			}
			req.Defects[slug] = gofakeit.Sentence(6)
			continue
		}
		req.Answers[slug] = "pass"
	}
	odo := math.Round(s.Odometer)
	req.OdometerReading = &odo
	return req
}

func envelope(token string, v any) (broker.Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return broker.Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	return broker.Envelope{Token: token, Data: data}, nil
}

type simulator struct {
	cfg       simConfig
	publisher *broker.Publisher
	router    Router
	slugs     []string
}

func (sim *simulator) tick(ctx context.Context, s *VehicleState) {
	advance(s, sim.cfg.Tick, sim.router)

	env, err := envelope(s.DriverToken, readingFromState(s, time.Now().UTC()))
	if err != nil {
		log.WithError(err).Error("Failed to build reading")
		return
	}
	if err := sim.publisher.PublishJSON(ctx, broker.ReadingsTopic(sim.cfg.TopicPrefix, s.VehicleID), env); err != nil {
		log.WithError(err).WithField("vehicle_id", s.VehicleID).Error("Failed to publish reading")
		return
	}
	log.WithFields(log.Fields{"vehicle_id": s.VehicleID, "odometer": s.Odometer}).Debug("Sent reading")

	if sim.cfg.QuickEvery <= 0 || s.Ticks%sim.cfg.QuickEvery != 0 {
		return
	}
	check := quickChecklist(s, sim.slugs, sim.cfg.DefectRate)
	env, err = envelope(s.DriverToken, check)
	if err != nil {
		log.WithError(err).Error("Failed to build quick check")
		return
	}
	if err := sim.publisher.PublishJSON(ctx, broker.QuickInspectionTopic(sim.cfg.TopicPrefix), env); err != nil {
		log.WithError(err).WithField("vehicle_id", s.VehicleID).Error("Failed to publish quick check")
		return
	}
	log.WithFields(log.Fields{"vehicle_id": s.VehicleID, "defects": len(check.Defects)}).Info("Sent quick check")
}

func (sim *simulator) simulateVehicle(ctx context.Context, s *VehicleState) {
	tick := time.NewTicker(sim.cfg.Tick)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			sim.tick(ctx, s)
		}
	}
}

// newStates signs one driver token per vehicle.
func newStates(cfg simConfig, tokens *auth.Service) ([]*VehicleState, error) {
	states := make([]*VehicleState, 0, len(cfg.VehicleIDs))
	for i, id := range cfg.VehicleIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		token, err := tokens.GenerateToken(models.Claims{
			UserID:   fmt.Sprintf("driver-%d", i+1),
			Username: strings.ToLower(gofakeit.FirstName()),
			Role:     models.RoleDriver,
			BranchID: cfg.BranchID,
		})
		if err != nil {
			return nil, err
		}
		states = append(states, &VehicleState{
			VehicleID:   id,
			DriverToken: token,
			Position:    randomLocation(),
			SpeedKmh:    30 + rand.Float64()*30,
		})
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("no vehicle ids configured")
	}
	return states, nil
}

func main() {
	_ = godotenv.Load()
	var cfg simConfig
	if err := env.Parse(&cfg); err != nil {
		log.WithError(err).Fatal("Invalid simulator configuration")
	}

	tokens, err := auth.NewService(cfg.JWTSecret, 7*24*time.Hour)
	if err != nil {
		log.WithError(err).Fatal("Failed to create token service")
	}
	templates, err := checklist.NewProvider()
	if err != nil {
		log.WithError(err).Fatal("Failed to load checklist catalog")
	}
	states, err := newStates(cfg, tokens)
	if err != nil {
		log.WithError(err).Fatal("Failed to prepare vehicles")
	}

	client, err := broker.Connect(broker.Options{Broker: cfg.Broker, ClientID: cfg.ClientID}, log.WithField("component", "simulator"))
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MQTT broker")
	}
	defer client.Disconnect(250)

	sim := &simulator{
		cfg:       cfg,
		publisher: broker.NewPublisher(client, cfg.TopicPrefix),
		slugs:     templates.QuickTemplate().Slugs(),
	}
	if cfg.OSRMURL != "" {
		sim.router = osrmRouter{baseURL: cfg.OSRMURL, client: &http.Client{Timeout: 10 * time.Second}}
	}

	log.WithFields(log.Fields{
		"vehicles": len(states),
		"broker":   cfg.Broker,
		"interval": cfg.Tick,
	}).Info("Starting fleet simulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	for _, s := range states {
		go sim.simulateVehicle(ctx, s)
	}
	<-ctx.Done()
	log.Info("Simulation stopped")
}
