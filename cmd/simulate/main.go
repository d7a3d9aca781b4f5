package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	ConfirmRatio  float64
	CancelRatio   float64
	ReadRatio     float64
	LinkLimit     int
	HotProviders  int // bookings concentrate on this many providers to force races
	TargetDays    int // how many days ahead bookings aim at
	PostgresDSN   string
	JWTSecret     []byte
	ClinicTZ      *time.Location
	TokenLifetime time.Duration
}

type link struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	SlotMins   int
}

type booked struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	ProviderID uuid.UUID
}

type DataPool struct {
	Links        []link
	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, p99, max time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), pct(99), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking      OperationMetrics
	Confirm      OperationMetrics
	Cancel       OperationMetrics
	ReadByID     OperationMetrics
	List         OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	tokens  sync.Map // actor id -> bearer token
	log     zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.Init("simulate", baseCfg.Env, baseCfg.LogLevel)

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("links", len(dataPool.Links)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	sim.Run()
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("overlap check")
	}
	fmt.Printf("Overlapping active appointment pairs: %d\n", overlaps)
	if overlaps > 0 {
		os.Exit(1)
	}
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio:  getFloat("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.05),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		LinkLimit:     getInt("SIM_LINK_LIMIT", 4000),
		HotProviders:  getInt("SIM_HOT_PROVIDERS", 5),
		TargetDays:    getInt("SIM_TARGET_DAYS", 3),
		PostgresDSN:   base.PostgresDSN,
		JWTSecret:     []byte(base.JWTSecret),
		ClinicTZ:      base.Location,
		TokenLifetime: time.Hour,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HotProviders <= 0 || cfg.TargetDays <= 0 {
		return fmt.Errorf("SIM_HOT_PROVIDERS and SIM_TARGET_DAYS must be > 0")
	}
	return nil
}

// loadDataPool picks active links of the busiest verified providers so that
// concurrent bookings collide.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	rows, err := pool.Query(ctx, `
		WITH hot AS (
			SELECT p.id, p.slot_duration_minutes
			FROM providers p
			JOIN patient_provider_links l ON l.provider_id = p.id AND l.status = 'active'
			WHERE p.verification_status = 'verified'
			GROUP BY p.id
			ORDER BY count(*) DESC
			LIMIT $1
		)
		SELECT l.id, l.patient_id, l.provider_id, hot.slot_duration_minutes
		FROM patient_provider_links l
		JOIN hot ON hot.id = l.provider_id
		WHERE l.status = 'active'
		LIMIT $2
	`, cfg.HotProviders, cfg.LinkLimit)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	defer rows.Close()

	dataPool := &DataPool{}
	for rows.Next() {
		var l link
		if err := rows.Scan(&l.ID, &l.PatientID, &l.ProviderID, &l.SlotMins); err != nil {
			return nil, err
		}
		dataPool.Links = append(dataPool.Links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dataPool.Links) == 0 {
		return nil, fmt.Errorf("no active links loaded, run cmd/seed first")
	}
	return dataPool, nil
}

func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.provider_id = b.provider_id
		 AND a.id < b.id
		 AND a.scheduled_at < b.ends_at
		 AND b.scheduled_at < a.ends_at
		WHERE a.status IN ('pending', 'confirmed')
		  AND b.status IN ('pending', 'confirmed')
	`).Scan(&n)
	return n, err
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < c.BookingRatio:
				s.doBooking(ctx, rng)
			case r < c.BookingRatio+c.ConfirmRatio:
				s.doConfirm(ctx, rng)
			case r < c.BookingRatio+c.ConfirmRatio+c.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doList(ctx, rng)
				case 2:
					s.doAvailability(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) token(actor appointment.Actor) string {
	if t, ok := s.tokens.Load(actor.ID); ok {
		return t.(string)
	}
	t, err := api.SignToken(s.config.JWTSecret, actor, s.config.TokenLifetime)
	if err != nil {
		s.log.Fatal().Err(err).Msg("sign token")
	}
	s.tokens.Store(actor.ID, t)
	return t
}

func (s *Simulator) call(ctx context.Context, method, path string, actor appointment.Actor, body any) (int, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token(actor))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	return resp.StatusCode, out.Bytes(), err
}

// targetTime picks an on-grid start in the next few days during office
// hours; many workers land on the same few instants.
func (s *Simulator) targetTime(rng *rand.Rand, slotMins int) time.Time {
	if slotMins <= 0 {
		slotMins = 30
	}
	day := time.Now().In(s.config.ClinicTZ).AddDate(0, 0, 1+rng.Intn(s.config.TargetDays))
	y, m, d := day.Date()
	open := time.Date(y, m, d, 9, 0, 0, 0, s.config.ClinicTZ)
	return open.Add(time.Duration(rng.Intn(8*60/slotMins)*slotMins) * time.Minute)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	l := s.pool.Links[rng.Intn(len(s.pool.Links))]
	patient := appointment.Actor{ID: l.PatientID, Role: appointment.RolePatient}

	start := time.Now()
	status, body, err := s.call(ctx, http.MethodPost, "/appointments", patient, map[string]any{
		"link_id":      l.ID,
		"scheduled_at": s.targetTime(rng, l.SlotMins),
		"is_online":    rng.Intn(4) == 0,
	})
	s.metrics.Booking.Record(time.Since(start), status, err)

	if err == nil && status == http.StatusCreated {
		var resp api.AppointmentResponse
		if json.Unmarshal(body, &resp) == nil && resp.ID != uuid.Nil {
			s.pool.AddAppointment(booked{ID: resp.ID, PatientID: resp.PatientID, ProviderID: resp.ProviderID})
		}
	}
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	provider := appointment.Actor{ID: b.ProviderID, Role: appointment.RoleProvider}

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodPost, "/appointments/"+b.ID.String()+"/confirm", provider, nil)
	s.metrics.Confirm.Record(time.Since(start), status, err)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	patient := appointment.Actor{ID: b.PatientID, Role: appointment.RolePatient}

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodPost, "/appointments/"+b.ID.String()+"/cancel", patient,
		map[string]string{"reason": "simulated cancellation"})
	s.metrics.Cancel.Record(time.Since(start), status, err)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	patient := appointment.Actor{ID: b.PatientID, Role: appointment.RolePatient}

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodGet, "/appointments/"+b.ID.String(), patient, nil)
	s.metrics.ReadByID.Record(time.Since(start), status, err)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	l := s.pool.Links[rng.Intn(len(s.pool.Links))]
	provider := appointment.Actor{ID: l.ProviderID, Role: appointment.RoleProvider}

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodGet, "/appointments?status=pending,confirmed&limit=20", provider, nil)
	s.metrics.List.Record(time.Since(start), status, err)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	l := s.pool.Links[rng.Intn(len(s.pool.Links))]
	patient := appointment.Actor{ID: l.PatientID, Role: appointment.RolePatient}
	date := s.targetTime(rng, l.SlotMins).Format("2006-01-02")

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodGet, "/providers/"+l.ProviderID.String()+"/availability?date="+date, patient, nil)
	s.metrics.Availability.Record(time.Since(start), status, err)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Hot providers: %d\n", s.config.HotProviders)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List", &s.metrics.List)
	printOperationReport("Availability", &s.metrics.Availability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, p50, p95, p99, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s p99=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond),
		p99.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
