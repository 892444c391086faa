package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/veritime/attendance-service/internal/biometric"
	"github.com/veritime/attendance-service/internal/capture"
	"github.com/veritime/attendance-service/internal/client"
	"github.com/veritime/attendance-service/internal/config"
	"github.com/veritime/attendance-service/internal/credential"
	"github.com/veritime/attendance-service/internal/handler"
	"github.com/veritime/attendance-service/internal/loader"
	"github.com/veritime/attendance-service/internal/location"
	"github.com/veritime/attendance-service/internal/middleware"
	"github.com/veritime/attendance-service/internal/models"
	"github.com/veritime/attendance-service/internal/repository"
	"github.com/veritime/attendance-service/internal/service"
	"github.com/veritime/attendance-service/internal/telemetry"
	"github.com/veritime/attendance-service/internal/util"
	"github.com/veritime/attendance-service/internal/util/logger"
)

var version = "development"

// stubCamera serves a synthetic frame stream. Real deployments plug in the
// device bridge; the stub keeps local development working without hardware.
type stubCamera struct{}

type stubStream struct{}

func (s *stubStream) Frame(ctx context.Context) (biometric.Frame, error) {
	pix := make([]uint8, 320*240)
	for i := range pix {
		pix[i] = uint8((i*31 + i/320) % 255)
	}
	return biometric.Frame{Width: 320, Height: 240, Pix: pix}, nil
}

func (s *stubStream) Close() error { return nil }

func (c *stubCamera) Open(ctx context.Context) (capture.FrameStream, error) {
	return &stubStream{}, nil
}

// stubGeo reports a fixed position for local development.
type stubGeo struct{}

func (g *stubGeo) GetFix(ctx context.Context) (models.GeoFix, error) {
	return models.GeoFix{Latitude: 29.3759, Longitude: 47.9774, ObservedAt: time.Now().UTC()}, nil
}

// stubModel is immediately ready.
type stubModel struct{}

func (m *stubModel) Ready() bool                    { return true }
func (m *stubModel) Load(ctx context.Context) error { return nil }

func main() {
	configPath := "config/app-config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		configPath = v
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loader.LoadConfig(configPath)
	if err != nil {
		panic(fmt.Errorf("failed to load config: %w", err))
	}

	logger.ReplaceGlobal(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
	})
	defer logger.Sync()

	if cfg.DatabaseURLSecret != "" || cfg.JWTSigningKeySecret != "" {
		secrets, err := config.NewAWSSecretsLoader(ctx)
		if err != nil {
			logger.Fatalf("Secrets Manager init failed: %v", err)
		}
		if err := cfg.ResolveSecrets(ctx, secrets); err != nil {
			logger.Fatalf("secret resolution failed: %v", err)
		}
	}

	rcli, err := client.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatalf("Redis init failed: %v", err)
	}
	defer rcli.Close()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	shipper, err := telemetry.NewKafkaAuditShipper(cfg.Telemetry.Kafka)
	if err != nil {
		logger.Fatalf("Kafka shipper init failed: %v", err)
	}
	shipper.Start()
	defer shipper.Stop(context.Background())

	policyRepo := repository.NewPostgresPolicyRepository(db)
	faceRepo := repository.NewPostgresFaceProfileRepository(db)
	credRepo := repository.NewPostgresCredentialRepository(db)
	punchRepo := repository.NewPostgresPunchRepository(db)

	detector := biometric.NewCenterVarianceDetector()
	embedder := biometric.NewPixelStatEmbedder(detector, cfg.Biometric.DescriptorSize)
	matcher := biometric.NewMatcher(cfg.Biometric)

	captures := capture.NewManager(&stubCamera{}, &stubModel{}, detector, embedder, cfg.Capture)
	fixes := location.NewFixService(&stubGeo{}, rcli, cfg.Geofence)
	authenticator := credential.NewAuthenticator(credRepo, rcli, cfg.Credential)

	attendanceSvc := service.NewAttendanceService(
		policyRepo, faceRepo, punchRepo, matcher, captures, fixes, shipper)

	jwtManager := util.NewJWTManager(util.JWTConfig{
		SigningKey: cfg.JWTSigningKey,
		Issuer:     "attendance-service",
	})

	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	credentialHandler := handler.NewCredentialHandler(authenticator, shipper)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Get("/healthz", handler.HealthHandler(version))

	r.Route("/api/v1", func(rt chi.Router) {
		rt.Use(middleware.EmployeeAuth(jwtManager))

		rt.Route("/attendance", func(at chi.Router) {
			at.Post("/enrollment/begin", attendanceHandler.BeginEnrollment)
			at.Post("/enrollment/complete", attendanceHandler.CompleteEnrollment)
			at.Post("/verification/begin", attendanceHandler.BeginVerification)
			at.Post("/capture", attendanceHandler.SubmitCapture)
			at.Post("/cancel", attendanceHandler.CancelCapture)
			at.Get("/geofence", attendanceHandler.GeofenceCheck)
			at.Post("/punch", attendanceHandler.AttemptPunch)
		})

		rt.Route("/credentials", func(ct chi.Router) {
			ct.Post("/register/begin", credentialHandler.BeginRegistration)
			ct.Post("/register/finish", credentialHandler.FinishRegistration)
			ct.Post("/authenticate/begin", credentialHandler.BeginAuthentication)
			ct.Post("/authenticate/finish", credentialHandler.FinishAuthentication)
		})
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("attendance service %s listening on %s", version, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
}
