// Package config loads process configuration from the environment, following
// the same envconfig+godotenv pattern every zkgate process shares.
package config

import (
	"errors"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// App holds settings common to every process.
type App struct {
	Name    string `envconfig:"APP_NAME" default:"zkgate"`
	Mode    string `envconfig:"APP_MODE" default:"development"`
	Version string `envconfig:"APP_VERSION" default:"dev"`
}

// Redis holds the shared store's connection settings.
type Redis struct {
	URL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
}

// Admission holds the Admission Controller's policy thresholds and listener
// ports.
type Admission struct {
	HTTPPort           string        `envconfig:"ADMISSION_HTTP_PORT" default:"8080"`
	GRPCHealthPort     string        `envconfig:"ADMISSION_GRPC_HEALTH_PORT" default:"9090"`
	RequirePayment     bool          `envconfig:"ADMISSION_REQUIRE_PAYMENT" default:"true"`
	MinPaymentAmount   uint64        `envconfig:"ADMISSION_MIN_PAYMENT_AMOUNT" default:"100000"`
	MinConfirmations   uint32        `envconfig:"ADMISSION_MIN_CONFIRMATIONS" default:"1"`
	ReservationTTL     time.Duration `envconfig:"ADMISSION_RESERVATION_TTL" default:"300s"`
	NullifierTTL       time.Duration `envconfig:"ADMISSION_NULLIFIER_TTL" default:"720h"`
	ExpectedImageIDHex string        `envconfig:"ADMISSION_EXPECTED_IMAGE_ID" default:""`
	VerifyingKeyPath   string        `envconfig:"ADMISSION_VERIFYING_KEY_PATH" default:"/etc/zkgate/verifying_key.bin"`
	VerifyConcurrency  int           `envconfig:"ADMISSION_VERIFY_CONCURRENCY" default:"4"`
}

// DeployAPI holds the deployment HTTP surface's listener settings.
type DeployAPI struct {
	HTTPPort string `envconfig:"DEPLOYAPI_HTTP_PORT" default:"8081"`
}

// BuildWorker holds the build queue worker's settings.
type BuildWorker struct {
	WorkDir        string        `envconfig:"BUILDWORKER_WORKDIR" default:"/tmp/zkgate-builds"`
	PopTimeout     time.Duration `envconfig:"BUILDWORKER_POP_TIMEOUT" default:"5s"`
	LeaseTTL       time.Duration `envconfig:"BUILDWORKER_LEASE_TTL" default:"120s"`
	JanitorPeriod  time.Duration `envconfig:"BUILDWORKER_JANITOR_PERIOD" default:"30s"`
	WebhookTimeout time.Duration `envconfig:"BUILDWORKER_WEBHOOK_TIMEOUT" default:"5s"`
	BuildCommand   string        `envconfig:"BUILDWORKER_BUILD_COMMAND" default:"cargo risczero build"`
}

// AdmissionConfig is the fully assembled configuration for cmd/admission.
type AdmissionConfig struct {
	App       App
	Redis     Redis
	Admission Admission
}

// DeployAPIConfig is the fully assembled configuration for cmd/deployapi.
type DeployAPIConfig struct {
	App       App
	Redis     Redis
	DeployAPI DeployAPI
}

// BuildWorkerConfig is the fully assembled configuration for cmd/buildworker.
type BuildWorkerConfig struct {
	App         App
	Redis       Redis
	BuildWorker BuildWorker
}

func loadEnvFile() {
	// A missing .env is normal in production; only the unexpected case (a
	// malformed .env that *is* present) is worth a log line.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: no .env loaded (%v); relying on process environment", err)
	}
}

// LoadAdmission loads cmd/admission's configuration.
func LoadAdmission() (cfg AdmissionConfig, err error) {
	loadEnvFile()
	if err = envconfig.Process("", &cfg.App); err != nil {
		return
	}
	if err = envconfig.Process("", &cfg.Redis); err != nil {
		return
	}
	err = envconfig.Process("", &cfg.Admission)
	return
}

// LoadDeployAPI loads cmd/deployapi's configuration.
func LoadDeployAPI() (cfg DeployAPIConfig, err error) {
	loadEnvFile()
	if err = envconfig.Process("", &cfg.App); err != nil {
		return
	}
	if err = envconfig.Process("", &cfg.Redis); err != nil {
		return
	}
	err = envconfig.Process("", &cfg.DeployAPI)
	return
}

// LoadBuildWorker loads cmd/buildworker's configuration.
func LoadBuildWorker() (cfg BuildWorkerConfig, err error) {
	loadEnvFile()
	if err = envconfig.Process("", &cfg.App); err != nil {
		return
	}
	if err = envconfig.Process("", &cfg.Redis); err != nil {
		return
	}
	err = envconfig.Process("", &cfg.BuildWorker)
	return
}
