// Package config loads the reconciler configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/orderflow-reconciler/internal/validation"
)

// Order store backends.
const (
	BackendDirectus = "directus"
	BackendDynamoDB = "dynamodb"
)

// EnvInProd selects the production Directus instance.
const EnvInProd = "inprod"

// Config is built once at startup and handed to every component. Env var names match the
// ones the storefront deployment already exports.
type Config struct {
	Env string `envconfig:"ENV" default:"noprod"`

	// order store
	Backend              string `envconfig:"ORDER_STORE_BACKEND" default:"directus" validate:"oneof=directus dynamodb"`
	DirectusURLInProd    string `envconfig:"URL_OF_DIRECTUS_INPROD"`
	DirectusURLNoProd    string `envconfig:"URL_OF_DIRECTUS_NOPROD"`
	DirectusToken        string `envconfig:"DIRECTUS_TOKEN"`
	OrdersRoute          string `envconfig:"ROUTE_OF_DIRECTUS_FOR_DGEASS_ORDER"`
	ProductsRoute        string `envconfig:"ROUTE_OF_DIRECTUS_FOR_DGEASS_PRODUCT"`
	TransactionLogsRoute string `envconfig:"ROUTE_OF_DIRECTUS_FOR_DGEASS_TRANSACTION_LOG"`
	OrdersTable          string `envconfig:"ORDERS_TABLE"`
	ProductsTable        string `envconfig:"PRODUCTS_TABLE"`
	TransactionLogsTable string `envconfig:"TRANSACTION_LOGS_TABLE"`

	// payment gateway
	CinetPayCheckURL string `envconfig:"CINETPAY_CHECK_URL" validate:"required,url"`
	CinetPayAPIKey   string `envconfig:"CINETPAY_API_KEY" validate:"required"`
	CinetPaySiteID   string `envconfig:"CINETPAY_SITE_ID" validate:"required"`

	// subscriber / email service
	ListmonkURL        string `envconfig:"LISTMONK_API_URL" validate:"required,url"`
	ListmonkUsername   string `envconfig:"LISTMONK_API_USERNAME" validate:"required"`
	ListmonkPassword   string `envconfig:"LISTMONK_API_PASSWORD" validate:"required"`
	ListmonkListID     int    `envconfig:"LISTMONK_LIST_ID" default:"3" validate:"gt=0"`
	ListmonkTemplateID int    `envconfig:"LISTMONK_TEMPLATE_ID" default:"4" validate:"gt=0"`

	// object storage
	MinioHost      string `envconfig:"MINIO_HOST" validate:"required"`
	MinioPort      int    `envconfig:"MINIO_PORT" default:"9000" validate:"gt=0,lte=65535"`
	MinioSecure    bool   `envconfig:"MINIO_SECURE" default:"false"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY" validate:"required"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY" validate:"required"`
	MinioBucket    string `envconfig:"MINIO_BUCKET_NAME" validate:"required"`
	MinioProxy     string `envconfig:"MINIO_PROXY"`
	MinioRegion    string `envconfig:"MINIO_REGION" default:"us-east-1"`

	// reconciliation
	PollIntervalSeconds int           `envconfig:"POLL_INTERVAL_SECONDS" default:"30" validate:"gt=0"`
	AbandonAfterHours   int           `envconfig:"ABANDON_AFTER_HOURS" default:"24" validate:"gt=0"`
	SignedURLDays       int           `envconfig:"SIGNED_URL_DAYS" default:"7" validate:"gt=0,lte=7"`
	Workers             int           `envconfig:"WORKERS" default:"4" validate:"min=1,max=64"`
	HTTPTimeoutSeconds  int           `envconfig:"HTTP_TIMEOUT_SECONDS" default:"0" validate:"gte=0"`
	FailureLogInterval  time.Duration `envconfig:"FAILURE_LOG_INTERVAL" default:"10m" validate:"gte=0"`

	// optional AWS integrations
	AWSRegion           string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSEndpointOverride string `envconfig:"AWS_ENDPOINT_OVERRIDE"`
	EventsQueueURL      string `envconfig:"EVENTS_QUEUE_URL"`
	MetricsNamespace    string `envconfig:"METRICS_NAMESPACE"`

	HealthAddr string `envconfig:"HEALTH_ADDR"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`

	Logger logrus.FieldLogger `ignored:"true" validate:"-"`
}

// Load reads the environment, validates the result and attaches a logger.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, err
	}
	cfg.Logger = logger.WithField("app", "order-reconciler")
	return cfg, nil
}

// Validate checks field rules and the backend-specific requirements.
func (c Config) Validate() error {
	v := validation.New()
	v.RegisterStructValidation(backendStructValidation, Config{})
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %v", validation.Fields(err))
	}
	return nil
}

// backendStructValidation requires the settings of whichever order store backend is selected.
func backendStructValidation(sl validatorv10.StructLevel) {
	c := sl.Current().Interface().(Config)
	switch c.Backend {
	case BackendDirectus:
		if c.DirectusURL() == "" {
			field := "DirectusURLNoProd"
			if c.Env == EnvInProd {
				field = "DirectusURLInProd"
			}
			sl.ReportError(c.DirectusURL(), field, field, "required_for_env", c.Env)
		}
		if c.OrdersRoute == "" {
			sl.ReportError(c.OrdersRoute, "OrdersRoute", "OrdersRoute", "required_for_directus", "")
		}
		if c.ProductsRoute == "" {
			sl.ReportError(c.ProductsRoute, "ProductsRoute", "ProductsRoute", "required_for_directus", "")
		}
		if c.TransactionLogsRoute == "" {
			sl.ReportError(c.TransactionLogsRoute, "TransactionLogsRoute", "TransactionLogsRoute", "required_for_directus", "")
		}
	case BackendDynamoDB:
		if c.OrdersTable == "" {
			sl.ReportError(c.OrdersTable, "OrdersTable", "OrdersTable", "required_for_dynamodb", "")
		}
		if c.ProductsTable == "" {
			sl.ReportError(c.ProductsTable, "ProductsTable", "ProductsTable", "required_for_dynamodb", "")
		}
		if c.TransactionLogsTable == "" {
			sl.ReportError(c.TransactionLogsTable, "TransactionLogsTable", "TransactionLogsTable", "required_for_dynamodb", "")
		}
	}
}

// DirectusURL returns the Directus base URL for the selected environment.
func (c Config) DirectusURL() string {
	if c.Env == EnvInProd {
		return c.DirectusURLInProd
	}
	return c.DirectusURLNoProd
}

// PollInterval is the sleep between two reconciliation cycles.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// AbandonAfter is the age past which a STARTED order is abandoned.
func (c Config) AbandonAfter() time.Duration {
	return time.Duration(c.AbandonAfterHours) * time.Hour
}

// SignedURLValidity is how long emailed download links stay valid.
func (c Config) SignedURLValidity() time.Duration {
	return time.Duration(c.SignedURLDays) * 24 * time.Hour
}

// HTTPTimeout is zero (no client timeout) unless HTTP_TIMEOUT_SECONDS is set.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// MinioInternalHost is the host:port presigned URLs are issued for.
func (c Config) MinioInternalHost() string {
	return fmt.Sprintf("%s:%d", c.MinioHost, c.MinioPort)
}

// NewLogger builds a logrus logger writing to stdout.
func NewLogger(level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(lvl)
	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}
