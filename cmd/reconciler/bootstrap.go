package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/orderflow-reconciler/internal/aws"
	"github.com/imrishuroy/orderflow-reconciler/internal/config"
	"github.com/imrishuroy/orderflow-reconciler/internal/mailer"
	"github.com/imrishuroy/orderflow-reconciler/internal/orders"
	"github.com/imrishuroy/orderflow-reconciler/internal/payment"
	"github.com/imrishuroy/orderflow-reconciler/internal/reconcile"
	"github.com/imrishuroy/orderflow-reconciler/internal/storage"
)

func setup(ctx context.Context) (config.Config, *reconcile.Reconciler, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	rec, err := newReconciler(ctx, cfg)
	if err != nil {
		return cfg, nil, err
	}
	cfg.Logger.WithFields(logrus.Fields{
		"backend": cfg.Backend,
		"env":     cfg.Env,
		"workers": cfg.Workers,
	}).Info("reconciler configured")
	return cfg, rec, nil
}

// newReconciler wires every collaborator from cfg. AWS clients are only created when a
// component needs them.
func newReconciler(ctx context.Context, cfg config.Config) (*reconcile.Reconciler, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}

	var clients *aws.AWSClients
	awsClients := func() (*aws.AWSClients, error) {
		if clients != nil {
			return clients, nil
		}
		c, err := aws.NewAWSClients(ctx, cfg.AWSRegion, cfg.AWSEndpointOverride)
		if err != nil {
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
		clients = c
		return c, nil
	}

	var store orders.Store
	switch cfg.Backend {
	case config.BackendDynamoDB:
		c, err := awsClients()
		if err != nil {
			return nil, err
		}
		store = orders.NewDynamoStore(c.DynamoDB, orders.DynamoTables{
			Orders:          cfg.OrdersTable,
			Products:        cfg.ProductsTable,
			TransactionLogs: cfg.TransactionLogsTable,
		})
	default:
		store = orders.NewDirectusStore(httpClient, orders.DirectusConfig{
			BaseURL:              cfg.DirectusURL(),
			OrdersRoute:          cfg.OrdersRoute,
			ProductsRoute:        cfg.ProductsRoute,
			TransactionLogsRoute: cfg.TransactionLogsRoute,
			Token:                cfg.DirectusToken,
		})
	}

	presign := aws.NewPresignClient(aws.ObjectStoreOptions{
		Host:      cfg.MinioHost,
		Port:      cfg.MinioPort,
		Secure:    cfg.MinioSecure,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Region:    cfg.MinioRegion,
	})

	signer := storage.NewSigner(presign, cfg.MinioBucket, cfg.MinioInternalHost(), cfg.MinioProxy, cfg.SignedURLValidity())
	cfg.Logger.WithFields(logrus.Fields{
		"bucket":   cfg.MinioBucket,
		"validity": signer.Validity().String(),
	}).Debug("signed url issuer ready")

	deps := reconcile.Deps{
		Store: store,
		Gateway: payment.NewClient(httpClient, payment.Config{
			CheckURL: cfg.CinetPayCheckURL,
			APIKey:   cfg.CinetPayAPIKey,
			SiteID:   cfg.CinetPaySiteID,
		}),
		Mailer: mailer.NewClient(httpClient, mailer.Config{
			BaseURL:  cfg.ListmonkURL,
			Username: cfg.ListmonkUsername,
			Password: cfg.ListmonkPassword,
		}),
		Signer: signer,
	}

	if cfg.EventsQueueURL != "" {
		c, err := awsClients()
		if err != nil {
			return nil, err
		}
		deps.Events = reconcile.QueueSink{Sender: aws.NewPublisher(c.SQS, cfg.EventsQueueURL)}
	}
	if cfg.MetricsNamespace != "" {
		c, err := awsClients()
		if err != nil {
			return nil, err
		}
		deps.Metrics = reconcile.MetricsReporter{Putter: aws.NewMetrics(c.CloudWatch, cfg.MetricsNamespace)}
	}

	return reconcile.New(deps, reconcile.Options{
		AbandonAfter:       cfg.AbandonAfter(),
		Workers:            cfg.Workers,
		ListID:             cfg.ListmonkListID,
		TemplateID:         cfg.ListmonkTemplateID,
		FailureLogInterval: cfg.FailureLogInterval,
	}, cfg.Logger), nil
}
