package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	log "github.com/sirupsen/logrus"

	"github.com/mosajjal/logrelay/pkg/config"
	"github.com/mosajjal/logrelay/pkg/provider/aws"
	"github.com/mosajjal/logrelay/pkg/trace"
	"github.com/mosajjal/logrelay/pkg/transform"
	"github.com/mosajjal/logrelay/pkg/transport"
)

func main() {
	cfg := config.MustParse()
	cfg.SetupLogging()

	tc, err := cfg.TransportConfig()
	if err != nil {
		log.WithError(err).Fatal("Invalid transport configuration")
	}
	snk, err := cfg.NewSink(context.Background())
	if err != nil {
		log.WithError(err).Fatal("Failed to create sink")
	}

	// the Lambda runtime sets _X_AMZN_TRACE_ID per invocation
	tr := transport.New(tc, transform.WithTraceProvider(trace.NewXRay(cfg.TraceProject)))
	if err := tr.Init(snk); err != nil {
		log.WithError(err).Fatal("Failed to initialize transport")
	}
	log.Info("AWS Lambda handler initialized successfully")

	lambda.Start(aws.Handler(aws.NewProvider(cfg.MessageKey, cfg.MetadataKey), tr))
}
