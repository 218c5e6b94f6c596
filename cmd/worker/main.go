package main

import (
	"log"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"credverify/internal/appstate"
	"credverify/internal/authority"
	"credverify/internal/config"
	"credverify/internal/llm"
	"credverify/internal/registry"
	"credverify/internal/steps"
	"credverify/internal/storage"
	appTemporal "credverify/internal/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer store.Close()

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("connect temporal: %v", err)
	}
	defer temporalClient.Close()

	executors := &steps.Executors{
		Authorities: authority.NewGatewayDirectory(cfg.AuthorityGatewayURL, time.Duration(cfg.AuthorityTimeoutSec)*time.Second),
		LLM:         llm.NewHTTPClient(cfg.OpenAIAPIKey, cfg.OpenAIModel),
		Model:       cfg.OpenAIModel,
		LLMTimeout:  time.Duration(cfg.OpenAITimeoutSec) * time.Second,
	}

	activities := &appTemporal.Activities{
		State:   appstate.NewManager(store, store),
		Results: store,
		Catalog: registry.New(executors),
	}

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.CredentialVerificationWorkflow, workflow.RegisterOptions{Name: appTemporal.CredentialVerificationWorkflowName})
	w.RegisterActivity(activities.BeginVerificationActivity)
	w.RegisterActivity(activities.RunVerificationStepActivity)
	w.RegisterActivity(activities.RecordStepFailureActivity)
	w.RegisterActivity(activities.MarkReadyForReviewActivity)
	w.RegisterActivity(activities.RecordDecisionActivity)

	log.Printf("worker running on task queue %s", cfg.TemporalTaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker stopped with error: %v", err)
	}
}
