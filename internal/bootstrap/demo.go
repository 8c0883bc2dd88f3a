package bootstrap

import (
	"fmt"
	"time"

	"github.com/ahrav/go-verity/infrastructure/extraction"
	"github.com/ahrav/go-verity/infrastructure/inference"
	"github.com/ahrav/go-verity/infrastructure/llm"
	"github.com/ahrav/go-verity/infrastructure/middleware"
	"github.com/ahrav/go-verity/infrastructure/storage/memory"
	"github.com/ahrav/go-verity/internal/application"
	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// DemoValidationID is the request seeded by demo mode.
const DemoValidationID = "5f1d3c9e-2b7a-4c41-9a53-0c6a8e7d4b21"

const demoUnit = "TLIF0025"

const demoResponse = `{"status":"Compliant","reasoning":"The assessment tool asks the learner to demonstrate this in the practical observation checklist.","mapped_content":"Observation checklist items 1-6","citations":[{"document_name":"assessment-tool.md","page":1,"text":"Observation checklist"}]}`

var demoRequirements = []string{
	"Describe load limits and stability principles for forklifts",
	"Explain pre-start and post-operational checks",
	"Identify workplace hazards when operating near pedestrians",
}

const demoDocument = `Forklift Operations Assessment Tool

Observation checklist
1. Conducts pre-start checks including tyres, forks, mast and hydraulics.
2. Reads the load chart and confirms the load is within rated capacity.
3. Keeps the load low and tilted back while travelling.
` + "\f" + `Knowledge questions
Q1. Explain how the load centre affects forklift stability.
Q2. List three hazards when operating near pedestrians and how to control them.
Q3. Describe the post-operational shutdown procedure.`

// demoConfig returns a copy of cfg that runs the completion provider
// against local extraction and a scripted chat model.
func demoConfig(cfg *application.Config) *application.Config {
	demo := *cfg
	demo.Provider = string(domain.ProviderCompletion)
	demo.Mode = string(domain.ModeDirect)
	demo.RateDelay = 100 * time.Millisecond
	demo.Completion.DocIntelEndpoint = "http://docintel.demo.invalid"
	return &demo
}

func demoBackends(metrics *middleware.PrometheusMetrics) (ports.Datastore, ports.ObjectStore, application.ValidatorFactory) {
	store := memory.NewStore()
	objects := memory.NewObjectStore()

	store.PutValidation(domain.ValidationRequest{
		ID:               DemoValidationID,
		UnitCode:         demoUnit,
		OrganizationCode: "90001",
		Category:         "knowledge_evidence",
		DocumentType:     domain.DocumentTypeUnit,
		Status:           domain.StatusPending,
	})
	for i, text := range demoRequirements {
		store.PutRequirements(domain.Requirement{
			ID:       fmt.Sprintf("demo-req-%d", i+1),
			Number:   fmt.Sprintf("KE%d", i+1),
			Type:     "knowledge_evidence",
			Text:     text,
			UnitCode: demoUnit,
		})
	}

	doc := domain.SourceDocument{
		ID:           "demo-doc-1",
		ValidationID: DemoValidationID,
		Filename:     "assessment-tool.md",
		StoragePath:  "demo/assessment-tool.md",
	}
	store.PutDocument(doc)
	objects.Put(doc.StoragePath, []byte(demoDocument))

	core := llm.NewMockCoreLLM()
	core.Response = demoResponse
	core.Model = "demo-model"
	client := llm.NewMockClient(core, llmMiddleware("demo", metrics)...)

	factory := inference.NewFactory(
		inference.WithLLMClient(client),
		inference.WithDocumentIntelligence(extraction.NewLocalRouter()),
	)
	return store, objects, factory.New
}
