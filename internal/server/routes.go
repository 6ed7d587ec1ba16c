package server

import (
	"expvar"

	"github.com/go-chi/chi/v5"

	"github.com/fixl-developer/tma-automation/internal/server/handlers"
)

func (s *Server) registerRoutes(r chi.Router) {
	h := handlers.New(s.deps.Store, s.deps.Dispatcher, s.deps.Machine, s.deps.Health)

	r.Route("/api", func(r chi.Router) {
		// Health and metrics
		r.Get("/health", h.Health)
		r.Handle("/metrics", expvar.Handler())

		// Event ingestion
		r.Post("/events", h.IngestEvent)

		// Packs
		r.Get("/packs", h.ListPacks)
		r.Post("/packs", h.PutPack)
		r.Get("/packs/{packID}", h.GetPack)
		r.Delete("/packs/{packID}", h.DeprecatePack)
		r.Get("/packs/{packID}/health", h.PackHealth)

		// Rules
		r.Get("/rules", h.ListRules)
		r.Post("/rules", h.PutRule)
		r.Get("/rules/{ruleID}", h.GetRule)
		r.Put("/rules/{ruleID}", h.PutRule)
		r.Delete("/rules/{ruleID}", h.DeleteRule)
		r.Get("/rules/{ruleID}/executions", h.ListRuleExecutions)
		r.Post("/rules/{ruleID}/test", h.TestRule)

		// Workflows
		r.Get("/workflows", h.ListWorkflows)
		r.Post("/workflows", h.PutWorkflow)
		r.Get("/workflows/{workflowID}", h.GetWorkflow)
		r.Get("/workflows/{workflowID}/executions", h.ListWorkflowExecutions)
		r.Post("/workflows/{workflowID}/instances", h.StartInstance)

		// Instances
		r.Get("/instances/{instanceID}", h.GetInstance)
		r.Post("/instances/{instanceID}/advance", h.AdvanceInstance)

		// SLA
		r.Get("/sla", h.SLAStatus)
	})
}
