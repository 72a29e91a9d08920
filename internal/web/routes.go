package web

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/reminder"
	"github.com/kozaktomas/companion/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	owner := s.config.PatientID

	// Create handlers
	detectionHandler := handlers.NewDetectionHandler(s.deps.Detection, s.deps.Encounter, s.deps.Events, s.logger)
	audioHandler := handlers.NewAudioHandler(s.deps.Audio, s.logger)
	remindersHandler := handlers.NewRemindersHandler(s.deps.Reminders, s.deps.TaskFeed, reminder.OptionsFromConfig(s.config.Reminders), s.logger)
	peopleHandler := handlers.NewPeopleHandler(owner, s.deps.Detector, s.logger)
	tasksHandler := handlers.NewTasksHandler(owner, s.refreshTasks, s.logger)
	encountersHandler := handlers.NewEncountersHandler(owner)
	healthHandler := handlers.NewHealthHandler(s.deps.Version, s.config.EnrichmentProvider(), s.deps.Detection)

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)

		// Detection loop and save flow
		r.Get("/detection", detectionHandler.Status)
		r.Post("/detection/start", detectionHandler.Start)
		r.Post("/detection/stop", detectionHandler.Stop)
		r.Get("/detection/events", detectionHandler.Events)
		r.Post("/detection/save/request", detectionHandler.RequestSave)
		r.Post("/detection/save", detectionHandler.ConfirmSave)
		r.Delete("/detection/save", detectionHandler.CancelSave)

		// Voice output
		r.Get("/audio", audioHandler.Get)
		r.Put("/audio", audioHandler.Put)

		// Reminders
		r.Get("/reminders", remindersHandler.Status)
		r.Post("/reminders/start", remindersHandler.Start)
		r.Post("/reminders/stop", remindersHandler.Stop)
		r.Post("/reminders/reset", remindersHandler.Reset)
		r.Post("/reminders/remind/{id}", remindersHandler.RemindNow)

		// Known people
		r.Get("/people", peopleHandler.List)
		r.Post("/people", peopleHandler.Create)
		r.Post("/people/enroll", peopleHandler.Enroll)
		r.Post("/people/similar", peopleHandler.Similar)
		r.Get("/people/{id}", peopleHandler.Get)
		r.Put("/people/{id}", peopleHandler.Update)
		r.Delete("/people/{id}", peopleHandler.Delete)

		// Tasks
		r.Get("/tasks", tasksHandler.List)
		r.Post("/tasks", tasksHandler.Create)
		r.Get("/tasks/{id}", tasksHandler.Get)
		r.Put("/tasks/{id}", tasksHandler.Update)
		r.Delete("/tasks/{id}", tasksHandler.Delete)

		// Encounter log
		r.Get("/encounters", encountersHandler.List)
	})
}

// refreshTasks pushes task mutations to the reminder scheduler right away
// instead of waiting for the next poll.
func (s *Server) refreshTasks(ctx context.Context) {
	if s.deps.TaskFeed == nil {
		return
	}
	if _, err := s.deps.TaskFeed.Refresh(ctx); err != nil {
		s.logger.Warn("task refresh after change failed", zap.Error(err))
	}
}
