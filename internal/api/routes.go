package api

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the task and document endpoints on r.
func RegisterRoutes(r chi.Router, tasks *TaskHandler, docs *DocumentHandler) {
	r.Route("/tasks/{"+paramRef+"}", func(r chi.Router) {
		r.Get("/status", tasks.Status)
		r.Get("/history", tasks.History)
		r.Post("/retry", tasks.Retry)
		r.Post("/{"+paramDocumentID+"}", tasks.Launch)
		r.Get("/{"+paramDocumentID+"}/stream", tasks.Stream)
	})

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", docs.Create)
		r.Get("/{"+paramID+"}", docs.Get)
		r.Get("/{"+paramID+"}/tasks", docs.ListTasks)
	})
}
