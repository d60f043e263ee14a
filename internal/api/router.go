package api

import (
	"fmt"
	"log"
	"net/http"

	_ "github.com/bundlevault/bundlevault/docs"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/rs/cors"

	"github.com/bundlevault/bundlevault/internal/api/handlers"
	"github.com/bundlevault/bundlevault/internal/api/middleware"
	"github.com/bundlevault/bundlevault/internal/config"
)

func SetupRouter(h *handlers.Handler) http.Handler {
	mainMux := http.NewServeMux()
	c := cors.New(config.Envs.CorsConfig)

	// ---------- PUBLIC ROUTES ----------
	mainMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	mainMux.HandleFunc("/docs/", httpSwagger.WrapHandler)

	// Delivery gateway: reachable without a session so public and
	// password-protected downloads work for anonymous visitors.
	deliveryMux := http.NewServeMux()
	deliveryMux.HandleFunc("GET /{slug}", h.Landing)
	deliveryMux.HandleFunc("POST /{slug}/unlock", h.Unlock)
	deliveryMux.HandleFunc("GET /{slug}/file", h.DeliverFile)

	mainMux.Handle("/d/",
		http.StripPrefix("/d", deliveryMux),
	)

	// ---------- PROTECTED ROUTES ----------
	protectedMux := http.NewServeMux()

	protectedMux.HandleFunc("POST /downloads", h.CreateDownload)
	protectedMux.HandleFunc("GET /downloads/{id}", h.GetDownload)
	protectedMux.HandleFunc("DELETE /downloads/{id}", h.DeleteDownload)
	protectedMux.HandleFunc("POST /downloads/{id}/revoke", h.RevokeDownload)
	protectedMux.HandleFunc("POST /downloads/{id}/extend", h.ExtendDownload)
	protectedMux.HandleFunc("POST /downloads/{id}/regenerate", h.RegenerateDownload)
	protectedMux.HandleFunc("POST /downloads/{id}/access", h.ChangeAccess)
	protectedMux.HandleFunc("POST /downloads/{id}/rename", h.RenameDownload)
	protectedMux.HandleFunc("DELETE /downloads/{id}/artifact", h.DeleteArtifact)

	mainMux.Handle("/api/v1/",
		http.StripPrefix(
			"/api/v1",
			middleware.AuthMiddleware(protectedMux),
		),
	)

	log.Println("Router initialized")
	handler := c.Handler(mainMux)
	handler = middleware.Logger(handler)
	return handler
}
