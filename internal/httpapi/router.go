package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the full API surface over the three handlers.
func NewRouter(cart CartService, spin SpinService, order OrderService, requestTimeout time.Duration) chi.Router {
	cartHandler := NewCartHandler(cart, requestTimeout)
	spinHandler := NewSpinHandler(spin, requestTimeout)
	orderHandler := NewOrderHandler(order, requestTimeout)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/carts", func(r chi.Router) {
			r.Post("/", cartHandler.CreateOrFetchCart)
			r.Get("/{cart_id}", cartHandler.GetCart)
			r.Get("/{cart_id}/summary", cartHandler.GetSummary)
			r.Post("/{cart_id}/items", cartHandler.AddItem)
			r.Post("/{cart_id}/items/bulk", cartHandler.BulkAddItems)
			r.Delete("/{cart_id}/items", cartHandler.ClearCart)
			r.Put("/{cart_id}/message", cartHandler.UpdateMessage)
			r.Post("/{cart_id}/spin", spinHandler.Play)
		})

		r.Route("/cart-items", func(r chi.Router) {
			r.Put("/{item_id}", cartHandler.UpdateQuantity)
			r.Delete("/{item_id}", cartHandler.RemoveItem)
		})

		r.Route("/spin-definitions", func(r chi.Router) {
			r.Get("/", spinHandler.List)
			r.Post("/", spinHandler.Create)
			r.Get("/{definition_id}", spinHandler.Get)
			r.Put("/{definition_id}", spinHandler.Update)
			r.Delete("/{definition_id}", spinHandler.Delete)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.Create)
			r.Get("/", orderHandler.List)
			r.Get("/status-counts", orderHandler.StatusCounts)
			r.Get("/{order_id}", orderHandler.Get)
			r.Put("/{order_id}/status", orderHandler.UpdateStatus)
			r.Put("/{order_id}/delivery-speed", orderHandler.UpdateDeliverySpeed)
			r.Post("/{order_id}/cancel", orderHandler.Cancel)
			r.Post("/{order_id}/payments", orderHandler.RecordPayment)
		})
	})

	return r
}
