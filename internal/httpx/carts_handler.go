package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-marketplace-settlement/internal/cart"
	"github.com/ariefcatur/go-marketplace-settlement/internal/ledger"
	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

type CartsHandler struct {
	Cart   *cart.Manager
	Ledger *ledger.Ledger
	Log    logrus.FieldLogger
}

func (h *CartsHandler) Register(r chi.Router) {
	r.Get("/carts", h.getCart)
	r.Get("/get-paginated-carts", h.getCartPage)
	r.Post("/add-to-cart/{listing}", h.addItem)
	r.Delete("/delete-item/{listing}", h.removeItem)
	r.Patch("/decrease-quantity/{listing}", h.decreaseQuantity)
	r.Delete("/clear-cart", h.clearCart)
	r.Get("/check-balance/{account}", h.checkBalance)
}

type cartResp struct {
	Message    string            `json:"message,omitempty"`
	Items      []orders.CartItem `json:"items"`
	TotalPrice orders.Money      `json:"total_price"`
	TotalPages *int              `json:"total_pages,omitempty"`
}

func (h *CartsHandler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.Cart.Items(r.Context(), buyer(r))
	if err != nil {
		writeError(w, r, h.Log, "Failed to load cart", err)
		return
	}
	resp := cartResp{Items: c.Items, TotalPrice: c.TotalPrice}
	if len(c.Items) == 0 {
		resp.Message = "Your cart is empty"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CartsHandler) getCartPage(w http.ResponseWriter, r *http.Request) {
	page, ok1 := intQuery(r, "page", orders.DefaultPage)
	size, ok2 := intQuery(r, "itemsPerPage", orders.DefaultPageSize)
	if !ok1 || !ok2 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "page and itemsPerPage must be integers"})
		return
	}
	p, err := h.Cart.ItemsPage(r.Context(), buyer(r), orders.Page{Number: page, Size: size})
	if err != nil {
		writeError(w, r, h.Log, "Failed to load cart", err)
		return
	}
	resp := cartResp{Items: p.Items, TotalPrice: p.TotalPrice, TotalPages: &p.TotalPages}
	if p.TotalPages == 0 {
		resp.Message = "Your cart is empty"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CartsHandler) addItem(w http.ResponseWriter, r *http.Request) {
	listing, ok := idParam(r, "listing")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product id"})
		return
	}
	if err := h.Cart.AddItem(r.Context(), buyer(r), listing); err != nil {
		writeError(w, r, h.Log, "Failed to add", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "Item added successfully"})
}

func (h *CartsHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	listing, ok := idParam(r, "listing")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product id"})
		return
	}
	if err := h.Cart.RemoveItem(r.Context(), buyer(r), listing); err != nil {
		writeError(w, r, h.Log, "Failed to remove", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "Item removed successfully"})
}

func (h *CartsHandler) decreaseQuantity(w http.ResponseWriter, r *http.Request) {
	listing, ok := idParam(r, "listing")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product id"})
		return
	}
	qty, err := h.Cart.DecreaseQuantity(r.Context(), buyer(r), listing)
	if err != nil {
		writeError(w, r, h.Log, "Failed to decrease quantity", err)
		return
	}
	writeJSON(w, http.StatusOK, qty)
}

func (h *CartsHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.Clear(r.Context(), buyer(r)); err != nil {
		writeError(w, r, h.Log, "Failed :(", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "Cart is cleared"})
}

func (h *CartsHandler) checkStock(w http.ResponseWriter, r *http.Request) {
	listing, ok := idParam(r, "listing")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product id"})
		return
	}
	qty, err := h.Ledger.Stock(r.Context(), listing)
	if err != nil {
		writeError(w, r, h.Log, "Failed to check stock", err)
		return
	}
	writeJSON(w, http.StatusOK, qty)
}

// checkBalance only answers for the caller's own account.
func (h *CartsHandler) checkBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := idParam(r, "account")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		return
	}
	if account != buyer(r) {
		writeError(w, r, h.Log, "Failed to check balance", orders.ErrUnauthorized)
		return
	}
	bal, err := h.Ledger.Balance(r.Context(), account)
	if err != nil {
		writeError(w, r, h.Log, "Failed to check balance", err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}
