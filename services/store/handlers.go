package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	sessionCookieName = "bookstore_session"
	sessionContextKey = "session"
)

// CheckoutUseCaseInterface define a interface do use case de checkout
type CheckoutUseCaseInterface interface {
	PlaceOrder(ctx context.Context, cartItems map[string]int, customerName, customerEmail string) (*Order, error)
	BuyNow(ctx context.Context, bookID string, quantity int, customerName, customerEmail string) (*Order, error)
	PreviewCart(ctx context.Context, cartItems map[string]int) (*CartPreview, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	ListOrders(ctx context.Context) ([]*Order, error)
}

// CatalogUseCaseInterface define a interface do use case de catálogo
type CatalogUseCaseInterface interface {
	SearchBooks(ctx context.Context, query string) ([]*Book, error)
	GetBook(ctx context.Context, id string) (*Book, error)
	CreateBook(ctx context.Context, input BookInput) (*Book, error)
	UpdateBook(ctx context.Context, id string, input BookInput) (*Book, error)
	DeleteBook(ctx context.Context, id string) error
	LookupISBN(ctx context.Context, isbn string) (*BookMetadata, error)
}

// StoreHandler contém os handlers HTTP da loja
type StoreHandler struct {
	catalog    CatalogUseCaseInterface
	checkout   CheckoutUseCaseInterface
	sessions   SessionStore
	tracer     trace.Tracer
	sessionTTL time.Duration
}

// NewStoreHandler cria uma nova instância de StoreHandler
func NewStoreHandler(catalog CatalogUseCaseInterface, checkout CheckoutUseCaseInterface, sessions SessionStore, tracer trace.Tracer, sessionTTL time.Duration) *StoreHandler {
	return &StoreHandler{
		catalog:    catalog,
		checkout:   checkout,
		sessions:   sessions,
		tracer:     tracer,
		sessionTTL: sessionTTL,
	}
}

// RegisterRoutes amarra todas as rotas da loja no router
func (h *StoreHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")

	api.GET("/books", h.ListBooks)
	api.GET("/books/:id", h.GetBook)
	api.POST("/books", h.CreateBook)
	api.PUT("/books/:id", h.UpdateBook)
	api.DELETE("/books/:id", h.DeleteBook)
	api.GET("/isbn/:isbn", h.LookupISBN)

	cart := api.Group("/", h.SessionMiddleware())
	cart.GET("/cart", h.GetCart)
	cart.POST("/cart/items", h.AddCartItem)
	cart.PUT("/cart", h.UpdateCart)
	cart.DELETE("/cart/items/:id", h.RemoveCartItem)
	cart.POST("/checkout", h.Checkout)

	api.POST("/orders", h.CreateDirectOrder)
	api.GET("/orders", h.ListOrders)
	api.GET("/orders/:id", h.GetOrder)
}

// SessionMiddleware resolve (ou cria) a sessão do visitante a partir do
// cookie e a pendura no contexto da requisição
func (h *StoreHandler) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(sessionCookieName)
		if err != nil || sessionID == "" {
			sessionID = uuid.New().String()
			c.SetCookie(sessionCookieName, sessionID, int(h.sessionTTL.Seconds()), "/", "", false, true)
		}

		session, err := h.sessions.Get(c.Request.Context(), sessionID)
		if errors.Is(err, ErrSessionNotFound) {
			session = &Session{ID: sessionID, Cart: NewCart()}
		} else if err != nil {
			log.Printf("❌ Failed to load session %s: %v", sessionID, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
			return
		}

		c.Set(sessionContextKey, session)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *Session {
	return c.MustGet(sessionContextKey).(*Session)
}

// HealthCheck verifica a saúde do serviço
func (h *StoreHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "bookstore",
	})
}

// ListBooks lista o catálogo, com busca opcional por ?search=
func (h *StoreHandler) ListBooks(c *gin.Context) {
	books, err := h.catalog.SearchBooks(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": books})
}

// GetBook devolve um livro pelo id
func (h *StoreHandler) GetBook(c *gin.Context) {
	book, err := h.catalog.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": book})
}

// CreateBook cadastra um livro (admin)
func (h *StoreHandler) CreateBook(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := h.catalog.CreateBook(c.Request.Context(), BookInput{
		Title:    req.Title,
		Author:   req.Author,
		ISBN:     req.ISBN,
		Price:    req.Price,
		Stock:    req.Stock,
		CoverURL: req.CoverURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": book})
}

// UpdateBook edita um livro (admin)
func (h *StoreHandler) UpdateBook(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := h.catalog.UpdateBook(c.Request.Context(), c.Param("id"), BookInput{
		Title:    req.Title,
		Author:   req.Author,
		ISBN:     req.ISBN,
		Price:    req.Price,
		Stock:    req.Stock,
		CoverURL: req.CoverURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": book})
}

// DeleteBook remove um livro (admin)
func (h *StoreHandler) DeleteBook(c *gin.Context) {
	if err := h.catalog.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "deleted"})
}

// LookupISBN consulta metadados de um ISBN na fonte externa (tela de cadastro)
func (h *StoreHandler) LookupISBN(c *gin.Context) {
	metadata, err := h.catalog.LookupISBN(c.Request.Context(), c.Param("isbn"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": metadata})
}

// GetCart devolve o carrinho da sessão resolvido contra o catálogo, com os
// totais que o checkout cobraria agora
func (h *StoreHandler) GetCart(c *gin.Context) {
	session := sessionFrom(c)
	preview, err := h.checkout.PreviewCart(c.Request.Context(), session.Cart.Snapshot())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": preview})
}

// AddCartItem incrementa (ou insere) um item no carrinho da sessão
func (h *StoreHandler) AddCartItem(c *gin.Context) {
	var req AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session := sessionFrom(c)

	// Livro precisa existir para entrar no carrinho
	if _, err := h.catalog.GetBook(c.Request.Context(), req.BookID); err != nil {
		respondError(c, err)
		return
	}
	if err := session.Cart.Add(req.BookID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	if err := h.sessions.Save(c.Request.Context(), session); err != nil {
		respondError(c, &PersistenceError{Op: "save session", Err: err})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": session.Cart})
}

// UpdateCart substitui as quantidades do carrinho; entradas não positivas
// somem em silêncio
func (h *StoreHandler) UpdateCart(c *gin.Context) {
	var req UpdateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session := sessionFrom(c)
	session.Cart.SetQuantities(req.Quantities)
	if err := h.sessions.Save(c.Request.Context(), session); err != nil {
		respondError(c, &PersistenceError{Op: "save session", Err: err})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": session.Cart})
}

// RemoveCartItem tira um item do carrinho, no-op se não estiver lá
func (h *StoreHandler) RemoveCartItem(c *gin.Context) {
	session := sessionFrom(c)
	session.Cart.Remove(c.Param("id"))
	if err := h.sessions.Save(c.Request.Context(), session); err != nil {
		respondError(c, &PersistenceError{Op: "save session", Err: err})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": session.Cart})
}

// Checkout converte o carrinho da sessão em pedido; o carrinho só é limpo
// depois do pedido persistido
func (h *StoreHandler) Checkout(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "checkout")
	defer span.End()

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session := sessionFrom(c)
	span.SetAttributes(
		attribute.String("session_id", session.ID),
		attribute.Int("cart_items", len(session.Cart.Items)),
	)

	order, err := h.checkout.PlaceOrder(ctx, session.Cart.Snapshot(), req.CustomerName, req.CustomerEmail)
	if err != nil {
		span.RecordError(err)
		respondError(c, err)
		return
	}

	session.Cart.Clear()
	if err := h.sessions.Save(ctx, session); err != nil {
		// Pedido já está persistido; um carrinho que sobreviveu é só ruído
		log.Printf("⚠️ Failed to clear cart for session %s: %v", session.ID, err)
	}

	span.SetAttributes(attribute.String("order_id", order.ID))
	c.JSON(http.StatusCreated, gin.H{"data": order})
}

// CreateDirectOrder cria um pedido direto, sem passar pelo carrinho da
// sessão; com uma linha única é o "buy now"
func (h *StoreHandler) CreateDirectOrder(c *gin.Context) {
	var req DirectOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make(map[string]int, len(req.Items))
	for _, item := range req.Items {
		items[item.BookID] += item.Quantity
	}

	order, err := h.checkout.PlaceOrder(c.Request.Context(), items, req.CustomerName, req.CustomerEmail)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": order})
}

// ListOrders lista os pedidos em ordem cronológica reversa (admin)
func (h *StoreHandler) ListOrders(c *gin.Context) {
	orders, err := h.checkout.ListOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if orders == nil {
		orders = []*Order{}
	}
	c.JSON(http.StatusOK, gin.H{"data": orders})
}

// GetOrder devolve um pedido pelo id
func (h *StoreHandler) GetOrder(c *gin.Context) {
	order, err := h.checkout.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

// respondError mapeia a taxonomia de erros do domínio para status HTTP
func respondError(c *gin.Context, err error) {
	var validation *ValidationError
	var unknown *UnknownItemError
	var insufficient *InsufficientStockError

	switch {
	case errors.Is(err, ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message, "field": validation.Field})
	case errors.As(err, &unknown):
		// Não vaza o id para o comprador, o item só "não está disponível"
		c.JSON(http.StatusBadRequest, gin.H{"error": "item unavailable"})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, gin.H{
			"error":     "insufficient stock",
			"book_id":   insufficient.BookID,
			"title":     insufficient.Title,
			"available": insufficient.Available,
		})
	case errors.Is(err, ErrBookNotFound), errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrISBNNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
