package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CheckoutUseCase orquestra a conversão de um carrinho em pedido persistido:
// snapshot do carrinho -> catálogo -> reserva de estoque -> montagem ->
// persistência. Compensações de estoque em falha parcial são best-effort.
type CheckoutUseCase struct {
	books   BookRepository
	orders  OrderRepository
	taxRate decimal.Decimal
	tracer  trace.Tracer
}

// NewCheckoutUseCase cria uma nova instância de CheckoutUseCase
func NewCheckoutUseCase(books BookRepository, orders OrderRepository, taxRate decimal.Decimal, tracer trace.Tracer) *CheckoutUseCase {
	return &CheckoutUseCase{
		books:   books,
		orders:  orders,
		taxRate: taxRate,
		tracer:  tracer,
	}
}

type reservedLine struct {
	bookID   string
	quantity int
}

// PlaceOrder executa um checkout completo a partir do snapshot do carrinho.
// Uma vez iniciado, roda até Committed ou Failed; não é cancelável no meio.
func (uc *CheckoutUseCase) PlaceOrder(ctx context.Context, cartItems map[string]int, customerName, customerEmail string) (*Order, error) {
	ctx, span := uc.tracer.Start(ctx, "place_order")
	defer span.End()

	attemptID := uuid.New().String()
	log.Printf("➡️ [CHECKOUT] AttemptID: %s | Items: %d", attemptID, len(cartItems))

	// 1. Snapshot vazio encerra aqui
	if len(cartItems) == 0 {
		return nil, ErrEmptyCart
	}

	// 2. Resolve os livros referenciados; id ausente derruba o checkout
	ids := make([]string, 0, len(cartItems))
	for bookID := range cartItems {
		ids = append(ids, bookID)
	}
	// Ordem estável de reserva: checkouts concorrentes com vários itens
	// disputam os row locks sempre na mesma ordem
	sort.Strings(ids)

	books, err := uc.books.FindByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, &PersistenceError{Op: "resolve catalog", Err: err}
	}
	for _, bookID := range ids {
		if _, ok := books[bookID]; !ok {
			log.Printf("❌ [CHECKOUT] Unknown item %s | AttemptID: %s", bookID, attemptID)
			return nil, &UnknownItemError{BookID: bookID}
		}
	}

	// 3. Valida os dados do cliente antes de tocar em estoque
	if err := validateCustomer(customerName, customerEmail); err != nil {
		return nil, err
	}

	// 4. Reserva item a item, em ordem ascendente de id. Na primeira falta de
	// estoque, aborta e devolve o que já tinha reservado nesta tentativa.
	reserved := make([]reservedLine, 0, len(ids))
	for _, bookID := range ids {
		quantity := cartItems[bookID]
		if err := uc.books.ReserveStock(ctx, bookID, quantity); err != nil {
			span.RecordError(err)
			uc.compensate(ctx, attemptID, reserved)

			var insufficient *InsufficientStockError
			if errors.As(err, &insufficient) {
				log.Printf("❌ [CHECKOUT] Insufficient stock for %s | AttemptID: %s", bookID, attemptID)
				return nil, insufficient
			}
			if errors.Is(err, ErrBookNotFound) {
				return nil, &UnknownItemError{BookID: bookID}
			}
			return nil, &PersistenceError{Op: "reserve stock", Err: err}
		}
		reserved = append(reserved, reservedLine{bookID: bookID, quantity: quantity})
	}

	// 5. Monta o pedido com os snapshots de preço/título resolvidos ANTES da
	// reserva: o registro financeiro reflete o preço do momento da decisão
	lines := make([]OrderLine, 0, len(ids))
	for _, bookID := range ids {
		lines = append(lines, OrderLine{Book: books[bookID], Quantity: cartItems[bookID]})
	}
	order, err := NewOrder(customerName, customerEmail, lines, uc.taxRate)
	if err != nil {
		span.RecordError(err)
		uc.compensate(ctx, attemptID, reserved)
		return nil, err
	}

	// 6. Persiste; em falha, devolve todas as reservas (best-effort)
	if err := uc.orders.Create(ctx, order); err != nil {
		span.RecordError(err)
		uc.compensate(ctx, attemptID, reserved)
		return nil, &PersistenceError{Op: "persist order", Err: err}
	}

	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.Int("items", len(order.Items)),
		attribute.String("total", order.Total.StringFixed(2)),
	)
	log.Printf("✅ [CHECKOUT] Order %s created | Total: %s | AttemptID: %s",
		order.ID, order.Total.StringFixed(2), attemptID)
	return order, nil
}

// BuyNow é o caminho de compra direta: uma linha única, mesmo fluxo do
// checkout de carrinho
func (uc *CheckoutUseCase) BuyNow(ctx context.Context, bookID string, quantity int, customerName, customerEmail string) (*Order, error) {
	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Message: "quantity must be a positive integer"}
	}
	return uc.PlaceOrder(ctx, map[string]int{bookID: quantity}, customerName, customerEmail)
}

// compensate devolve o estoque das linhas já reservadas numa tentativa que
// falhou. Best-effort declarado: se o release também falhar, o estoque fica
// subcontado até reconciliação manual — logamos e seguimos.
func (uc *CheckoutUseCase) compensate(ctx context.Context, attemptID string, reserved []reservedLine) {
	for _, line := range reserved {
		log.Printf("↩️ [COMPENSATE] Releasing %d of %s | AttemptID: %s", line.quantity, line.bookID, attemptID)
		if err := uc.books.ReleaseStock(ctx, line.bookID, line.quantity); err != nil {
			log.Printf("❌ [COMPENSATE] Failed to release stock for %s: %v | AttemptID: %s",
				line.bookID, err, attemptID)
		}
	}
}

// GetOrder busca um pedido pelo id
func (uc *CheckoutUseCase) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	order, err := uc.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "get order", Err: err}
	}
	return order, nil
}

// ListOrders lista os pedidos, mais recentes primeiro
func (uc *CheckoutUseCase) ListOrders(ctx context.Context) ([]*Order, error) {
	orders, err := uc.orders.List(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}

// CartLine é uma linha do carrinho resolvida contra o catálogo atual
type CartLine struct {
	Book      *Book           `json:"book"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// CartPreview é a visão do carrinho com totais calculados com as mesmas
// regras monetárias do checkout
type CartPreview struct {
	Lines    []CartLine      `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// PreviewCart resolve o carrinho contra o catálogo e calcula os totais.
// Entradas cujo livro sumiu do catálogo são omitidas da visão, como na
// página de carrinho original.
func (uc *CheckoutUseCase) PreviewCart(ctx context.Context, cartItems map[string]int) (*CartPreview, error) {
	preview := &CartPreview{
		Lines:    []CartLine{},
		Subtotal: decimal.Zero.Round(2),
		Tax:      decimal.Zero.Round(2),
		Total:    decimal.Zero.Round(2),
	}
	if len(cartItems) == 0 {
		return preview, nil
	}

	ids := make([]string, 0, len(cartItems))
	for bookID := range cartItems {
		ids = append(ids, bookID)
	}
	sort.Strings(ids)

	books, err := uc.books.FindByIDs(ctx, ids)
	if err != nil {
		return nil, &PersistenceError{Op: "resolve catalog", Err: err}
	}

	subtotal := decimal.Zero
	for _, bookID := range ids {
		book, ok := books[bookID]
		if !ok {
			continue
		}
		lineTotal := LineTotal(book.Price, cartItems[bookID])
		preview.Lines = append(preview.Lines, CartLine{
			Book:      book,
			Quantity:  cartItems[bookID],
			LineTotal: lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	preview.Subtotal = subtotal.Round(2)
	preview.Tax = Tax(preview.Subtotal, uc.taxRate)
	preview.Total = Total(preview.Subtotal, preview.Tax)
	return preview, nil
}

func validateCustomer(customerName, customerEmail string) error {
	if strings.TrimSpace(customerName) == "" {
		return &ValidationError{Field: "customer_name", Message: "customer name is required"}
	}
	if email := strings.TrimSpace(customerEmail); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return &ValidationError{Field: "customer_email", Message: "invalid email address"}
		}
	}
	return nil
}

// CatalogUseCase contém a lógica de negócio do catálogo administrado
type CatalogUseCase struct {
	books    BookRepository
	metadata MetadataClient
}

// NewCatalogUseCase cria uma nova instância de CatalogUseCase
func NewCatalogUseCase(books BookRepository, metadata MetadataClient) *CatalogUseCase {
	return &CatalogUseCase{
		books:    books,
		metadata: metadata,
	}
}

// SearchBooks busca livros por título, autor ou ISBN
func (uc *CatalogUseCase) SearchBooks(ctx context.Context, query string) ([]*Book, error) {
	books, err := uc.books.Search(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, &PersistenceError{Op: "search books", Err: err}
	}
	if books == nil {
		books = []*Book{}
	}
	return books, nil
}

// GetBook busca um livro pelo id
func (uc *CatalogUseCase) GetBook(ctx context.Context, id string) (*Book, error) {
	book, err := uc.books.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "get book", Err: err}
	}
	return book, nil
}

// BookInput são os campos editáveis de um livro
type BookInput struct {
	Title    string
	Author   string
	ISBN     string
	Price    decimal.Decimal
	Stock    int
	CoverURL string
}

func (in *BookInput) validate() error {
	if strings.TrimSpace(in.Author) == "" {
		return &ValidationError{Field: "author", Message: "author is required"}
	}
	if strings.TrimSpace(in.ISBN) == "" {
		return &ValidationError{Field: "isbn", Message: "isbn is required"}
	}
	if in.Price.IsNegative() {
		return &ValidationError{Field: "price", Message: "price must not be negative"}
	}
	if in.Stock < 0 {
		return &ValidationError{Field: "stock", Message: "stock must not be negative"}
	}
	return nil
}

// CreateBook cadastra um livro novo. Título e capa em branco são preenchidos
// best-effort pela consulta de metadados por ISBN; falha na consulta não
// derruba o cadastro, só deixa os campos como vieram.
func (uc *CatalogUseCase) CreateBook(ctx context.Context, input BookInput) (*Book, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	if input.Title == "" || input.CoverURL == "" {
		metadata, err := uc.metadata.Lookup(ctx, strings.TrimSpace(input.ISBN))
		if err != nil {
			log.Printf("⚠️ ISBN lookup failed for %s: %v", input.ISBN, err)
		} else {
			if input.Title == "" {
				input.Title = metadata.Title
			}
			if input.CoverURL == "" {
				input.CoverURL = metadata.CoverURL
			}
		}
	}

	if strings.TrimSpace(input.Title) == "" {
		return nil, &ValidationError{Field: "title", Message: "title is required"}
	}

	now := time.Now()
	book := &Book{
		ID:        uuid.New().String(),
		Title:     strings.TrimSpace(input.Title),
		Author:    strings.TrimSpace(input.Author),
		ISBN:      strings.TrimSpace(input.ISBN),
		Price:     input.Price.Round(2),
		Stock:     input.Stock,
		CoverURL:  input.CoverURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.books.Create(ctx, book); err != nil {
		return nil, &PersistenceError{Op: "create book", Err: err}
	}

	log.Printf("✅ Book created: %s (%s)", book.Title, book.ID)
	return book, nil
}

// UpdateBook edita um livro existente. Escreve a coluna de estoque por
// inteiro; é uma operação administrativa, não passa pela reserva.
func (uc *CatalogUseCase) UpdateBook(ctx context.Context, id string, input BookInput) (*Book, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, &ValidationError{Field: "title", Message: "title is required"}
	}

	book, err := uc.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	book.Title = strings.TrimSpace(input.Title)
	book.Author = strings.TrimSpace(input.Author)
	book.ISBN = strings.TrimSpace(input.ISBN)
	book.Price = input.Price.Round(2)
	book.Stock = input.Stock
	book.CoverURL = input.CoverURL

	if err := uc.books.Update(ctx, book); err != nil {
		if errors.Is(err, ErrBookNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "update book", Err: err}
	}
	return book, nil
}

// DeleteBook remove um livro do catálogo. Pedidos antigos não são afetados:
// eles carregam snapshots, não referências vivas.
func (uc *CatalogUseCase) DeleteBook(ctx context.Context, id string) error {
	if err := uc.books.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrBookNotFound) {
			return err
		}
		return &PersistenceError{Op: "delete book", Err: err}
	}
	log.Printf("✅ Book deleted: %s", id)
	return nil
}

// LookupISBN expõe a consulta de metadados para a tela de cadastro
func (uc *CatalogUseCase) LookupISBN(ctx context.Context, isbn string) (*BookMetadata, error) {
	metadata, err := uc.metadata.Lookup(ctx, strings.TrimSpace(isbn))
	if err != nil {
		return nil, fmt.Errorf("isbn lookup: %w", err)
	}
	return metadata, nil
}
