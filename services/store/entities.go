package main

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Book representa um livro do catálogo
type Book struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Author    string          `json:"author"`
	ISBN      string          `json:"isbn"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	CoverURL  string          `json:"cover_url"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// OrderStatus representa os possíveis status de um pedido
type OrderStatus string

const (
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusPending OrderStatus = "pending"
)

// OrderItem é o snapshot imutável de uma linha do pedido. Título e preço são
// congelados no momento da compra; book_id é só uma referência, o livro pode
// mudar ou sumir do catálogo depois.
type OrderItem struct {
	BookID            string          `json:"book_id"`
	TitleSnapshot     string          `json:"title_snapshot"`
	UnitPriceSnapshot decimal.Decimal `json:"unit_price_snapshot"`
	Quantity          int             `json:"quantity"`
}

// Order representa um pedido no sistema. Subtotal, tax e total são calculados
// uma única vez em NewOrder e nunca recalculados.
type Order struct {
	ID            string          `json:"id"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	Items         []OrderItem     `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OrderLine é a entrada do montador de pedidos: o livro resolvido do catálogo
// (antes da reserva de estoque) e a quantidade desejada.
type OrderLine struct {
	Book     *Book
	Quantity int
}

// NewOrder monta um pedido a partir das linhas validadas. O estoque aqui é
// apenas um pre-check contra os dados resolvidos do catálogo; a checagem
// autoritativa é a reserva atômica no repositório.
func NewOrder(customerName, customerEmail string, lines []OrderLine, taxRate decimal.Decimal) (*Order, error) {
	customerName = strings.TrimSpace(customerName)
	customerEmail = strings.TrimSpace(customerEmail)

	if customerName == "" {
		return nil, &ValidationError{Field: "customer_name", Message: "customer name is required"}
	}
	if len(lines) == 0 {
		return nil, &ValidationError{Field: "items", Message: "order must have at least one item"}
	}

	items := make([]OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Message: "quantity must be a positive integer"}
		}
		if line.Quantity > line.Book.Stock {
			return nil, &InsufficientStockError{
				BookID:    line.Book.ID,
				Title:     line.Book.Title,
				Available: line.Book.Stock,
			}
		}

		items = append(items, OrderItem{
			BookID:            line.Book.ID,
			TitleSnapshot:     line.Book.Title,
			UnitPriceSnapshot: line.Book.Price,
			Quantity:          line.Quantity,
		})
		subtotal = subtotal.Add(LineTotal(line.Book.Price, line.Quantity))
	}

	subtotal = subtotal.Round(2)
	tax := Tax(subtotal, taxRate)

	return &Order{
		ID:            uuid.New().String(),
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		Items:         items,
		Subtotal:      subtotal,
		Tax:           tax,
		Total:         Total(subtotal, tax),
		Status:        OrderStatusPaid,
		CreatedAt:     time.Now(),
	}, nil
}
