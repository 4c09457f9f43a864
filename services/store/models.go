package main

import "github.com/shopspring/decimal"

// BookRequest representa o corpo de criação/edição de livro. Title pode vir
// em branco na criação: a consulta de metadados por ISBN tenta preencher.
type BookRequest struct {
	Title    string          `json:"title"`
	Author   string          `json:"author" binding:"required"`
	ISBN     string          `json:"isbn" binding:"required"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock" binding:"min=0"`
	CoverURL string          `json:"cover_url"`
}

// AddCartItemRequest representa a adição de um item ao carrinho
type AddCartItemRequest struct {
	BookID   string `json:"book_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

// UpdateCartRequest substitui o mapeamento de quantidades do carrinho.
// Entradas inválidas são descartadas em silêncio, não rejeitadas.
type UpdateCartRequest struct {
	Quantities map[string]int `json:"quantities" binding:"required"`
}

// CheckoutRequest representa a finalização do carrinho da sessão
type CheckoutRequest struct {
	CustomerName  string `json:"customer_name" binding:"required"`
	CustomerEmail string `json:"customer_email"`
}

// DirectOrderItem é uma linha de pedido direto (compra sem carrinho)
type DirectOrderItem struct {
	BookID   string `json:"book_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

// DirectOrderRequest representa um pedido direto via API; com uma única linha
// é o caminho "buy now"
type DirectOrderRequest struct {
	CustomerName  string            `json:"customer_name" binding:"required"`
	CustomerEmail string            `json:"customer_email"`
	Items         []DirectOrderItem `json:"items" binding:"required,min=1,dive"`
}
