package main

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrBookNotFound    = errors.New("book not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrISBNNotFound    = errors.New("isbn not found")
)

// ValidationError indica entrada inválida do cliente, corrigível pelo usuário
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// UnknownItemError indica que o carrinho referencia um livro inexistente
type UnknownItemError struct {
	BookID string
}

func (e *UnknownItemError) Error() string {
	return fmt.Sprintf("unknown item %s", e.BookID)
}

// InsufficientStockError nomeia o livro sem estoque e quanto ainda há
// disponível, para o cliente poder ajustar a quantidade.
type InsufficientStockError struct {
	BookID    string
	Title     string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (%s): %d available", e.Title, e.BookID, e.Available)
}

// PersistenceError indica falha de I/O contra o banco. Quando acontece depois
// de reservas bem sucedidas, a compensação de estoque é best-effort: o estoque
// pode ficar subcontado até reconciliação manual.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
