package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// BookRepository define a interface para operações de catálogo e estoque.
// Toda mutação de estoque passa por ReserveStock/ReleaseStock; nenhum outro
// caminho escreve a coluna stock.
type BookRepository interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]*Book, error)
	FindByID(ctx context.Context, id string) (*Book, error)
	Search(ctx context.Context, query string) ([]*Book, error)
	Create(ctx context.Context, book *Book) error
	Update(ctx context.Context, book *Book) error
	Delete(ctx context.Context, id string) error
	ReserveStock(ctx context.Context, bookID string, quantity int) error
	ReleaseStock(ctx context.Context, bookID string, quantity int) error
}

// OrderRepository define a interface para persistência de pedidos
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context) ([]*Order, error)
}

// PostgresBookRepository implementa BookRepository usando PostgreSQL
type PostgresBookRepository struct {
	db *pgxpool.Pool
}

// NewBookRepository cria uma nova instância de PostgresBookRepository
func NewBookRepository(db *pgxpool.Pool) *PostgresBookRepository {
	return &PostgresBookRepository{db: db}
}

const bookColumns = `id, title, author, isbn, price::text, stock, cover_url, created_at, updated_at`

func scanBook(row pgx.Row) (*Book, error) {
	var book Book
	var price string
	err := row.Scan(&book.ID, &book.Title, &book.Author, &book.ISBN, &price,
		&book.Stock, &book.CoverURL, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return nil, err
	}

	book.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	return &book, nil
}

// FindByIDs busca vários livros de uma vez; ids ausentes simplesmente não
// aparecem no resultado, quem chama precisa detectar os buracos
func (r *PostgresBookRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*Book, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to find books: %w", err)
	}
	defer rows.Close()

	books := make(map[string]*Book, len(ids))
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books[book.ID] = book
	}
	return books, rows.Err()
}

func (r *PostgresBookRepository) FindByID(ctx context.Context, id string) (*Book, error) {
	book, err := scanBook(r.db.QueryRow(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// Search faz busca case-insensitive por substring em título, autor e ISBN;
// query vazia lista o catálogo inteiro, mais novos primeiro
func (r *PostgresBookRepository) Search(ctx context.Context, query string) ([]*Book, error) {
	var rows pgx.Rows
	var err error
	if query == "" {
		rows, err = r.db.Query(ctx, `
			SELECT `+bookColumns+`
			FROM books
			ORDER BY created_at DESC
		`)
	} else {
		pattern := "%" + query + "%"
		rows, err = r.db.Query(ctx, `
			SELECT `+bookColumns+`
			FROM books
			WHERE title ILIKE $1 OR author ILIKE $1 OR isbn ILIKE $1
			ORDER BY created_at DESC
		`, pattern)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

func (r *PostgresBookRepository) Create(ctx context.Context, book *Book) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO books (id, title, author, isbn, price, stock, cover_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, book.ID, book.Title, book.Author, book.ISBN, book.Price.StringFixed(2),
		book.Stock, book.CoverURL, book.CreatedAt, book.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

func (r *PostgresBookRepository) Update(ctx context.Context, book *Book) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE books
		SET title = $2, author = $3, isbn = $4, price = $5, stock = $6,
		    cover_url = $7, updated_at = now()
		WHERE id = $1
	`, book.ID, book.Title, book.Author, book.ISBN, book.Price.StringFixed(2),
		book.Stock, book.CoverURL)
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookNotFound
	}
	return nil
}

func (r *PostgresBookRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookNotFound
	}
	return nil
}

// ReserveStock decrementa o estoque somente se houver quantidade suficiente.
// O UPDATE condicional é indivisível sob o row lock do Postgres: checagem e
// mutação acontecem na mesma instrução, sem janela de corrida e sem retry.
func (r *PostgresBookRepository) ReserveStock(ctx context.Context, bookID string, quantity int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE books
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
	`, bookID, quantity)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero linhas: ou o livro não existe, ou o estoque não alcança
	book, err := r.FindByID(ctx, bookID)
	if err != nil {
		return err
	}
	return &InsufficientStockError{BookID: book.ID, Title: book.Title, Available: book.Stock}
}

// ReleaseStock devolve estoque reservado. Usado apenas pela compensação
// best-effort do orquestrador de checkout.
func (r *PostgresBookRepository) ReleaseStock(ctx context.Context, bookID string, quantity int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE books
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1
	`, bookID, quantity)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookNotFound
	}
	return nil
}

// PostgresOrderRepository implementa OrderRepository usando PostgreSQL
type PostgresOrderRepository struct {
	db *pgxpool.Pool
}

// NewOrderRepository cria uma nova instância de PostgresOrderRepository
func NewOrderRepository(db *pgxpool.Pool) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// Create insere o pedido e suas linhas numa única transação
func (r *PostgresOrderRepository) Create(ctx context.Context, order *Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, customer_name, customer_email, subtotal, tax, total, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, order.ID, order.CustomerName, order.CustomerEmail,
		order.Subtotal.StringFixed(2), order.Tax.StringFixed(2), order.Total.StringFixed(2),
		string(order.Status), order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for position, item := range order.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, book_id, title_snapshot, unit_price_snapshot, quantity, position)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, order.ID, item.BookID, item.TitleSnapshot,
			item.UnitPriceSnapshot.StringFixed(2), item.Quantity, position)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, `
		SELECT id, customer_name, customer_email, subtotal::text, tax::text, total::text, status, created_at
		FROM orders
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	order.Items, err = r.loadItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// List devolve todos os pedidos em ordem cronológica reversa
func (r *PostgresOrderRepository) List(ctx context.Context) ([]*Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, customer_name, customer_email, subtotal::text, tax::text, total::text, status, created_at
		FROM orders
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range orders {
		order.Items, err = r.loadItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *PostgresOrderRepository) loadItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT book_id, title_snapshot, unit_price_snapshot::text, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		var price string
		if err := rows.Scan(&item.BookID, &item.TitleSnapshot, &price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		item.UnitPriceSnapshot, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", price, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var order Order
	var subtotal, tax, total, status string
	err := row.Scan(&order.ID, &order.CustomerName, &order.CustomerEmail,
		&subtotal, &tax, &total, &status, &order.CreatedAt)
	if err != nil {
		return nil, err
	}

	order.Status = OrderStatus(status)
	if order.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return nil, fmt.Errorf("invalid subtotal %q: %w", subtotal, err)
	}
	if order.Tax, err = decimal.NewFromString(tax); err != nil {
		return nil, fmt.Errorf("invalid tax %q: %w", tax, err)
	}
	if order.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("invalid total %q: %w", total, err)
	}
	return &order, nil
}
