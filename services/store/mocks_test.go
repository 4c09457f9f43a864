package main

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

func mustDec(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

// MockOrderRepository simula o repositório de pedidos
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context) ([]*Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Order), args.Error(1)
}

// MockMetadataClient simula o serviço externo de metadados
type MockMetadataClient struct {
	mock.Mock
}

func (m *MockMetadataClient) Lookup(ctx context.Context, isbn string) (*BookMetadata, error) {
	args := m.Called(ctx, isbn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BookMetadata), args.Error(1)
}

// fakeBookRepository é um catálogo em memória com o mesmo contrato de
// atomicidade do Postgres: reserva condicional sob mutex, sem janela entre
// checagem e decremento. Serve os testes de orquestração e de concorrência.
type fakeBookRepository struct {
	mu    sync.Mutex
	books map[string]*Book

	reserveCalls []string // ids na ordem em que as reservas chegaram
	failRelease  bool
}

func newFakeBookRepository(books ...*Book) *fakeBookRepository {
	repo := &fakeBookRepository{books: map[string]*Book{}}
	for _, book := range books {
		copied := *book
		repo.books[book.ID] = &copied
	}
	return repo
}

func (f *fakeBookRepository) stock(bookID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.books[bookID].Stock
}

func (f *fakeBookRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := map[string]*Book{}
	for _, id := range ids {
		if book, ok := f.books[id]; ok {
			copied := *book
			found[id] = &copied
		}
	}
	return found, nil
}

func (f *fakeBookRepository) FindByID(ctx context.Context, id string) (*Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	book, ok := f.books[id]
	if !ok {
		return nil, ErrBookNotFound
	}
	copied := *book
	return &copied, nil
}

func (f *fakeBookRepository) Search(ctx context.Context, query string) ([]*Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var books []*Book
	for _, book := range f.books {
		copied := *book
		books = append(books, &copied)
	}
	return books, nil
}

func (f *fakeBookRepository) Create(ctx context.Context, book *Book) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *book
	f.books[book.ID] = &copied
	return nil
}

func (f *fakeBookRepository) Update(ctx context.Context, book *Book) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.books[book.ID]; !ok {
		return ErrBookNotFound
	}
	copied := *book
	f.books[book.ID] = &copied
	return nil
}

func (f *fakeBookRepository) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.books[id]; !ok {
		return ErrBookNotFound
	}
	delete(f.books, id)
	return nil
}

func (f *fakeBookRepository) ReserveStock(ctx context.Context, bookID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reserveCalls = append(f.reserveCalls, bookID)
	book, ok := f.books[bookID]
	if !ok {
		return ErrBookNotFound
	}
	if book.Stock < quantity {
		return &InsufficientStockError{BookID: book.ID, Title: book.Title, Available: book.Stock}
	}
	book.Stock -= quantity
	return nil
}

func (f *fakeBookRepository) ReleaseStock(ctx context.Context, bookID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failRelease {
		return ErrBookNotFound
	}
	book, ok := f.books[bookID]
	if !ok {
		return ErrBookNotFound
	}
	book.Stock += quantity
	return nil
}

// memorySessionStore guarda sessões num mapa, para os testes de handler
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: map[string]*Session{}}
}

func (s *memorySessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *session
	copied.Cart.Items = map[string]int{}
	for id, qty := range session.Cart.Items {
		copied.Cart.Items[id] = qty
	}
	return &copied, nil
}

func (s *memorySessionStore) Save(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	copied.Cart.Items = map[string]int{}
	for id, qty := range session.Cart.Items {
		copied.Cart.Items[id] = qty
	}
	s.sessions[session.ID] = &copied
	return nil
}

func (s *memorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
