package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func newCheckoutUseCase(books BookRepository, orders OrderRepository) *CheckoutUseCase {
	return NewCheckoutUseCase(books, orders, mustDec("0.07"), noop.NewTracerProvider().Tracer("test"))
}

func TestPlaceOrder(t *testing.T) {
	// Arrange: item A (10.00, estoque 5) qty 2 + item B (3.50, estoque 1) qty 1
	books := newFakeBookRepository(
		testBook("aaa", "Book A", "10.00", 5),
		testBook("bbb", "Book B", "3.50", 1),
	)
	orders := new(MockOrderRepository)
	orders.On("Create", mock.Anything, mock.AnythingOfType("*main.Order")).Return(nil)
	uc := newCheckoutUseCase(books, orders)

	// Act
	order, err := uc.PlaceOrder(context.Background(), map[string]int{"bbb": 1, "aaa": 2}, "Maria", "maria@example.com")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "23.50", order.Subtotal.StringFixed(2))
	assert.Equal(t, "1.65", order.Tax.StringFixed(2))
	assert.Equal(t, "25.15", order.Total.StringFixed(2))
	assert.Equal(t, 3, books.stock("aaa"))
	assert.Equal(t, 0, books.stock("bbb"))
	orders.AssertExpectations(t)

	// Reservas sempre em ordem ascendente de id, independente da ordem do mapa
	assert.Equal(t, []string{"aaa", "bbb"}, books.reserveCalls)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	books := newFakeBookRepository()
	orders := new(MockOrderRepository)
	uc := newCheckoutUseCase(books, orders)

	_, err := uc.PlaceOrder(context.Background(), map[string]int{}, "Maria", "")

	assert.ErrorIs(t, err, ErrEmptyCart)
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPlaceOrder_UnknownItem(t *testing.T) {
	books := newFakeBookRepository(testBook("aaa", "Book A", "10.00", 5))
	orders := new(MockOrderRepository)
	uc := newCheckoutUseCase(books, orders)

	_, err := uc.PlaceOrder(context.Background(), map[string]int{"aaa": 1, "ghost": 1}, "Maria", "")

	var unknown *UnknownItemError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.BookID)

	// Nenhum efeito colateral: nada reservado, nada persistido
	assert.Equal(t, 5, books.stock("aaa"))
	assert.Empty(t, books.reserveCalls)
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPlaceOrder_InvalidCustomer(t *testing.T) {
	books := newFakeBookRepository(testBook("aaa", "Book A", "10.00", 5))
	orders := new(MockOrderRepository)
	uc := newCheckoutUseCase(books, orders)

	var validation *ValidationError

	_, err := uc.PlaceOrder(context.Background(), map[string]int{"aaa": 1}, "   ", "")
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "customer_name", validation.Field)

	_, err = uc.PlaceOrder(context.Background(), map[string]int{"aaa": 1}, "Maria", "not-an-email")
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "customer_email", validation.Field)

	// Validação acontece antes de tocar no estoque
	assert.Equal(t, 5, books.stock("aaa"))
	assert.Empty(t, books.reserveCalls)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	// Arrange: estoque 1, pedido de 2
	books := newFakeBookRepository(testBook("aaa", "Book A", "10.00", 1))
	orders := new(MockOrderRepository)
	uc := newCheckoutUseCase(books, orders)

	// Act
	_, err := uc.PlaceOrder(context.Background(), map[string]int{"aaa": 2}, "Maria", "")

	// Assert: erro nomeia o livro, estoque intacto, nenhum pedido criado
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "aaa", insufficient.BookID)
	assert.Equal(t, "Book A", insufficient.Title)
	assert.Equal(t, 1, insufficient.Available)
	assert.Equal(t, 1, books.stock("aaa"))
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPlaceOrder_CompensatesEarlierReservations(t *testing.T) {
	// Arrange: a primeira linha reserva, a segunda falha por falta de estoque
	books := newFakeBookRepository(
		testBook("aaa", "Book A", "10.00", 5),
		testBook("bbb", "Book B", "3.50", 0),
	)
	orders := new(MockOrderRepository)
	uc := newCheckoutUseCase(books, orders)

	// Act
	_, err := uc.PlaceOrder(context.Background(), map[string]int{"aaa": 2, "bbb": 1}, "Maria", "")

	// Assert: a reserva de A foi devolvida
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "bbb", insufficient.BookID)
	assert.Equal(t, 5, books.stock("aaa"))
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPlaceOrder_CompensatesOnPersistenceFailure(t *testing.T) {
	// Arrange: reservas passam, o insert do pedido falha
	books := newFakeBookRepository(testBook("aaa", "Book A", "10.00", 5))
	orders := new(MockOrderRepository)
	orders.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	uc := newCheckoutUseCase(books, orders)

	// Act
	_, err := uc.PlaceOrder(context.Background(), map[string]int{"aaa": 2}, "Maria", "")

	// Assert
	var persistence *PersistenceError
	require.ErrorAs(t, err, &persistence)
	assert.Equal(t, 5, books.stock("aaa"))
}

func TestPlaceOrder_ConcurrentOnSameItem(t *testing.T) {
	// Estoque exatamente 1, dois checkouts de qty 1: um ganha, o outro recebe
	// InsufficientStock
	books := newFakeBookRepository(testBook("aaa", "Book A", "10.00", 1))
	orders := new(MockOrderRepository)
	orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	uc := newCheckoutUseCase(books, orders)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = uc.PlaceOrder(context.Background(), map[string]int{"aaa": 1}, "Maria", "")
		}(i)
	}
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		insufficient++
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 0, books.stock("aaa"))
	orders.AssertNumberOfCalls(t, "Create", 1)
}

func TestPlaceOrder_ConcurrentNeverOversells(t *testing.T) {
	// 20 compradores disputando 10 unidades: exatamente 10 passam e o estoque
	// termina em zero, nunca negativo
	const initialStock = 10
	const buyers = 20

	books := newFakeBookRepository(testBook("aaa", "Book A", "10.00", initialStock))
	orders := new(MockOrderRepository)
	orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	uc := newCheckoutUseCase(books, orders)

	var wg sync.WaitGroup
	results := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = uc.PlaceOrder(context.Background(), map[string]int{"aaa": 1}, "Maria", "")
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range results {
		if err == nil {
			succeeded++
		}
	}

	assert.Equal(t, initialStock, succeeded)
	assert.Equal(t, 0, books.stock("aaa"))
}

func TestBuyNow(t *testing.T) {
	// Compra direta: uma linha, mesmo fluxo do checkout
	books := newFakeBookRepository(testBook("aaa", "Book A", "19.99", 10))
	orders := new(MockOrderRepository)
	orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	uc := newCheckoutUseCase(books, orders)

	order, err := uc.BuyNow(context.Background(), "aaa", 3, "Maria", "")

	require.NoError(t, err)
	assert.Equal(t, "59.97", order.Subtotal.StringFixed(2))
	assert.Equal(t, "4.20", order.Tax.StringFixed(2))
	assert.Equal(t, "64.17", order.Total.StringFixed(2))
	assert.Equal(t, 7, books.stock("aaa"))
}

func TestBuyNow_RejectsNonPositiveQuantity(t *testing.T) {
	books := newFakeBookRepository(testBook("aaa", "Book A", "10.00", 5))
	uc := newCheckoutUseCase(books, new(MockOrderRepository))

	_, err := uc.BuyNow(context.Background(), "aaa", 0, "Maria", "")

	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
	assert.Equal(t, 5, books.stock("aaa"))
}

func TestPreviewCart(t *testing.T) {
	books := newFakeBookRepository(
		testBook("aaa", "Book A", "10.00", 5),
		testBook("bbb", "Book B", "3.50", 1),
	)
	uc := newCheckoutUseCase(books, new(MockOrderRepository))

	preview, err := uc.PreviewCart(context.Background(), map[string]int{"aaa": 2, "bbb": 1, "gone": 4})

	require.NoError(t, err)
	// Livro sumido do catálogo é omitido da visão
	assert.Len(t, preview.Lines, 2)
	assert.Equal(t, "23.50", preview.Subtotal.StringFixed(2))
	assert.Equal(t, "1.65", preview.Tax.StringFixed(2))
	assert.Equal(t, "25.15", preview.Total.StringFixed(2))
	// Só olha o catálogo, não mexe em estoque
	assert.Equal(t, 5, books.stock("aaa"))
}

func TestPreviewCart_Empty(t *testing.T) {
	uc := newCheckoutUseCase(newFakeBookRepository(), new(MockOrderRepository))

	preview, err := uc.PreviewCart(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, preview.Lines)
	assert.Equal(t, "0.00", preview.Total.StringFixed(2))
}

func TestCatalogCreateBook_EnrichesFromISBN(t *testing.T) {
	// Arrange: título e capa em branco vêm da consulta de metadados
	books := newFakeBookRepository()
	metadata := new(MockMetadataClient)
	metadata.On("Lookup", mock.Anything, "9780134190440").Return(&BookMetadata{
		ISBN:     "9780134190440",
		Title:    "The Go Programming Language",
		CoverURL: "https://covers.openlibrary.org/b/isbn/9780134190440-L.jpg",
	}, nil)
	uc := NewCatalogUseCase(books, metadata)

	// Act
	book, err := uc.CreateBook(context.Background(), BookInput{
		Author: "Donovan & Kernighan",
		ISBN:   "9780134190440",
		Price:  mustDec("39.99"),
		Stock:  12,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "The Go Programming Language", book.Title)
	assert.Equal(t, "https://covers.openlibrary.org/b/isbn/9780134190440-L.jpg", book.CoverURL)
	metadata.AssertExpectations(t)

	stored, err := books.FindByID(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, stored.Stock)
}

func TestCatalogCreateBook_LookupFailureIsNonFatal(t *testing.T) {
	// Falha na fonte externa não derruba o cadastro quando o título veio
	// preenchido; só a capa fica em branco
	books := newFakeBookRepository()
	metadata := new(MockMetadataClient)
	metadata.On("Lookup", mock.Anything, mock.Anything).Return(nil, ErrISBNNotFound)
	uc := NewCatalogUseCase(books, metadata)

	book, err := uc.CreateBook(context.Background(), BookInput{
		Title:  "Obscure Title",
		Author: "Unknown",
		ISBN:   "0000000000",
		Price:  mustDec("5.00"),
		Stock:  1,
	})

	require.NoError(t, err)
	assert.Equal(t, "Obscure Title", book.Title)
	assert.Equal(t, "", book.CoverURL)
}

func TestCatalogCreateBook_MissingTitleAfterLookup(t *testing.T) {
	books := newFakeBookRepository()
	metadata := new(MockMetadataClient)
	metadata.On("Lookup", mock.Anything, mock.Anything).Return(nil, ErrISBNNotFound)
	uc := NewCatalogUseCase(books, metadata)

	_, err := uc.CreateBook(context.Background(), BookInput{
		Author: "Unknown",
		ISBN:   "0000000000",
		Price:  mustDec("5.00"),
	})

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "title", validation.Field)
}

func TestCatalogCreateBook_Validation(t *testing.T) {
	uc := NewCatalogUseCase(newFakeBookRepository(), new(MockMetadataClient))

	var validation *ValidationError

	_, err := uc.CreateBook(context.Background(), BookInput{Title: "T", ISBN: "1"})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "author", validation.Field)

	_, err = uc.CreateBook(context.Background(), BookInput{Title: "T", Author: "A"})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "isbn", validation.Field)

	_, err = uc.CreateBook(context.Background(), BookInput{Title: "T", Author: "A", ISBN: "1", Price: mustDec("-1")})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "price", validation.Field)

	_, err = uc.CreateBook(context.Background(), BookInput{Title: "T", Author: "A", ISBN: "1", Stock: -1})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "stock", validation.Field)
}

func TestCatalogUpdateBook(t *testing.T) {
	books := newFakeBookRepository(testBook("aaa", "Old Title", "10.00", 5))
	uc := NewCatalogUseCase(books, new(MockMetadataClient))

	book, err := uc.UpdateBook(context.Background(), "aaa", BookInput{
		Title:  "New Title",
		Author: "Author",
		ISBN:   "9780000000000",
		Price:  mustDec("12.50"),
		Stock:  8,
	})

	require.NoError(t, err)
	assert.Equal(t, "New Title", book.Title)
	assert.Equal(t, "12.50", book.Price.StringFixed(2))
	assert.Equal(t, 8, books.stock("aaa"))
}

func TestCatalogUpdateBook_NotFound(t *testing.T) {
	uc := NewCatalogUseCase(newFakeBookRepository(), new(MockMetadataClient))

	_, err := uc.UpdateBook(context.Background(), "ghost", BookInput{
		Title: "T", Author: "A", ISBN: "1",
	})

	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestCatalogDeleteBook(t *testing.T) {
	books := newFakeBookRepository(testBook("aaa", "Book A", "10.00", 5))
	uc := NewCatalogUseCase(books, new(MockMetadataClient))

	require.NoError(t, uc.DeleteBook(context.Background(), "aaa"))
	assert.ErrorIs(t, uc.DeleteBook(context.Background(), "aaa"), ErrBookNotFound)
}
