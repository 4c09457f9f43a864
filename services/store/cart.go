package main

// Cart é o mapeamento livro -> quantidade desejada de uma sessão. Pertence
// exclusivamente a uma sessão, então nenhum lock é necessário aqui.
// Invariante: só quantidades positivas ficam no mapa.
type Cart struct {
	Items map[string]int `json:"items"`
}

// NewCart cria um carrinho vazio
func NewCart() Cart {
	return Cart{Items: map[string]int{}}
}

// Add incrementa a quantidade de um livro (ou insere a entrada)
func (c *Cart) Add(bookID string, quantity int) error {
	if quantity <= 0 {
		return &ValidationError{Field: "quantity", Message: "quantity must be a positive integer"}
	}
	if c.Items == nil {
		c.Items = map[string]int{}
	}
	c.Items[bookID] += quantity
	return nil
}

// SetQuantities substitui o mapeamento inteiro. Entradas com quantidade não
// positiva são descartadas em silêncio em vez de rejeitar a requisição
// (política leniente herdada do comportamento original).
func (c *Cart) SetQuantities(quantities map[string]int) {
	next := map[string]int{}
	for bookID, qty := range quantities {
		if qty > 0 {
			next[bookID] = qty
		}
	}
	c.Items = next
}

// Remove apaga a entrada do livro, no-op se não existir
func (c *Cart) Remove(bookID string) {
	delete(c.Items, bookID)
}

// Clear esvazia o carrinho; chamado só depois de um checkout bem sucedido
func (c *Cart) Clear() {
	c.Items = map[string]int{}
}

// Snapshot devolve uma cópia do mapeamento para o orquestrador trabalhar
// sobre uma visão consistente
func (c *Cart) Snapshot() map[string]int {
	snapshot := make(map[string]int, len(c.Items))
	for bookID, qty := range c.Items {
		snapshot[bookID] = qty
	}
	return snapshot
}

// IsEmpty informa se o carrinho está vazio
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
