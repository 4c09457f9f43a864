package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// BookMetadata é o resultado best-effort da consulta de metadados por ISBN
type BookMetadata struct {
	ISBN     string `json:"isbn"`
	Title    string `json:"title"`
	CoverURL string `json:"cover_url"`
}

// MetadataClient define a interface do serviço externo de metadados. Usado só
// nos fluxos de administração do catálogo, nunca no checkout.
type MetadataClient interface {
	Lookup(ctx context.Context, isbn string) (*BookMetadata, error)
}

type openLibraryEdition struct {
	Title string `json:"title"`
}

// OpenLibraryClient implementa MetadataClient contra a Open Library
type OpenLibraryClient struct {
	http *resty.Client
}

// NewOpenLibraryClient cria uma nova instância de OpenLibraryClient
func NewOpenLibraryClient(baseURL string) *OpenLibraryClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second)

	return &OpenLibraryClient{http: client}
}

func (c *OpenLibraryClient) Lookup(ctx context.Context, isbn string) (*BookMetadata, error) {
	if isbn == "" {
		return nil, &ValidationError{Field: "isbn", Message: "isbn is required"}
	}

	var edition openLibraryEdition
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&edition).
		Get(fmt.Sprintf("/isbn/%s.json", url.PathEscape(isbn)))
	if err != nil {
		return nil, fmt.Errorf("isbn lookup failed: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, ErrISBNNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("isbn lookup failed: status %d", resp.StatusCode())
	}

	return &BookMetadata{
		ISBN:     isbn,
		Title:    edition.Title,
		CoverURL: fmt.Sprintf("https://covers.openlibrary.org/b/isbn/%s-L.jpg", url.PathEscape(isbn)),
	}, nil
}
