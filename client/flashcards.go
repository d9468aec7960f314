package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/trezcool/kalamu/core/flashcard"
)

// ListSets returns the sets without their cards; folderID may be empty.
func (c *Client) ListSets(ctx context.Context, folderID string) ([]flashcard.Set, error) {
	var query url.Values
	if folderID != "" {
		query = url.Values{"module_id": {folderID}}
	}
	sets := make([]flashcard.Set, 0)
	if err := c.call(ctx, http.MethodGet, "/flashcards/sets", query, nil, &sets); err != nil {
		return nil, err
	}
	return sets, nil
}

func (c *Client) GetSet(ctx context.Context, id string) (*flashcard.Set, error) {
	var s flashcard.Set
	if err := c.call(ctx, http.MethodGet, "/flashcards/sets/"+url.PathEscape(id), nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) DeleteSet(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/flashcards/sets/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) FlashcardStats(ctx context.Context, folderID string) (*flashcard.Stats, error) {
	var query url.Values
	if folderID != "" {
		query = url.Values{"module_id": {folderID}}
	}
	var st flashcard.Stats
	if err := c.call(ctx, http.MethodGet, "/flashcards/stats", query, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) GenerateSet(ctx context.Context, gr flashcard.GenerateRequest) (*flashcard.Set, error) {
	var s flashcard.Set
	if err := c.call(ctx, http.MethodPost, "/flashcards/generate", nil, gr, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ReviewCard(ctx context.Context, cardID string, correct bool) (*flashcard.Flashcard, error) {
	var card flashcard.Flashcard
	in := flashcard.Review{Correct: correct}
	if err := c.call(ctx, http.MethodPost, "/flashcards/cards/"+url.PathEscape(cardID)+"/review", nil, in, &card); err != nil {
		return nil, err
	}
	return &card, nil
}
