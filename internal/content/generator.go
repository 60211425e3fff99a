// Package content requests round content (categories, word lists, riddles and
// sentence templates) from an external generation service.
package content

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("empty content response")

type Generator interface {
	Category(ctx context.Context, req CategoryRequest) (CategoryResponse, error)
	Words(ctx context.Context, req WordsRequest) (WordsResponse, error)
	Riddle(ctx context.Context, req RiddleRequest) (RiddleResponse, error)
	SentenceTemplate(ctx context.Context, req SentenceRequest) (SentenceResponse, error)
}

type CategoryRequest struct {
	PreviousCategories []string `json:"previousCategories"`
	// SuccessRate is 0.5 before the first round, then 1 or 0 depending on
	// whether the last round matched.
	SuccessRate float64 `json:"successRate"`
	Language    string  `json:"language"`
}

type CategoryResponse struct {
	Category string `json:"category"`
}

type WordsRequest struct {
	PreviousWords []string `json:"previousWords"`
	Language      string   `json:"language"`
	Count         int      `json:"count"`
}

type WordsResponse struct {
	Words []string `json:"words"`
}

type RiddleRequest struct {
	PreviousWords []string `json:"previousWords"`
	Language      string   `json:"language"`
}

type RiddleResponse struct {
	Category   string `json:"category"`
	SecretWord string `json:"secretWord"`
}

type SentenceRequest struct {
	PreviousTemplates []string `json:"previousTemplates"`
	Language          string   `json:"language"`
}

// SentenceResponse holds a template with one or more [type] blank markers.
type SentenceResponse struct {
	Template string `json:"template"`
}
