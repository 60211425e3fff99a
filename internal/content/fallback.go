package content

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/bloops-games/partyroom/internal/logging"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

func newBundle() (*i18n.Bundle, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	for _, e := range entries {
		data, err := locales.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
	}

	return bundle, nil
}

// WithFallback wraps gen so that every call succeeds: failures are logged and
// replaced by fixed content in the request language (English when unknown).
// A nil gen always yields the fallback.
func WithFallback(gen Generator) (*Fallback, error) {
	bundle, err := newBundle()
	if err != nil {
		return nil, fmt.Errorf("fallback bundle: %w", err)
	}

	return &Fallback{next: gen, bundle: bundle}, nil
}

var _ Generator = (*Fallback)(nil)

type Fallback struct {
	next   Generator
	bundle *i18n.Bundle
}

func (f *Fallback) localize(lang, id string) string {
	loc := i18n.NewLocalizer(f.bundle, lang, language.English.String())
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: id})
	if err != nil {
		// english is always present
		return i18n.NewLocalizer(f.bundle, language.English.String()).MustLocalize(&i18n.LocalizeConfig{MessageID: id})
	}
	return msg
}

func (f *Fallback) failed(ctx context.Context, flow string, err error) {
	logging.FromContext(ctx).Named("content.Fallback").Warnf("%s generation failed, using fallback: %v", flow, err)
}

func (f *Fallback) Category(ctx context.Context, req CategoryRequest) (CategoryResponse, error) {
	if f.next != nil {
		resp, err := f.next.Category(ctx, req)
		if err == nil {
			return resp, nil
		}
		f.failed(ctx, flowCategory, err)
	}

	return CategoryResponse{Category: f.localize(req.Language, "FallbackCategory")}, nil
}

func (f *Fallback) Words(ctx context.Context, req WordsRequest) (WordsResponse, error) {
	if f.next != nil {
		resp, err := f.next.Words(ctx, req)
		if err == nil {
			return resp, nil
		}
		f.failed(ctx, flowWords, err)
	}

	list := strings.Split(f.localize(req.Language, "FallbackWords"), ",")
	count := req.Count
	if count <= 0 {
		count = len(list)
	}

	words := make([]string, count)
	for i := range words {
		words[i] = list[i%len(list)]
	}

	return WordsResponse{Words: words}, nil
}

func (f *Fallback) Riddle(ctx context.Context, req RiddleRequest) (RiddleResponse, error) {
	if f.next != nil {
		resp, err := f.next.Riddle(ctx, req)
		if err == nil {
			return resp, nil
		}
		f.failed(ctx, flowRiddle, err)
	}

	return RiddleResponse{
		Category:   f.localize(req.Language, "FallbackRiddleCategory"),
		SecretWord: f.localize(req.Language, "FallbackRiddleWord"),
	}, nil
}

func (f *Fallback) SentenceTemplate(ctx context.Context, req SentenceRequest) (SentenceResponse, error) {
	if f.next != nil {
		resp, err := f.next.SentenceTemplate(ctx, req)
		if err == nil {
			return resp, nil
		}
		f.failed(ctx, flowSentence, err)
	}

	return SentenceResponse{Template: f.localize(req.Language, "FallbackTemplate")}, nil
}
