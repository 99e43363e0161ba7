package service

import (
	"context"

	"github.com/mmeshcher/gamestore/internal/assistant"
	"github.com/mmeshcher/gamestore/internal/model"
)

const recommendationPool = 100

// Advisor отвечает на вопросы покупателей и подбирает товары.
type Advisor struct {
	catalog *Catalog
	users   *UserDirectory
	faq     *assistant.FAQ
}

// NewAdvisor создаёт помощника поверх каталога и профилей.
func NewAdvisor(catalog *Catalog, users *UserDirectory, faq *assistant.FAQ) *Advisor {
	return &Advisor{catalog: catalog, users: users, faq: faq}
}

// Ask возвращает ответ из базы частых вопросов.
func (a *Advisor) Ask(question string) assistant.Reply {
	return a.faq.Answer(question)
}

// Recommend подбирает товары для пользователя по его истории и предпочтениям.
func (a *Advisor) Recommend(ctx context.Context, userID string, limit int) ([]assistant.Recommendation, error) {
	available := true
	products, err := a.catalog.Search(ctx, model.ProductFilter{Available: &available, Limit: recommendationPool})
	if err != nil {
		return nil, err
	}

	activity, err := a.users.Activity(ctx, userID, ActivityLimit)
	if err != nil {
		return nil, err
	}

	var prefs model.Preferences
	if u, err := a.users.Get(ctx, userID); err == nil {
		prefs = u.Preferences
	}

	return assistant.Recommend(products, activity, prefs, limit), nil
}
