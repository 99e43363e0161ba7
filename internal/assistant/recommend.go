package assistant

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamestore/internal/model"
)

// Веса составляющих оценки товара.
const (
	weightAffinity   = 0.5
	weightPrice      = 0.3
	weightPopularity = 0.2

	purchaseAffinity   = 3
	viewAffinity       = 1
	preferenceAffinity = 5
)

// Recommendation содержит товар с оценкой релевантности.
type Recommendation struct {
	Product model.Product `json:"-"`
	Score   float64       `json:"score"`
}

// Recommend ранжирует доступные товары по интересам пользователя: категориям
// из истории и предпочтений, близости цены к средней покупке и популярности.
// Уже купленные пользователем товары и товары дороже MaxPrice исключаются.
func Recommend(products []model.Product, activity []model.Activity, prefs model.Preferences, limit int) []Recommendation {
	affinity := make(map[string]float64)
	purchased := make(map[string]struct{})
	var (
		spent  decimal.Decimal
		bought int64
	)

	for _, a := range activity {
		category := strings.ToLower(a.Details["type"])
		switch a.Type {
		case model.ActivityProductPurchase:
			purchased[a.ProductID] = struct{}{}
			if category != "" {
				affinity[category] += purchaseAffinity
			}
			if amount, err := decimal.NewFromString(a.Details["amount"]); err == nil {
				spent = spent.Add(amount)
				bought++
			}
		case model.ActivityProductView:
			if category != "" {
				affinity[category] += viewAffinity
			}
		}
	}
	for _, c := range prefs.Categories {
		affinity[strings.ToLower(c)] += preferenceAffinity
	}

	var maxAffinity float64
	for _, v := range affinity {
		maxAffinity = math.Max(maxAffinity, v)
	}

	var maxViews int64
	for _, p := range products {
		if p.Views > maxViews {
			maxViews = p.Views
		}
	}

	var avg float64
	if bought > 0 {
		avg = spent.Div(decimal.NewFromInt(bought)).InexactFloat64()
	}

	var res []Recommendation
	for _, p := range products {
		if !p.IsPurchasable() {
			continue
		}
		if _, ok := purchased[p.ID]; ok {
			continue
		}
		if prefs.MaxPrice != nil && p.Price.GreaterThan(*prefs.MaxPrice) {
			continue
		}

		var score float64
		if maxAffinity > 0 {
			score += weightAffinity * affinity[strings.ToLower(p.Type)] / maxAffinity
		}
		score += weightPrice * priceProximity(p.Price.InexactFloat64(), avg)
		if maxViews > 0 {
			score += weightPopularity * math.Log1p(float64(p.Views)) / math.Log1p(float64(maxViews))
		}
		res = append(res, Recommendation{Product: p, Score: score})
	}

	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Score != res[j].Score {
			return res[i].Score > res[j].Score
		}
		return res[i].Product.Name < res[j].Product.Name
	})

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

// priceProximity равна 1 при совпадении цены со средней покупкой и убывает к 0.
// Без истории покупок все цены считаются одинаково близкими.
func priceProximity(price, avg float64) float64 {
	if avg <= 0 {
		return 0.5
	}
	diff := math.Abs(price - avg)
	return 1 - diff/math.Max(price, avg)
}
