// Package engage computes the engagement score used to order creator content
// in discovery surfaces. Separable utility; nothing here touches settlement.
package engage

import (
	"math"
	"time"
)

// Weights applied to each engagement signal.
const (
	likeWeight     = 1.0
	commentWeight  = 3.0
	tipWeight      = 5.0
	purchaseWeight = 10.0
)

// halfLife is the age at which a signal's contribution halves.
const halfLife = 72 * time.Hour

// Counters are the raw engagement counts for one piece of content.
type Counters struct {
	Likes     int64
	Comments  int64
	Tips      int64
	Purchases int64
}

// Score combines weighted engagement counts with exponential time decay.
// Older content needs proportionally more engagement to outrank fresh posts.
func Score(c Counters, age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	raw := likeWeight*float64(c.Likes) +
		commentWeight*float64(c.Comments) +
		tipWeight*float64(c.Tips) +
		purchaseWeight*float64(c.Purchases)
	decay := math.Exp2(-age.Hours() / halfLife.Hours())
	return raw * decay
}
