// Package route maps classified messages onto domain handlers: academic
// correspondence, billing mail, and everything else. The router itself is a
// pure decision table; handlers own the side effects.
package route

import (
	"context"

	"github.com/yuqing-ac/mailtriage/internal/classify"
	"github.com/yuqing-ac/mailtriage/internal/mail"
)

// Handler turns one validated record into destination upserts.
type Handler interface {
	Name() string
	// Handle processes one message. synced reports whether the message's
	// facts reached the destination (false for deliberately dropped records).
	// A non-nil error leaves the message un-ledgered for retry.
	Handle(ctx context.Context, msg mail.Message, coarse classify.Category, rec *classify.DeepRecord) (synced bool, err error)
}

// Router is the decision table from (coarse label, deep category, spam flag)
// to a handler.
type Router struct {
	academic Handler
	billing  Handler
	general  Handler
}

// NewRouter wires the three handlers.
func NewRouter(academic, billing, general Handler) *Router {
	return &Router{academic: academic, billing: billing, general: general}
}

// Route picks the handler for a message. rec is nil for categories that skip
// deep analysis. A nil return means no handler runs (trash: the message is
// ledgered for dedup and marked read, nothing more).
func (r *Router) Route(coarse classify.Category, rec *classify.DeepRecord) Handler {
	if coarse == classify.CategoryTrash {
		return nil
	}
	if rec != nil {
		// The spam override has already forced noise records to the terminal
		// category; they go to the general handler, which may drop them.
		if rec.Spam {
			return r.general
		}
		switch rec.Category {
		case classify.CategoryPaper, classify.CategoryReview:
			return r.academic
		case classify.CategoryBilling:
			return r.billing
		case classify.CategoryTrash:
			return nil
		}
		return r.general
	}
	if coarse == classify.CategoryBilling {
		return r.billing
	}
	return r.general
}
