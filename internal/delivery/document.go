// Package delivery renders RFQ documents and hands them to suppliers.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurement/internal/model"
)

// ErrNoAddress means the supplier has no contact point for the chosen channel.
var ErrNoAddress = errors.New("supplier has no address for this channel")

// Document is a rendered RFQ attachment.
type Document struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Message is the text that accompanies a document.
type Message struct {
	Subject string
	Body    string
}

// RFQ carries what a renderer needs to build the RFQ document.
type RFQ struct {
	Number   string
	Request  *model.PurchaseRequest
	Deadline time.Time
	Contact  string
}

// NewRFQMessage builds the cover text sent to one supplier.
func NewRFQMessage(rfq RFQ, supplier model.Supplier) Message {
	return Message{
		Subject: fmt.Sprintf("Request for quotation %s: %s", rfq.Number, rfq.Request.Title),
		Body: fmt.Sprintf(
			"Dear %s,\n\nPlease quote the items listed in the attached document (%s, purchase request %s).\n"+
				"Quotations are accepted until %s.\n\nRegards,\n%s",
			supplier.DisplayName(), rfq.Number, rfq.Request.RequestNumber,
			rfq.Deadline.Format("2006-01-02"), rfq.Contact,
		),
	}
}

// runWithContext runs fn and returns early with ctx.Err() when ctx ends first.
// fn keeps running in the background in that case; its result is discarded.
func runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
