package deck

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ncmcp/ncclient/internal/httpclient"
	"github.com/ncmcp/ncclient/internal/mutation"
)

func (c *deckClient) GetCard(ctx context.Context, boardID, stackID, cardID int64) (*Card, error) {
	var card Card
	resp, err := c.httpClient.DoJSON(ctx, http.MethodGet, cardPath(boardID, stackID, cardID), nil, nil, &card)
	if err != nil {
		return nil, fmt.Errorf("failed to get card %d: %w", cardID, err)
	}
	if card.ETag == "" {
		card.ETag = resp.ETag()
	}
	return &card, nil
}

func (c *deckClient) CreateCard(ctx context.Context, boardID, stackID int64, spec CardSpec) (*Card, error) {
	if spec.Title == "" {
		return nil, fmt.Errorf("card title is required")
	}
	typ := spec.Type
	if typ == "" {
		typ = "plain"
	}
	body := map[string]any{
		"title": spec.Title,
		"type":  typ,
		"order": spec.Order.OrElse(DefaultCardOrder),
	}
	if spec.Description != "" {
		body["description"] = spec.Description
	}
	if spec.DueDate != "" {
		body["duedate"] = spec.DueDate
	}

	var card Card
	p := stackPath(boardID, stackID) + "/cards"
	if _, err := c.httpClient.DoJSON(ctx, http.MethodPost, p, nil, body, &card); err != nil {
		return nil, fmt.Errorf("failed to create card %q: %w", spec.Title, err)
	}
	c.logger.Info("created card", "board", boardID, "stack", stackID, "card", card.ID)
	return &card, nil
}

// merge applies the patch to a copy of card.
func (p CardPatch) merge(card *Card) *Card {
	out := *card
	if v, ok := p.Title.Get(); ok {
		out.Title = v
	}
	if v, ok := p.Description.Get(); ok {
		out.Description = v
	}
	if v, ok := p.Type.Get(); ok {
		out.Type = v
	}
	if v, ok := p.Owner.Get(); ok {
		out.Owner = Owner{User{PrimaryKey: v, UID: v}}
	}
	if v, ok := p.Order.Get(); ok {
		out.Order = v
	}
	if v, ok := p.DueDate.Get(); ok {
		out.DueDate = v
	}
	if v, ok := p.Archived.Get(); ok {
		out.Archived = v
	}
	if v, ok := p.Done.Get(); ok {
		out.Done = v
	}
	return &out
}

// body sends the patched fields plus the required type and owner of merged.
func (p CardPatch) body(merged *Card) map[string]any {
	body := map[string]any{
		"type":  merged.Type,
		"owner": merged.Owner.ID(),
	}
	if p.Title.IsPresent() {
		body["title"] = merged.Title
	}
	if p.Description.IsPresent() {
		body["description"] = merged.Description
	}
	if p.Order.IsPresent() {
		body["order"] = merged.Order
	}
	if p.DueDate.IsPresent() {
		body["duedate"] = merged.DueDate
	}
	if p.Archived.IsPresent() {
		body["archived"] = merged.Archived
	}
	if p.Done.IsPresent() {
		body["done"] = merged.Done
	}
	return body
}

// UpdateCard reads the card, merges the patch and writes it back. The write
// is conditional on the card's ETag when the server exposes one.
func (c *deckClient) UpdateCard(ctx context.Context, boardID, stackID, cardID int64, patch CardPatch) (*Card, error) {
	path := cardPath(boardID, stackID, cardID)
	current, err := c.GetCard(ctx, boardID, stackID, cardID)
	if err != nil {
		return nil, err
	}

	var updated Card
	ops := mutation.Ops[*Card]{
		Resource: path,
		Read: func(ctx context.Context) (*Card, string, error) {
			return current, current.ETag, nil
		},
		Merge: func(card *Card) (*Card, error) {
			return patch.merge(card), nil
		},
		Write: func(ctx context.Context, merged *Card, tag string) (string, error) {
			header := http.Header{}
			if tag != "" {
				header.Set("If-Match", httpclient.QuoteETag(tag))
			}
			resp, err := c.httpClient.DoJSON(ctx, http.MethodPut, path, header, patch.body(merged), &updated)
			if err != nil {
				return "", err
			}
			if updated.ETag == "" {
				updated.ETag = resp.ETag()
			}
			return updated.ETag, nil
		},
	}

	var merged *Card
	if current.ETag == "" {
		c.logger.Debug("card has no etag, updating unconditionally", "card", cardID)
		merged = patch.merge(current)
		if _, err := ops.Write(ctx, merged, ""); err != nil {
			return nil, fmt.Errorf("failed to update card %d: %w", cardID, err)
		}
	} else {
		res, err := mutation.Apply(ctx, ops)
		if err != nil {
			return nil, fmt.Errorf("failed to update card %d: %w", cardID, err)
		}
		merged = res.Value
	}
	c.logger.Info("updated card", "board", boardID, "stack", stackID, "card", cardID)

	if updated.ID == 0 {
		return merged, nil
	}
	return &updated, nil
}

func (c *deckClient) DeleteCard(ctx context.Context, boardID, stackID, cardID int64) error {
	if _, err := c.httpClient.DoJSON(ctx, http.MethodDelete, cardPath(boardID, stackID, cardID), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete card %d: %w", cardID, err)
	}
	c.logger.Info("deleted card", "board", boardID, "stack", stackID, "card", cardID)
	return nil
}
