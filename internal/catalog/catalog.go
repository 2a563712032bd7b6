package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"rental-service/internal/engine"
	"rental-service/internal/ledger"
	"rental-service/internal/models"
	"rental-service/internal/redisclient"
	"rental-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const listingsTTL = 30 * time.Second

// Catalog manages properties and viewing requests. Writes go through the
// same ledger transactions as bookings, so availability and the booking
// set can never diverge from the listing data.
type Catalog struct {
	store        *ledger.Store
	cache        *redisclient.Client
	logger       *zap.Logger
	maxRetries   int
	retryBackoff time.Duration
}

// Options tunes the catalog's write-retry budget. The composition root
// passes the same commit-retry knobs the engine honors, so the two
// budgets cannot drift.
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// NewCatalog creates a catalog. cache may be nil; listing reads then
// always hit the ledger.
func NewCatalog(store *ledger.Store, cache *redisclient.Client, opts Options) *Catalog {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 20 * time.Millisecond
	}
	return &Catalog{
		store:        store,
		cache:        cache,
		logger:       util.GetLogger(),
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
	}
}

func (c *Catalog) withRetry(ctx context.Context, fn func(doc *models.Ledger) error) error {
	backoff := c.retryBackoff
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		tx, err := c.store.Begin(ctx)
		if err != nil {
			return err
		}
		if err := fn(tx.Doc()); err != nil {
			tx.Abort()
			return err
		}
		err = tx.Commit(ctx)
		if err == nil {
			c.invalidate(ctx)
			return nil
		}
		if !errors.Is(err, ledger.ErrConflict) {
			return err
		}
		// No sleep after the final failure.
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return &engine.Denial{Reason: engine.ReasonConflictExhausted, Detail: "catalog write retry budget exhausted"}
}

func (c *Catalog) invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.InvalidateListings(ctx); err != nil {
		c.logger.Warn("Failed to invalidate listings cache", zap.Error(err))
	}
}

// InvalidateCache drops the cached listing page. Called after booking and
// payment transitions, which change availability.
func (c *Catalog) InvalidateCache(ctx context.Context) {
	c.invalidate(ctx)
}

// PropertyInput carries the administrator-editable fields.
type PropertyInput struct {
	Title       string `json:"title" binding:"required"`
	Location    string `json:"location" binding:"required"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Price       int64  `json:"price" binding:"required,min=1"`
}

// AddProperty creates a new listing in AVAILABLE state.
func (c *Catalog) AddProperty(ctx context.Context, in *PropertyInput) (*models.Property, error) {
	property := &models.Property{
		ID:           uuid.New().String(),
		Title:        in.Title,
		Location:     in.Location,
		Description:  in.Description,
		ImageURL:     in.ImageURL,
		Price:        in.Price,
		Availability: models.AvailabilityAvailable,
	}

	err := c.withRetry(ctx, func(doc *models.Ledger) error {
		property.CreatedAt = time.Now().UTC()
		doc.Properties[property.ID] = property.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Property added",
		zap.String("property_id", property.ID),
		zap.String("title", property.Title))
	return property, nil
}

// UpdateProperty edits listing fields. Availability is derived from
// bookings and cannot be edited here.
func (c *Catalog) UpdateProperty(ctx context.Context, propertyID string, in *PropertyInput) (*models.Property, error) {
	var updated *models.Property
	err := c.withRetry(ctx, func(doc *models.Ledger) error {
		p, ok := doc.Properties[propertyID]
		if !ok {
			return &engine.Denial{Reason: engine.ReasonPropertyNotFound, Detail: propertyID}
		}
		if in.Title != "" {
			p.Title = in.Title
		}
		if in.Location != "" {
			p.Location = in.Location
		}
		if in.Description != "" {
			p.Description = in.Description
		}
		if in.ImageURL != "" {
			p.ImageURL = in.ImageURL
		}
		if in.Price > 0 {
			p.Price = in.Price
		}
		updated = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveProperty deletes a listing. Denied while non-terminal bookings
// reference it.
func (c *Catalog) RemoveProperty(ctx context.Context, propertyID string) error {
	return c.withRetry(ctx, func(doc *models.Ledger) error {
		if err := engine.CheckRemoveProperty(doc, propertyID); err != nil {
			return err
		}
		delete(doc.Properties, propertyID)
		return nil
	})
}

// GetProperty retrieves one listing.
func (c *Catalog) GetProperty(ctx context.Context, propertyID string) (*models.Property, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Abort()

	p, ok := tx.Doc().Properties[propertyID]
	if !ok {
		return nil, &engine.Denial{Reason: engine.ReasonPropertyNotFound, Detail: propertyID}
	}
	return p, nil
}

// ListProperties returns all listings, newest first, through the cache.
func (c *Catalog) ListProperties(ctx context.Context) ([]*models.Property, error) {
	if c.cache != nil {
		data, hit, err := c.cache.GetListings(ctx)
		if err != nil {
			c.logger.Warn("Listings cache read failed", zap.Error(err))
		} else if hit {
			var props []*models.Property
			if err := json.Unmarshal(data, &props); err == nil {
				return props, nil
			}
		}
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	doc := tx.Doc()
	tx.Abort()

	props := make([]*models.Property, 0, len(doc.Properties))
	for _, p := range doc.Properties {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i].CreatedAt.After(props[j].CreatedAt) })

	if c.cache != nil {
		if data, err := json.Marshal(props); err == nil {
			if err := c.cache.SetListings(ctx, data, listingsTTL); err != nil {
				c.logger.Warn("Listings cache write failed", zap.Error(err))
			}
		}
	}
	return props, nil
}

// ViewingInput is a customer's request to view a property in person.
type ViewingInput struct {
	PropertyID   string `json:"property_id" binding:"required"`
	CustomerID   string `json:"customer_id" binding:"required"`
	CustomerName string `json:"customer_name"`
	Date         string `json:"date"`
}

// CreateViewingRequest records a PENDING viewing request.
func (c *Catalog) CreateViewingRequest(ctx context.Context, in *ViewingInput) (*models.ViewingRequest, error) {
	vr := &models.ViewingRequest{
		ID:           uuid.New().String(),
		PropertyID:   in.PropertyID,
		CustomerID:   in.CustomerID,
		CustomerName: in.CustomerName,
		Date:         in.Date,
		Status:       models.ViewingStatusPending,
	}

	err := c.withRetry(ctx, func(doc *models.Ledger) error {
		if _, ok := doc.Properties[in.PropertyID]; !ok {
			return &engine.Denial{Reason: engine.ReasonPropertyNotFound, Detail: in.PropertyID}
		}
		vr.CreatedAt = time.Now().UTC()
		copied := *vr
		doc.ViewingRequests[vr.ID] = &copied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vr, nil
}

// ListViewingRequests returns all viewing requests, newest first.
func (c *Catalog) ListViewingRequests(ctx context.Context) ([]*models.ViewingRequest, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	doc := tx.Doc()
	tx.Abort()

	out := make([]*models.ViewingRequest, 0, len(doc.ViewingRequests))
	for _, vr := range doc.ViewingRequests {
		out = append(out, vr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ApproveViewingRequest marks a viewing request approved.
func (c *Catalog) ApproveViewingRequest(ctx context.Context, requestID string) (*models.ViewingRequest, error) {
	var approved *models.ViewingRequest
	err := c.withRetry(ctx, func(doc *models.Ledger) error {
		vr, ok := doc.ViewingRequests[requestID]
		if !ok {
			return &engine.Denial{Reason: engine.ReasonBookingNotFound, Detail: "viewing request " + requestID}
		}
		vr.Status = models.ViewingStatusApproved
		copied := *vr
		approved = &copied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}
