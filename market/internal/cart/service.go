package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	inErrors "github.com/Alturino/fitclub/internal/errors"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/otel"
)

// Service loads, mutates and persists a cart on every call. Concurrent writers
// on the same cart are last-write-wins.
type Service struct {
	store           Store
	defaultCurrency string
}

func NewService(store Store, defaultCurrency string) *Service {
	return &Service{store: store, defaultCurrency: defaultCurrency}
}

func (svc *Service) Get(c context.Context, sessionID string, storefront Storefront) (Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService Get", trace.WithAttributes(
		attribute.String(log.KeyStorefront, string(storefront)),
	))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "CartService Get").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyStorefront, string(storefront)).
		Str(log.KeyProcess, "finding cart").
		Logger()

	logger.Trace().Msg("finding cart")
	cart, err := svc.load(c, sessionID, storefront)
	if err != nil {
		err = fmt.Errorf("failed finding cart with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Cart{}, err
	}
	logger.Trace().Object(log.KeyCart, cart).Msg("found cart")

	return cart, nil
}

// Add adds quantity of product, on top of what the cart already holds. New
// items are priced in the cart currency. currency, when set, picks the
// currency of a cart that is still empty.
func (svc *Service) Add(
	c context.Context,
	sessionID string,
	storefront Storefront,
	product Product,
	quantity int,
	currency string,
) (Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService Add", trace.WithAttributes(
		attribute.String(log.KeyStorefront, string(storefront)),
		attribute.String(log.KeyProductID, product.ID),
		attribute.Int(log.KeyQuantity, quantity),
	))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "CartService Add").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyStorefront, string(storefront)).
		Str(log.KeyProductID, product.ID).
		Int(log.KeyQuantity, quantity).
		Str(log.KeyProcess, "adding item to cart").
		Logger()

	logger.Trace().Msg("adding item to cart")
	cart, err := svc.mutate(c, sessionID, storefront, func(cart *Cart) error {
		if cart.Empty() && currency != "" {
			cart.Currency = currency
		}
		return cart.add(product, quantity)
	})
	if err != nil {
		err = fmt.Errorf("failed adding item to cart with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Cart{}, err
	}
	logger.Info().Object(log.KeyCart, cart).Msg("added item to cart")

	return cart, nil
}

// Update sets the quantity of an item. A quantity of zero or less removes it.
func (svc *Service) Update(
	c context.Context,
	sessionID string,
	storefront Storefront,
	productID string,
	quantity int,
) (Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService Update", trace.WithAttributes(
		attribute.String(log.KeyStorefront, string(storefront)),
		attribute.String(log.KeyProductID, productID),
		attribute.Int(log.KeyQuantity, quantity),
	))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "CartService Update").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyStorefront, string(storefront)).
		Str(log.KeyProductID, productID).
		Int(log.KeyQuantity, quantity).
		Str(log.KeyProcess, "updating cart item").
		Logger()

	logger.Trace().Msg("updating cart item")
	cart, err := svc.mutate(c, sessionID, storefront, func(cart *Cart) error {
		return cart.update(productID, quantity)
	})
	if err != nil {
		err = fmt.Errorf("failed updating cart item with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Cart{}, err
	}
	logger.Info().Object(log.KeyCart, cart).Msg("updated cart item")

	return cart, nil
}

func (svc *Service) Remove(
	c context.Context,
	sessionID string,
	storefront Storefront,
	productID string,
) (Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService Remove", trace.WithAttributes(
		attribute.String(log.KeyStorefront, string(storefront)),
		attribute.String(log.KeyProductID, productID),
	))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "CartService Remove").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyStorefront, string(storefront)).
		Str(log.KeyProductID, productID).
		Str(log.KeyProcess, "removing cart item").
		Logger()

	logger.Trace().Msg("removing cart item")
	cart, err := svc.mutate(c, sessionID, storefront, func(cart *Cart) error {
		return cart.remove(productID)
	})
	if err != nil {
		err = fmt.Errorf("failed removing cart item with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Cart{}, err
	}
	logger.Info().Object(log.KeyCart, cart).Msg("removed cart item")

	return cart, nil
}

// SetCurrency reprices the whole cart. It fails without changes when any item
// has no price in currency.
func (svc *Service) SetCurrency(
	c context.Context,
	sessionID string,
	storefront Storefront,
	currency string,
) (Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService SetCurrency", trace.WithAttributes(
		attribute.String(log.KeyStorefront, string(storefront)),
		attribute.String(log.KeyCurrency, currency),
	))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "CartService SetCurrency").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyStorefront, string(storefront)).
		Str(log.KeyCurrency, currency).
		Str(log.KeyProcess, "changing cart currency").
		Logger()

	logger.Trace().Msg("changing cart currency")
	cart, err := svc.mutate(c, sessionID, storefront, func(cart *Cart) error {
		return cart.setCurrency(currency)
	})
	if err != nil {
		err = fmt.Errorf("failed changing cart currency with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Cart{}, err
	}
	logger.Info().Object(log.KeyCart, cart).Msg("changed cart currency")

	return cart, nil
}

func (svc *Service) Clear(c context.Context, sessionID string, storefront Storefront) error {
	c, span := otel.Tracer.Start(c, "CartService Clear", trace.WithAttributes(
		attribute.String(log.KeyStorefront, string(storefront)),
	))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "CartService Clear").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyStorefront, string(storefront)).
		Str(log.KeyProcess, "clearing cart").
		Logger()

	logger.Trace().Msg("clearing cart")
	if err := svc.store.Delete(c, sessionID, storefront); err != nil {
		err = fmt.Errorf("failed clearing cart with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("cleared cart")

	return nil
}

func (svc *Service) load(c context.Context, sessionID string, storefront Storefront) (Cart, error) {
	cart, err := svc.store.Get(c, sessionID, storefront)
	if errors.Is(err, ErrCartNotFound) {
		return New(storefront, svc.defaultCurrency), nil
	}
	if err != nil {
		return Cart{}, err
	}
	return cart, nil
}

func (svc *Service) mutate(
	c context.Context,
	sessionID string,
	storefront Storefront,
	fn func(*Cart) error,
) (Cart, error) {
	cart, err := svc.load(c, sessionID, storefront)
	if err != nil {
		return Cart{}, err
	}
	if err := fn(&cart); err != nil {
		return Cart{}, err
	}
	if err := svc.store.Set(c, sessionID, cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}
