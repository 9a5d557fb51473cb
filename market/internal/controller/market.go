package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Alturino/fitclub/internal/constants"
	inErrors "github.com/Alturino/fitclub/internal/errors"
	inHttp "github.com/Alturino/fitclub/internal/http"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/otel"
	"github.com/Alturino/fitclub/internal/session"
	"github.com/Alturino/fitclub/market/internal/cart"
	"github.com/Alturino/fitclub/market/internal/checkout"
	"github.com/Alturino/fitclub/market/pkg/request"
)

type MarketController struct {
	carts    *cart.Service
	checkout *checkout.Service
	validate *validator.Validate
}

func AttachMarketController(mux *mux.Router, carts *cart.Service, checkout *checkout.Service) {
	controller := MarketController{
		carts:    carts,
		checkout: checkout,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	router := mux.PathPrefix("/market/{storefront}").Subrouter()
	router.HandleFunc("/cart", controller.GetCart).Methods(http.MethodGet)
	router.HandleFunc("/cart", controller.ClearCart).Methods(http.MethodDelete)
	router.HandleFunc("/cart/items", controller.AddCartItem).Methods(http.MethodPost)
	router.HandleFunc("/cart/items/{productId}", controller.UpdateCartItem).Methods(http.MethodPut)
	router.HandleFunc("/cart/items/{productId}", controller.RemoveCartItem).Methods(http.MethodDelete)
	router.HandleFunc("/cart/currency", controller.SetCurrency).Methods(http.MethodPut)
	router.HandleFunc("/checkout", controller.Checkout).Methods(http.MethodPost)
	router.HandleFunc("/checkouts", controller.FindCheckouts).Methods(http.MethodGet)
	router.HandleFunc("/{provider}/validate", controller.Validate).
		Methods(http.MethodGet, http.MethodPost).
		Name(constants.ROUTE_PAYMENT_CALLBACK)
}

// target reads the session id set by the session middleware and the storefront
// path value.
func target(r *http.Request) (string, cart.Storefront, error) {
	sessionID, ok := session.IDFromContext(r.Context())
	if !ok {
		return "", "", inErrors.ErrEmptySession
	}
	storefront, err := cart.ParseStorefront(mux.Vars(r)["storefront"])
	if err != nil {
		return "", "", err
	}
	return sessionID, storefront, nil
}

func (t MarketController) decode(r *http.Request, body any) error {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		return fmt.Errorf("%w: %w", inErrors.ErrInvalidBody, err)
	}
	if err := t.validate.StructCtx(r.Context(), body); err != nil {
		return fmt.Errorf("%w: %w", inErrors.ErrInvalidBody, err)
	}
	return nil
}

func (t MarketController) GetCart(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "MarketController GetCart")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "MarketController GetCart").
		Str(log.KeyProcess, "reading path").
		Logger()

	sessionID, storefront, err := target(r)
	if err != nil {
		err = fmt.Errorf("failed reading path with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "finding cart").Logger()
	logger.Trace().Msg("finding cart")
	current, err := t.carts.Get(logger.WithContext(c), sessionID, storefront)
	if err != nil {
		err = fmt.Errorf("failed finding cart with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	logger.Trace().Msg("found cart")

	inHttp.WriteSuccess(c, w, "cart found", map[string]interface{}{"cart": current.Response()})
}

func (t MarketController) AddCartItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "MarketController AddCartItem")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "MarketController AddCartItem").
		Str(log.KeyProcess, "reading path").
		Logger()

	sessionID, storefront, err := target(r)
	if err != nil {
		err = fmt.Errorf("failed reading path with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Trace().Msg("decoding request body")
	reqBody := request.AddCartItem{}
	if err := t.decode(r, &reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	logger = logger.With().
		Str(log.KeyProductID, reqBody.Product.ID).
		Int(log.KeyQuantity, reqBody.Quantity).
		Logger()
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "adding item to cart").Logger()
	logger.Trace().Msg("adding item to cart")
	current, err := t.carts.Add(
		logger.WithContext(c),
		sessionID,
		storefront,
		cart.ProductFromRequest(reqBody.Product),
		reqBody.Quantity,
		strings.ToUpper(reqBody.Currency),
	)
	if err != nil {
		err = fmt.Errorf("failed adding item to cart with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	logger.Info().Msg("added item to cart")

	inHttp.WriteSuccess(c, w, "item added to cart", map[string]interface{}{"cart": current.Response()})
}

func (t MarketController) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "MarketController UpdateCartItem")
	defer span.End()

	productID := mux.Vars(r)["productId"]
	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "MarketController UpdateCartItem").
		Str(log.KeyProductID, productID).
		Str(log.KeyProcess, "reading path").
		Logger()

	sessionID, storefront, err := target(r)
	if err != nil {
		err = fmt.Errorf("failed reading path with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Trace().Msg("decoding request body")
	reqBody := request.UpdateCartItem{}
	if err := t.decode(r, &reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	logger = logger.With().Int(log.KeyQuantity, reqBody.Quantity).Logger()
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "updating cart item").Logger()
	logger.Trace().Msg("updating cart item")
	current, err := t.carts.Update(logger.WithContext(c), sessionID, storefront, productID, reqBody.Quantity)
	if err != nil {
		err = fmt.Errorf("failed updating cart item with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	logger.Info().Msg("updated cart item")

	inHttp.WriteSuccess(c, w, "cart item updated", map[string]interface{}{"cart": current.Response()})
}

func (t MarketController) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "MarketController RemoveCartItem")
	defer span.End()

	productID := mux.Vars(r)["productId"]
	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "MarketController RemoveCartItem").
		Str(log.KeyProductID, productID).
		Str(log.KeyProcess, "reading path").
		Logger()

	sessionID, storefront, err := target(r)
	if err != nil {
		err = fmt.Errorf("failed reading path with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "removing cart item").Logger()
	logger.Trace().Msg("removing cart item")
	current, err := t.carts.Remove(logger.WithContext(c), sessionID, storefront, productID)
	if err != nil {
		err = fmt.Errorf("failed removing cart item with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	logger.Info().Msg("removed cart item")

	inHttp.WriteSuccess(c, w, "cart item removed", map[string]interface{}{"cart": current.Response()})
}

func (t MarketController) SetCurrency(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "MarketController SetCurrency")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "MarketController SetCurrency").
		Str(log.KeyProcess, "reading path").
		Logger()

	sessionID, storefront, err := target(r)
	if err != nil {
		err = fmt.Errorf("failed reading path with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Trace().Msg("decoding request body")
	reqBody := request.SetCurrency{}
	if err := t.decode(r, &reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	currency := strings.ToUpper(reqBody.Currency)
	logger = logger.With().Str(log.KeyCurrency, currency).Logger()
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "changing cart currency").Logger()
	logger.Trace().Msg("changing cart currency")
	current, err := t.carts.SetCurrency(logger.WithContext(c), sessionID, storefront, currency)
	if err != nil {
		err = fmt.Errorf("failed changing cart currency with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	logger.Info().Msg("changed cart currency")

	inHttp.WriteSuccess(c, w, "cart currency changed", map[string]interface{}{"cart": current.Response()})
}

func (t MarketController) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "MarketController ClearCart")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "MarketController ClearCart").
		Str(log.KeyProcess, "reading path").
		Logger()

	sessionID, storefront, err := target(r)
	if err != nil {
		err = fmt.Errorf("failed reading path with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "clearing cart").Logger()
	logger.Trace().Msg("clearing cart")
	if err := t.carts.Clear(logger.WithContext(c), sessionID, storefront); err != nil {
		err = fmt.Errorf("failed clearing cart with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	logger.Info().Msg("cleared cart")

	inHttp.WriteSuccess(c, w, "cart cleared", map[string]interface{}{
		"cart": cart.New(storefront, "").Response(),
	})
}

// Checkout answers JSON by default. A browser asking for text/html gets the
// hand-off itself: the auto-submitting Webpay form or a 303 to the provider.
func (t MarketController) Checkout(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "MarketController Checkout")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "MarketController Checkout").
		Str(log.KeyProcess, "reading path").
		Logger()

	sessionID, storefront, err := target(r)
	if err != nil {
		err = fmt.Errorf("failed reading path with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Trace().Msg("decoding request body")
	reqBody := request.Checkout{}
	if err := t.decode(r, &reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	provider, err := checkout.ParseProvider(reqBody.Method)
	if err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	span.SetAttributes(attribute.String(log.KeyProvider, string(provider)))
	logger = logger.With().Str(log.KeyProvider, string(provider)).Logger()
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "checking out").Logger()
	logger.Trace().Msg("checking out")
	result, err := t.checkout.Checkout(logger.WithContext(c), sessionID, storefront, provider, reqBody.Guest)
	if err != nil {
		err = fmt.Errorf("failed checking out with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	logger = logger.With().Str(log.KeyHandoff, string(result.Handoff.Kind)).Logger()
	logger.Info().Msg("checked out")

	if !strings.Contains(r.Header.Get(inHttp.HeaderAccept), "text/html") {
		inHttp.WriteSuccess(c, w, "checkout ready", map[string]interface{}{"checkout": result})
		return
	}
	if result.Handoff.Kind == checkout.HandoffRedirect {
		http.Redirect(w, r, result.Handoff.URL, http.StatusSeeOther)
		return
	}
	page, err := result.Handoff.HTML()
	if err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	inHttp.WriteHtmlResponse(c, w, http.StatusOK, page)
}

func (t MarketController) Validate(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "MarketController Validate")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "MarketController Validate").
		Str(log.KeyProcess, "reading path").
		Logger()

	if _, ok := session.IDFromContext(c); !ok && r.Method == http.MethodPost {
		// a cross-site POST carries no Lax cookie, the top level GET does
		if err := r.ParseForm(); err != nil {
			err = fmt.Errorf("failed parsing callback parameters with error=%w: %w", inErrors.ErrInvalidBody, err)
			inErrors.HandleError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			writeError(c, w, err)
			return
		}
		location := r.URL.Path + "?" + r.Form.Encode()
		logger.Info().Msg("redirecting callback without session cookie to GET")
		http.Redirect(w, r, location, http.StatusSeeOther)
		return
	}

	sessionID, storefront, err := target(r)
	if err != nil {
		err = fmt.Errorf("failed reading path with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	provider, err := checkout.ParseProvider(mux.Vars(r)["provider"])
	if err != nil {
		err = fmt.Errorf("failed reading path with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	span.SetAttributes(attribute.String(log.KeyProvider, string(provider)))
	logger = logger.With().Str(log.KeyProvider, string(provider)).Logger()

	// providers call back with GET or POST, ParseForm merges both
	if err := r.ParseForm(); err != nil {
		err = fmt.Errorf("failed parsing callback parameters with error=%w: %w", inErrors.ErrInvalidBody, err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "validating payment").Logger()
	logger.Trace().Msg("validating payment")
	outcome, err := t.checkout.Validate(logger.WithContext(c), sessionID, storefront, provider, r.Form)
	if err != nil {
		err = fmt.Errorf("failed validating payment with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		if errors.Is(err, session.ErrSessionTerminated) {
			writeError(c, w, err)
			return
		}
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     inHttp.StatusFailed,
			"statusCode": statusCode(err),
			"message":    message(err),
			"data": map[string]interface{}{
				"reason":  checkout.Reason(err),
				"outcome": outcome,
			},
		})
		return
	}
	logger.Info().Msg("validated payment")

	inHttp.WriteSuccess(c, w, "payment completed", map[string]interface{}{"outcome": outcome})
}

func (t MarketController) FindCheckouts(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "MarketController FindCheckouts")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "MarketController FindCheckouts").
		Str(log.KeyProcess, "reading path").
		Logger()

	sessionID, storefront, err := target(r)
	if err != nil {
		err = fmt.Errorf("failed reading path with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "finding checkouts").Logger()
	logger.Trace().Msg("finding checkouts")
	checkouts, err := t.checkout.History(logger.WithContext(c), sessionID, storefront)
	if err != nil {
		err = fmt.Errorf("failed finding checkouts with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	logger.Trace().Msg("found checkouts")

	inHttp.WriteSuccess(c, w, "checkouts found", map[string]interface{}{"checkouts": checkouts})
}
