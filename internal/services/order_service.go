package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyward-labs/ndc-gateway/internal/backend"
	"github.com/skyward-labs/ndc-gateway/internal/components"
	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	"github.com/skyward-labs/ndc-gateway/internal/payments"
	"github.com/skyward-labs/ndc-gateway/internal/pricing"
	"github.com/skyward-labs/ndc-gateway/internal/repositories"
)

// ErrOrderInvalidInput indicates the caller supplied invalid order parameters.
var ErrOrderInvalidInput = errors.New("orders: invalid input")

// OrderServiceDeps bundles collaborators required to construct an order service instance.
type OrderServiceDeps struct {
	Providers  map[string]ProviderClient
	Rules      RulesEngine
	Offers     repositories.OfferRepository
	Orders     repositories.OrderRepository
	Guarantees payments.GuaranteeService
	Charges    ChargeManager
	Components components.Notifier
	Logger     *zap.Logger
	Clock      func() time.Time
	NewOrderID func() string
}

type orderService struct {
	providers  map[string]ProviderClient
	rules      RulesEngine
	offers     repositories.OfferRepository
	orders     repositories.OrderRepository
	guarantees payments.GuaranteeService
	charges    ChargeManager
	components components.Notifier
	logger     *zap.Logger
	clock      func() time.Time
	newOrderID func() string
}

// NewOrderService constructs the order-creation saga over its collaborators.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if len(deps.Providers) == 0 {
		return nil, errors.New("order service: at least one provider is required")
	}
	if deps.Rules == nil {
		return nil, errors.New("order service: rules engine is required")
	}
	if deps.Offers == nil {
		return nil, errors.New("order service: offer repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Guarantees == nil {
		return nil, errors.New("order service: guarantee service is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	notifier := deps.Components
	if notifier == nil {
		notifier = components.NopNotifier{}
	}

	newOrderID := deps.NewOrderID
	if newOrderID == nil {
		newOrderID = uuid.NewString
	}

	return &orderService{
		providers:  deps.Providers,
		rules:      deps.Rules,
		offers:     deps.Offers,
		orders:     deps.Orders,
		guarantees: deps.Guarantees,
		charges:    deps.Charges,
		components: notifier,
		logger:     logger.Named("orders"),
		clock: func() time.Time {
			return clock().UTC()
		},
		newOrderID: newOrderID,
	}, nil
}

// Create runs the order-creation saga. The IN_PROGRESS record is written
// with a conditional insert before any external call, so a repeated request
// for the same offer fails before it can double-book.
func (s *orderService) Create(ctx context.Context, session SessionContext, req CreateOrderRequest) (OrderConfirmation, error) {
	if req.OfferID == "" {
		return OrderConfirmation{}, fmt.Errorf("%w: offer id is required", ErrOrderInvalidInput)
	}
	if req.GuaranteeID == "" {
		return OrderConfirmation{}, fmt.Errorf("%w: guarantee id is required", ErrOrderInvalidInput)
	}

	offer, err := s.offers.FindCurrent(ctx, req.OfferID, s.clock())
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return OrderConfirmation{}, domain.ErrOfferNotFound(req.OfferID)
		}
		return OrderConfirmation{}, err
	}

	provider, ok := s.providers[offer.ProviderID]
	if !ok {
		return OrderConfirmation{}, domain.NewError(domain.CodeInvalidConfiguration, http.StatusInternalServerError, "offer %s references unknown provider %s", req.OfferID, offer.ProviderID)
	}

	guaranteeType, err := s.rules.GuaranteeType(session, offer.ProviderID)
	if err != nil {
		return OrderConfirmation{}, err
	}

	record := domain.OrderRecord{
		OrderID:       s.newOrderID(),
		OfferID:       req.OfferID,
		OrgID:         session.OrgID,
		ProviderID:    offer.ProviderID,
		Stage:         domain.StageInProgress,
		GuaranteeID:   req.GuaranteeID,
		GuaranteeType: guaranteeType,
		CreatedAt:     s.clock(),
	}
	if err := s.orders.Create(ctx, record); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return OrderConfirmation{}, domain.NewError(domain.CodeOrderAlreadyExists, http.StatusConflict, "order already exists or is in progress for offer %s", req.OfferID)
		}
		return OrderConfirmation{}, err
	}

	confirmation, err := s.createBooking(ctx, session, provider, offer, &record, req)
	if err != nil {
		record.Stage = domain.StageCreationFailed
		s.persistRecord(ctx, record)
		var be *domain.Error
		if errors.As(err, &be) {
			return OrderConfirmation{}, be
		}
		return OrderConfirmation{}, domain.WrapError(domain.CodeOrderCreationFailed, http.StatusBadGateway, err, "order creation failed for offer %s", req.OfferID)
	}

	record.Stage = domain.StageCompleted
	record.Confirmation = &confirmation.Order
	s.persistRecord(ctx, record)

	return confirmation, nil
}

// createBooking performs the guarantee validation, booking-fee charge,
// backend booking and compensation. The record is updated in place so the
// caller persists the final stage exactly once.
func (s *orderService) createBooking(ctx context.Context, session SessionContext, provider ProviderClient, offer domain.OfferRecord, record *domain.OrderRecord, req CreateOrderRequest) (OrderConfirmation, error) {
	var instrument backend.PaymentInstrument
	var token payments.CardToken

	switch record.GuaranteeType {
	case domain.GuaranteeTypeToken:
		var err error
		token, err = s.guarantees.RetrieveToken(ctx, req.GuaranteeID)
		if err != nil {
			if errors.Is(err, payments.ErrTokenNotFound) {
				return OrderConfirmation{}, domain.NewError(domain.CodeInvalidCardToken, http.StatusBadRequest, "card token %s not found", req.GuaranteeID)
			}
			return OrderConfirmation{}, domain.WrapError(domain.CodeInvalidCardToken, http.StatusBadGateway, err, "card token %s could not be retrieved", req.GuaranteeID)
		}
		if token.Amount > 0 {
			if token.Currency != offer.Currency {
				return OrderConfirmation{}, domain.NewError(domain.CodeInvalidCardToken, http.StatusBadRequest, "token currency %s does not match offer currency %s", token.Currency, offer.Currency)
			}
			if token.Amount < offer.Price {
				return OrderConfirmation{}, domain.NewError(domain.CodeInsufficientFunds, http.StatusBadRequest, "token authorises %.2f %s but the offer costs %.2f", token.Amount, token.Currency, offer.Price)
			}
		}
		instrument = backend.PaymentInstrument{
			GuaranteeID:     req.GuaranteeID,
			CardBrand:       token.Brand,
			CardNumber:      token.AccountNumber,
			CardExpiryMonth: token.ExpiryMonth,
			CardExpiryYear:  token.ExpiryYear,
			CardHolderName:  token.CardHolderName,
			BillingAddress:  token.BillingAddress,
		}

	case domain.GuaranteeTypeDeposit:
		guarantee, err := s.guarantees.GetGuarantee(ctx, req.GuaranteeID)
		if err != nil {
			if errors.Is(err, payments.ErrGuaranteeNotFound) {
				return OrderConfirmation{}, domain.NewError(domain.CodeInvalidGuarantee, http.StatusBadRequest, "guarantee %s not found", req.GuaranteeID)
			}
			return OrderConfirmation{}, domain.WrapError(domain.CodeInvalidGuarantee, http.StatusBadGateway, err, "guarantee %s could not be retrieved", req.GuaranteeID)
		}
		instrument = backend.PaymentInstrument{GuaranteeID: guarantee.GuaranteeID}

	default:
		return OrderConfirmation{}, domain.NewError(domain.CodeInvalidGuaranteeType, http.StatusBadRequest, "unsupported guarantee type %q", record.GuaranteeType)
	}

	// The booking fee applies only to card-token settlements; deposit
	// guarantees settle in full through the guarantee claim.
	var fee *domain.BookingFeeCharge
	if record.GuaranteeType == domain.GuaranteeTypeToken {
		policy, err := s.rules.BookingFee(session, offer.ProviderID)
		if err != nil {
			return OrderConfirmation{}, err
		}
		if policy != nil {
			if s.charges == nil {
				return OrderConfirmation{}, domain.NewError(domain.CodeInvalidConfiguration, http.StatusInternalServerError, "booking fee configured but no charge provider wired")
			}
			charge, err := s.charges.Authorize(ctx, policy.ChargeProvider, payments.AuthorizeRequest{
				Amount:         policy.Amount,
				Currency:       policy.Currency,
				InstrumentID:   token.ID,
				Reference:      req.OfferID,
				Description:    "Booking fee",
				IdempotencyKey: "fee-auth-" + req.OfferID,
			})
			if err != nil {
				return OrderConfirmation{}, domain.WrapError(domain.CodeInsufficientFunds, http.StatusBadRequest, err, "booking fee authorisation failed")
			}
			fee = &domain.BookingFeeCharge{
				ChargeID:  charge.ChargeID,
				Provider:  charge.Provider,
				Amount:    policy.Amount,
				Currency:  policy.Currency,
				Reference: req.OfferID,
			}
			record.BookingFeeCharge = fee
		}
	}

	reply, err := provider.CreateOrder(ctx, req.OfferID, req.Passengers, instrument)
	if err != nil {
		s.revertCharge(ctx, fee)
		return OrderConfirmation{}, err
	}
	record.ProviderOrderID = reply.OrderID

	order, err := provider.ConfirmationFromReply(reply)
	if err != nil {
		s.revertCharge(ctx, fee)
		return OrderConfirmation{}, err
	}

	if fee != nil {
		_, err := s.charges.Capture(ctx, fee.Provider, payments.CaptureRequest{
			ChargeID:       fee.ChargeID,
			IdempotencyKey: "fee-capture-" + req.OfferID,
		})
		if err != nil {
			// The booking stands; the authorised fee needs an operator.
			s.logger.Error("booking fee capture failed after booking",
				zap.String("offerId", req.OfferID),
				zap.String("chargeId", fee.ChargeID),
				zap.Bool("manualIntervention", true),
				zap.Error(err))
		} else {
			order.Price.Public += pricing.ConvertAmount(fee.Amount, 2)
		}
	}

	s.notifyComponents(ctx, session, *record, order)

	return OrderConfirmation{OrderID: record.OrderID, Order: order}, nil
}

// Status reports the persisted stage of an order-creation attempt without
// touching the backend.
func (s *orderService) Status(ctx context.Context, session SessionContext, offerID string) (OrderStatusResponse, error) {
	if offerID == "" {
		return OrderStatusResponse{}, fmt.Errorf("%w: offer id is required", ErrOrderInvalidInput)
	}

	record, err := s.orders.FindByOfferID(ctx, offerID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return OrderStatusResponse{Stage: domain.StageNotFound}, nil
		}
		return OrderStatusResponse{}, err
	}

	response := OrderStatusResponse{Stage: record.Stage}
	if record.Stage == domain.StageCompleted && record.Confirmation != nil {
		response.Confirmation = &OrderConfirmation{
			OrderID: record.OrderID,
			Order:   *record.Confirmation,
		}
	}
	return response, nil
}

// Retrieve loads an order, live from the backend when the provider supports
// retrieval, otherwise from the persisted confirmation.
func (s *orderService) Retrieve(ctx context.Context, session SessionContext, orderID string) (OrderConfirmation, error) {
	if orderID == "" {
		return OrderConfirmation{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	record, err := s.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return OrderConfirmation{}, domain.ErrOrderNotFound(orderID)
		}
		return OrderConfirmation{}, err
	}
	if record.Stage != domain.StageCompleted {
		return OrderConfirmation{}, domain.ErrOrderNotFound(orderID)
	}

	provider, ok := s.providers[record.ProviderID]
	if ok && provider.SupportsOrderRetrieve() && record.ProviderOrderID != "" {
		reply, err := provider.RetrieveOrder(ctx, record.ProviderOrderID)
		if err == nil {
			order, convErr := provider.ConfirmationFromReply(reply)
			if convErr == nil {
				return OrderConfirmation{
					OrderID:    record.OrderID,
					Order:      order,
					SyncStatus: domain.SyncStatusRealtime,
				}, nil
			}
			err = convErr
		}
		s.logger.Warn("live order retrieval failed, serving persisted confirmation",
			zap.String("orderId", orderID),
			zap.String("providerId", record.ProviderID),
			zap.Error(err))
	}

	if record.Confirmation == nil {
		return OrderConfirmation{}, domain.ErrOrderNotFound(orderID)
	}
	return OrderConfirmation{
		OrderID:    record.OrderID,
		Order:      *record.Confirmation,
		SyncStatus: domain.SyncStatusCached,
	}, nil
}

// revertCharge releases an authorised booking fee after a failed booking.
// It runs at most once per saga; a failed revert is an operator problem,
// never a retry loop.
func (s *orderService) revertCharge(ctx context.Context, fee *domain.BookingFeeCharge) {
	if fee == nil || s.charges == nil {
		return
	}
	_, err := s.charges.Revert(ctx, fee.Provider, payments.RevertRequest{
		ChargeID:       fee.ChargeID,
		IdempotencyKey: "fee-revert-" + fee.Reference,
	})
	if err != nil {
		s.logger.Error("booking fee revert failed",
			zap.String("chargeId", fee.ChargeID),
			zap.String("offerId", fee.Reference),
			zap.Bool("manualIntervention", true),
			zap.Error(err))
	}
}

func (s *orderService) persistRecord(ctx context.Context, record domain.OrderRecord) {
	if err := s.orders.Update(ctx, record); err != nil {
		s.logger.Error("persist order record failed",
			zap.String("offerId", record.OfferID),
			zap.String("stage", string(record.Stage)),
			zap.Error(err))
	}
}

func (s *orderService) notifyComponents(ctx context.Context, session SessionContext, record domain.OrderRecord, order domain.Order) {
	recordLocator := ""
	if len(order.BookingReferences) > 0 {
		recordLocator = order.BookingReferences[0].Reference
	}
	err := s.components.Notify(ctx, components.Notification{
		GuaranteeID: record.GuaranteeID,
		OrderID:     record.OrderID,
		OfferID:     record.OfferID,
		OrgID:       session.OrgID,
		ProviderID:  record.ProviderID,
		Components: []components.TravelComponent{{
			ComponentType: "air",
			RecordLocator: recordLocator,
			Amount:        order.Price.Public,
			Currency:      order.Price.Currency,
			BookedAt:      s.clock(),
		}},
	})
	if err != nil {
		s.logger.Warn("travel component notification failed",
			zap.String("orderId", record.OrderID),
			zap.Error(err))
	}
}
