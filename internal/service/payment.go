package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/logger"
	"scooter-share-pro/internal/repository"
)

type paymentService struct {
	paymentRepo repository.PaymentRepository
	rentalRepo  repository.RentalRepository
	scooterRepo repository.ScooterRepository
	userRepo    repository.UserRepository
	currency    string
	now         func() time.Time
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	rentalRepo repository.RentalRepository,
	scooterRepo repository.ScooterRepository,
	userRepo repository.UserRepository,
	currency string,
) PaymentService {
	return &paymentService{
		paymentRepo: paymentRepo,
		rentalRepo:  rentalRepo,
		scooterRepo: scooterRepo,
		userRepo:    userRepo,
		currency:    currency,
		now:         time.Now,
	}
}

// loadPayable returns the rental if actor may pay for it: its rider or an admin.
func (s *paymentService) loadPayable(ctx context.Context, actor *domain.User, rentalID int32) (*domain.Rental, error) {
	rental, err := s.rentalRepo.GetByID(ctx, rentalID)
	if err != nil {
		return nil, storeErr(err, "rental", rentalID)
	}
	if rental.UserID != actor.ID && !actor.Can(domain.ActionDrivePayments) {
		return nil, domain.NewForbiddenError("cannot pay for another user's rental")
	}
	return rental, nil
}

func (s *paymentService) Create(ctx context.Context, actorID int32, req CreatePaymentRequest) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.Create", "actorID", actorID, "rentalID", req.RentalID, "amount", req.Amount.String())

	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	rental, err := s.loadPayable(ctx, actor, req.RentalID)
	if err != nil {
		return nil, err
	}
	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}
	payment, err := domain.NewPayment(rental.UserID, rental.ID, req.Amount, currency, req.Method)
	if err != nil {
		logger.ExitMethodWithError("paymentService.Create", err, true, "rentalID", req.RentalID)
		return nil, err
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		err = storeErr(err, "payment", payment.TransactionID)
		logger.ExitMethodWithError("paymentService.Create", err, isExpected(err), "rentalID", req.RentalID)
		return nil, err
	}
	logger.ExitMethod("paymentService.Create", "paymentID", payment.ID, "transactionID", payment.TransactionID)
	return payment, nil
}

// transition loads a payment for a payment operator, applies step and persists
// it guarded by the status it was read in.
func (s *paymentService) transition(ctx context.Context, method string, actorID, paymentID int32, step func(*domain.Payment) error) (*domain.Payment, error) {
	logger.EnterMethod(method, "actorID", actorID, "paymentID", paymentID)

	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, domain.ActionDrivePayments); err != nil {
		logger.ExitMethodWithError(method, err, true, "actorID", actorID)
		return nil, err
	}
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, storeErr(err, "payment", paymentID)
	}
	from := payment.Status
	if err := step(payment); err != nil {
		logger.ExitMethodWithError(method, err, true, "paymentID", paymentID, "status", from)
		return nil, err
	}
	if err := s.paymentRepo.UpdateStatus(ctx, payment, from); err != nil {
		err = storeErr(err, "payment", paymentID)
		logger.ExitMethodWithError(method, err, isExpected(err), "paymentID", paymentID)
		return nil, err
	}
	logger.ExitMethod(method, "paymentID", paymentID, "from", from, "to", payment.Status)
	return payment, nil
}

func (s *paymentService) Process(ctx context.Context, actorID, paymentID int32) (*domain.Payment, error) {
	return s.transition(ctx, "paymentService.Process", actorID, paymentID, func(p *domain.Payment) error {
		return p.Process()
	})
}

func (s *paymentService) Complete(ctx context.Context, actorID, paymentID int32, gatewayTxID string, gatewayResponse json.RawMessage) (*domain.Payment, error) {
	return s.transition(ctx, "paymentService.Complete", actorID, paymentID, func(p *domain.Payment) error {
		return p.Complete(s.now(), gatewayTxID, gatewayResponse)
	})
}

func (s *paymentService) Fail(ctx context.Context, actorID, paymentID int32, gatewayResponse json.RawMessage) (*domain.Payment, error) {
	return s.transition(ctx, "paymentService.Fail", actorID, paymentID, func(p *domain.Payment) error {
		return p.Fail(s.now(), gatewayResponse)
	})
}

func (s *paymentService) Refund(ctx context.Context, actorID, paymentID int32, amount *decimal.Decimal, reason string) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.Refund", "actorID", actorID, "paymentID", paymentID)

	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, domain.ActionRefundPayment); err != nil {
		return nil, err
	}
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, storeErr(err, "payment", paymentID)
	}
	refund, err := payment.Refund(amount, reason, s.now())
	if err != nil {
		logger.ExitMethodWithError("paymentService.Refund", err, true, "paymentID", paymentID, "status", payment.Status)
		return nil, err
	}
	if err := s.paymentRepo.ApplyRefund(ctx, payment, refund); err != nil {
		err = storeErr(err, "payment", paymentID)
		logger.ExitMethodWithError("paymentService.Refund", err, isExpected(err), "paymentID", paymentID)
		return nil, err
	}
	logger.ExitMethod("paymentService.Refund", "paymentID", paymentID, "refund", refund.StringFixed(2), "status", payment.Status)
	return payment, nil
}

func (s *paymentService) PayRental(ctx context.Context, actorID, rentalID int32, method domain.PaymentMethod) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.PayRental", "actorID", actorID, "rentalID", rentalID)

	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	rental, err := s.loadPayable(ctx, actor, rentalID)
	if err != nil {
		return nil, err
	}
	if rental.Status != domain.RentalStatusCompleted && rental.Status != domain.RentalStatusCancelled {
		return nil, domain.ErrRentalNotSettleable
	}
	paid, err := s.paymentRepo.SumPaidForRental(ctx, rentalID)
	if err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}
	now := s.now()
	status := rental.PaymentStatus(paid, now)
	if status.IsFullyPaid {
		return nil, domain.ErrRentalAlreadySettled
	}

	payment, err := domain.NewPayment(rental.UserID, rental.ID, status.Outstanding, s.currency, method)
	if err != nil {
		return nil, err
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, storeErr(err, "payment", payment.TransactionID)
	}
	if err := payment.Complete(now, "", nil); err != nil {
		return nil, err
	}
	if err := s.paymentRepo.UpdateStatus(ctx, payment, domain.PaymentStatusPending); err != nil {
		err = storeErr(err, "payment", payment.ID)
		logger.ExitMethodWithError("paymentService.PayRental", err, isExpected(err), "paymentID", payment.ID)
		return nil, err
	}
	logger.ExitMethod("paymentService.PayRental", "paymentID", payment.ID, "amount", payment.Amount.StringFixed(2))
	return payment, nil
}

func (s *paymentService) checkView(ctx context.Context, actor *domain.User, payment *domain.Payment) error {
	var scooter *domain.Scooter
	if actor.IsProvider() && payment.UserID != actor.ID {
		rental, err := s.rentalRepo.GetByID(ctx, payment.RentalID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load rental: %w", err)
		}
		if rental != nil {
			if scooter, err = s.scooterRepo.GetByID(ctx, rental.ScooterID); err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("load scooter: %w", err)
			}
		}
	}
	if !domain.CanViewPayment(actor, payment, scooter) {
		return domain.NewForbiddenError("not authorized to view payment %d", payment.ID)
	}
	return nil
}

func (s *paymentService) Get(ctx context.Context, actorID, paymentID int32) (*domain.Payment, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, storeErr(err, "payment", paymentID)
	}
	if err := s.checkView(ctx, actor, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *paymentService) GetByTransactionID(ctx context.Context, actorID int32, transactionID string) (*domain.Payment, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	payment, err := s.paymentRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, storeErr(err, "payment", transactionID)
	}
	if err := s.checkView(ctx, actor, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *paymentService) List(ctx context.Context, actorID int32, filter repository.PaymentFilter) ([]domain.Payment, int32, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.NewValidationError("invalid payment status %q", filter.Status)
	}
	if !actor.Can(domain.ActionViewAllPayments) {
		filter.UserID = actor.ID
	}
	payments, count, err := s.paymentRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return payments, count, nil
}

func (s *paymentService) Refundable(ctx context.Context, actorID int32) ([]domain.Payment, error) {
	if _, err := loadActor(ctx, s.userRepo, actorID); err != nil {
		return nil, err
	}
	now := s.now()
	payments, err := s.paymentRepo.ListRefundable(ctx, actorID, now.Add(-domain.RefundWindow))
	if err != nil {
		return nil, fmt.Errorf("list refundable payments: %w", err)
	}
	out := payments[:0]
	for _, p := range payments {
		if p.IsRefundable(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *paymentService) Statistics(ctx context.Context, actorID int32) (*domain.PaymentStatistics, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, domain.ActionViewPlatformStat); err != nil {
		return nil, err
	}
	stats, err := s.paymentRepo.Statistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("payment statistics: %w", err)
	}
	return stats, nil
}

func (s *paymentService) RevenueByMethod(ctx context.Context, actorID int32) (map[domain.PaymentMethod]decimal.Decimal, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, domain.ActionViewPlatformStat); err != nil {
		return nil, err
	}
	revenue, err := s.paymentRepo.RevenueByMethod(ctx)
	if err != nil {
		return nil, fmt.Errorf("revenue by method: %w", err)
	}
	return revenue, nil
}
