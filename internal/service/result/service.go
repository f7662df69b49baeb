package result

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/internal/repository"
	"github.com/meditrack/meditrack-api/internal/service/event"
	"github.com/meditrack/meditrack-api/pkg/cache"
	"github.com/meditrack/meditrack-api/pkg/errors"
	pkgevent "github.com/meditrack/meditrack-api/pkg/event"
)

type ResultService interface {
	SubmitResult(ctx context.Context, req *model.SubmitResultRequest) (*model.LabResult, error)
	GetResult(ctx context.Context, id uuid.UUID) (*model.LabResult, error)
	GetResultsByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.LabResult, error)
	GetCriticalResults(ctx context.Context) ([]*model.LabResult, error)
	VerifyResult(ctx context.Context, id uuid.UUID, verifiedBy string) (*model.LabResult, error)
}

// TxRunner owns the transaction boundary for a submission.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// ResultCache is the read cache for result lookups. Implementations may be
// nil-checked away; the workflow never depends on a cache hit.
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

type Service struct {
	tx             TxRunner
	orders         repository.OrderRepository
	results        repository.ResultRepository
	events         event.Publisher
	cache          ResultCache
	labEventsTopic string
}

func NewService(tx TxRunner, orders repository.OrderRepository, results repository.ResultRepository, events event.Publisher, resultCache ResultCache, labEventsTopic string) *Service {
	return &Service{
		tx:             tx,
		orders:         orders,
		results:        results,
		events:         events,
		cache:          resultCache,
		labEventsTopic: labEventsTopic,
	}
}

// SubmitResult runs the whole submission inside one transaction holding the
// order's row lock: persist result, advance order status, enqueue events.
// Two concurrent submissions for one order serialize on the lock, so the
// completion transition fires exactly once.
func (s *Service) SubmitResult(ctx context.Context, req *model.SubmitResultRequest) (*model.LabResult, error) {
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return nil, errors.BadRequest("invalid order ID", err)
	}

	flag, ok := model.ParseAbnormalFlag(req.AbnormalFlag)
	if !ok {
		return nil, errors.BadRequest(fmt.Sprintf("unknown abnormal flag %q", req.AbnormalFlag), nil)
	}

	var submitted *model.LabResult
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		order, err := s.orders.GetForUpdateTx(ctx, tx, orderID)
		if stderrors.Is(err, model.ErrOrderNotFound) {
			return errors.NotFound("lab order", err)
		}
		if err != nil {
			return fmt.Errorf("failed to load lab order: %w", err)
		}

		if !order.AcceptsResults() {
			return errors.Conflict("cannot submit results for cancelled order", model.ErrOrderCancelled)
		}

		exists, err := s.results.ExistsByOrderAndTestCodeTx(ctx, tx, orderID, req.TestCode)
		if err != nil {
			return err
		}
		if exists {
			return errors.Conflict(fmt.Sprintf("result already recorded for test %s", req.TestCode), model.ErrDuplicateTestCode)
		}

		res := model.NewLabResult(orderID, model.ResultSpec{
			TestCode:       req.TestCode,
			TestName:       req.TestName,
			LoincCode:      req.LoincCode,
			ResultValue:    req.ResultValue,
			ResultUnit:     req.ResultUnit,
			ReferenceRange: req.ReferenceRange,
			AbnormalFlag:   flag,
			PerformedBy:    req.PerformedBy,
			PerformedAt:    req.PerformedAt,
			Notes:          req.Notes,
		})

		if err := s.results.CreateTx(ctx, tx, res); err != nil {
			return err
		}

		count, err := s.results.CountByOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if order.AdvanceStatus(count) {
			if err := s.orders.UpdateStatusTx(ctx, tx, order); err != nil {
				return err
			}
			log.Info().
				Str("order_id", order.ID.String()).
				Str("status", string(order.Status)).
				Msg("advanced lab order status")
		}

		if res.Critical() {
			log.Warn().
				Str("order_id", order.ID.String()).
				Str("test_code", res.TestCode).
				Str("abnormal_flag", string(res.AbnormalFlag)).
				Msg("critical result detected")
			if err := s.emitCriticalResultTx(ctx, tx, order, res); err != nil {
				return err
			}
		}

		if len(order.Tests) > 0 && count >= len(order.Tests) {
			all, err := s.results.ListByOrderTx(ctx, tx, orderID)
			if err != nil {
				return err
			}
			if err := s.emitResultsAvailableTx(ctx, tx, order, all); err != nil {
				return err
			}
		}

		submitted = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, orderKey(orderID))
	return submitted, nil
}

func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (*model.LabResult, error) {
	key := resultKey(id)
	if s.cache != nil {
		var cached model.LabResult
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !stderrors.Is(err, cache.ErrMiss) {
			log.Debug().Err(err).Str("key", key).Msg("result cache read failed")
		}
	}

	res, err := s.results.Get(ctx, id)
	if stderrors.Is(err, model.ErrResultNotFound) {
		return nil, errors.NotFound("lab result", err)
	}
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, res)
	return res, nil
}

func (s *Service) GetResultsByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.LabResult, error) {
	key := orderKey(orderID)
	if s.cache != nil {
		var cached []*model.LabResult
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !stderrors.Is(err, cache.ErrMiss) {
			log.Debug().Err(err).Str("key", key).Msg("result cache read failed")
		}
	}

	results, err := s.results.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, results)
	return results, nil
}

func (s *Service) GetCriticalResults(ctx context.Context) ([]*model.LabResult, error) {
	return s.results.ListCritical(ctx)
}

func (s *Service) VerifyResult(ctx context.Context, id uuid.UUID, verifiedBy string) (*model.LabResult, error) {
	res, err := s.results.Get(ctx, id)
	if stderrors.Is(err, model.ErrResultNotFound) {
		return nil, errors.NotFound("lab result", err)
	}
	if err != nil {
		return nil, err
	}

	if err := res.Verify(verifiedBy); err != nil {
		return nil, errors.Conflict("result already verified", err)
	}

	if err := s.results.Update(ctx, res); err != nil {
		return nil, err
	}

	s.invalidate(ctx, resultKey(id), orderKey(res.OrderID))
	return res, nil
}

func (s *Service) emitCriticalResultTx(ctx context.Context, tx *sqlx.Tx, order *model.LabOrder, res *model.LabResult) error {
	evt := pkgevent.LabResults{
		Envelope:           pkgevent.NewEnvelope(pkgevent.TypeCriticalResult, pkgevent.SourceLabService),
		Order:              pkgevent.NewOrderInfo(order),
		Results:            []pkgevent.ResultInfo{pkgevent.NewResultInfo(res)},
		HasCriticalResults: true,
	}
	return s.events.EmitTx(ctx, tx, s.labEventsTopic, order.PatientID, pkgevent.TypeCriticalResult, evt)
}

func (s *Service) emitResultsAvailableTx(ctx context.Context, tx *sqlx.Tx, order *model.LabOrder, results []*model.LabResult) error {
	hasCritical := false
	for _, r := range results {
		if r.Critical() {
			hasCritical = true
			break
		}
	}
	evt := pkgevent.LabResults{
		Envelope:           pkgevent.NewEnvelope(pkgevent.TypeResultsAvailable, pkgevent.SourceLabService),
		Order:              pkgevent.NewOrderInfo(order),
		Results:            pkgevent.NewResultInfoList(results),
		HasCriticalResults: hasCritical,
	}
	log.Info().
		Str("order_id", order.ID.String()).
		Int("result_count", len(results)).
		Bool("has_critical", hasCritical).
		Msg("all results complete, enqueueing results available event")
	return s.events.EmitTx(ctx, tx, s.labEventsTopic, order.PatientID, pkgevent.TypeResultsAvailable, evt)
}

func (s *Service) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("result cache write failed")
	}
}

func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Debug().Err(err).Msg("result cache invalidation failed")
	}
}

func resultKey(id uuid.UUID) string {
	return "lab_result:" + id.String()
}

func orderKey(orderID uuid.UUID) string {
	return "lab_results:order:" + orderID.String()
}
