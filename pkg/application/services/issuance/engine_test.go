package issuance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsinha/mes/pkg/application/dto"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/infrastructure/metrics"
	"github.com/vsinha/mes/pkg/infrastructure/repositories/memory"
)

var d = decimal.NewFromInt

type staticRequirements []dto.ComponentRequirement

func (s staticRequirements) Requirements(context.Context, entities.ProductID, decimal.Decimal, time.Time) ([]dto.ComponentRequirement, error) {
	return s, nil
}

type failingRequirements struct{ err error }

func (f failingRequirements) Requirements(context.Context, entities.ProductID, decimal.Decimal, time.Time) ([]dto.ComponentRequirement, error) {
	return nil, f.err
}

// flakyGateway fails gateway mutations for the listed products
type flakyGateway struct {
	*memory.InventoryLedger
	failOn  map[entities.ProductID]bool
	release map[string]error
}

func (g *flakyGateway) Issue(ctx context.Context, p entities.ProductID, f entities.FacilityID, q decimal.Decimal, lot string) (string, error) {
	if g.failOn[p] {
		return "", errors.New("ledger unavailable")
	}
	return g.InventoryLedger.Issue(ctx, p, f, q, lot)
}

func (g *flakyGateway) Reserve(ctx context.Context, p entities.ProductID, f entities.FacilityID, q decimal.Decimal) (string, error) {
	if g.failOn[p] {
		return "", errors.New("ledger unavailable")
	}
	return g.InventoryLedger.Reserve(ctx, p, f, q)
}

func (g *flakyGateway) Release(ctx context.Context, id string) error {
	if err, ok := g.release[id]; ok {
		return err
	}
	return g.InventoryLedger.Release(ctx, id)
}

func newGateway(t *testing.T, stock map[entities.ProductID]int64) *flakyGateway {
	t.Helper()
	ledger := memory.NewInventoryLedger()
	for p, q := range stock {
		require.NoError(t, ledger.AddStock(context.Background(), p, "PLANT", d(q), "LOT-"+string(p)))
	}
	return &flakyGateway{InventoryLedger: ledger, failOn: map[entities.ProductID]bool{}, release: map[string]error{}}
}

func testRun() *entities.ProductionRun {
	return &entities.ProductionRun{ID: "RUN1", ProductID: "ASSY", QuantityToProduce: d(10), FacilityID: "PLANT"}
}

func TestEngine_PartialIssuance(t *testing.T) {
	ctx := context.Background()
	gateway := newGateway(t, map[entities.ProductID]int64{"C": 30, "D": 100})
	engine := NewEngine(staticRequirements{
		{ProductID: "C", Quantity: d(50)},
		{ProductID: "D", Quantity: d(40)},
	}, gateway)

	result, err := engine.Issue(ctx, testRun(), nil)
	require.NoError(t, err, "a shortfall must not fail the issuance")

	assert.True(t, result.Complete())
	assert.True(t, result.IssuedQuantity("C").Equal(d(30)))
	assert.True(t, result.IssuedQuantity("D").Equal(d(40)))

	require.Len(t, result.Shortfalls, 1)
	short := result.Shortfalls[0]
	assert.Equal(t, entities.ProductID("C"), short.ProductID)
	assert.Equal(t, entities.FacilityID("PLANT"), short.FacilityID)
	assert.True(t, short.Short().Equal(d(20)), "got %s", short.Short())
	assert.Contains(t, short.Error(), "requested 50, available 30")

	assert.True(t, gateway.OnHand("C", "PLANT").IsZero())
	assert.True(t, gateway.OnHand("D", "PLANT").Equal(d(60)))
	assert.True(t, result.Requirements[0].QuantityIssued.Equal(d(30)))
}

func TestEngine_NothingAvailable(t *testing.T) {
	gateway := newGateway(t, nil)
	engine := NewEngine(staticRequirements{{ProductID: "C", Quantity: d(5)}}, gateway)

	result, err := engine.Issue(context.Background(), testRun(), nil)
	require.NoError(t, err)

	assert.Empty(t, result.Issued)
	require.Len(t, result.Shortfalls, 1)
	assert.True(t, result.Shortfalls[0].Short().Equal(d(5)))
}

func TestEngine_PerItemFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	gateway := newGateway(t, map[entities.ProductID]int64{"A": 10, "B": 10, "C": 10})
	gateway.failOn["B"] = true
	engine := NewEngine(staticRequirements{
		{ProductID: "A", Quantity: d(1)},
		{ProductID: "B", Quantity: d(1)},
		{ProductID: "C", Quantity: d(1)},
	}, gateway)

	result, err := engine.Issue(ctx, testRun(), nil)
	require.NoError(t, err)

	assert.False(t, result.Complete())
	assert.Len(t, result.Issued, 2)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "B")

	// retry skips what was already issued
	gateway.failOn["B"] = false
	retry, err := engine.Issue(ctx, testRun(), map[entities.ProductID]bool{"A": true, "C": true})
	require.NoError(t, err)
	assert.True(t, retry.Complete())
	assert.ElementsMatch(t, []entities.ProductID{"A", "C"}, retry.Skipped)
	require.Len(t, retry.Issued, 1)
	assert.Equal(t, entities.ProductID("B"), retry.Issued[0].ProductID)
	assert.True(t, gateway.OnHand("A", "PLANT").Equal(d(9)), "A issued exactly once")
}

func TestEngine_ReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	gateway := newGateway(t, map[entities.ProductID]int64{"C": 30})
	engine := NewEngine(staticRequirements{{ProductID: "C", Quantity: d(50)}}, gateway)

	result, err := engine.Reserve(ctx, testRun(), nil)
	require.NoError(t, err)
	require.Len(t, result.Reserved, 1)
	assert.True(t, result.ReservedQuantity("C").Equal(d(30)))
	require.Len(t, result.Shortfalls, 1)

	available, _ := gateway.GetAvailable(ctx, "C", "PLANT")
	assert.True(t, available.IsZero())
	assert.True(t, gateway.OnHand("C", "PLANT").Equal(d(30)), "reservation does not consume")

	released, err := engine.Release(ctx, result.Reserved)
	require.NoError(t, err)
	assert.Len(t, released, 1)
	assert.Equal(t, 0, gateway.ReservationCount())

	again, err := engine.Release(ctx, result.Reserved)
	require.NoError(t, err, "releasing an unknown reservation is treated as done")
	assert.Len(t, again, 1)
}

func TestEngine_ReleaseFailureIsReported(t *testing.T) {
	ctx := context.Background()
	gateway := newGateway(t, map[entities.ProductID]int64{"A": 5, "B": 5})
	engine := NewEngine(staticRequirements{
		{ProductID: "A", Quantity: d(1)},
		{ProductID: "B", Quantity: d(1)},
	}, gateway)

	result, err := engine.Reserve(ctx, testRun(), nil)
	require.NoError(t, err)
	require.Len(t, result.Reserved, 2)
	gateway.release[result.Reserved[1].ID] = errors.New("timeout")

	released, err := engine.Release(ctx, result.Reserved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	require.Len(t, released, 1)
	assert.Equal(t, result.Reserved[0].ID, released[0].ID)
}

func TestEngine_RequirementFailureFailsWholeCall(t *testing.T) {
	cycle := &entities.CycleError{Path: []entities.ProductID{"A", "B", "A"}}
	engine := NewEngine(failingRequirements{err: cycle}, newGateway(t, nil))

	_, err := engine.Issue(context.Background(), testRun(), nil)
	assert.ErrorIs(t, err, entities.ErrCycleDetected)
}

type operationRecorder struct {
	metrics.NoopRecorder
	ops        []string
	shortfalls int
}

func (r *operationRecorder) RecordOperation(op string, _ error, _ time.Duration) {
	r.ops = append(r.ops, op)
}

func (r *operationRecorder) RecordShortfall(string) {
	r.shortfalls++
}

func TestEngine_RecordsOperations(t *testing.T) {
	ctx := context.Background()
	gateway := newGateway(t, map[entities.ProductID]int64{"C": 5})
	recorder := &operationRecorder{}
	engine := NewEngine(staticRequirements{{ProductID: "C", Quantity: d(50)}}, gateway, WithMetrics(recorder))

	_, err := engine.Issue(ctx, testRun(), nil)
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, testRun(), map[entities.ProductID]bool{"C": true})
	require.NoError(t, err)

	assert.Equal(t, []string{"issuance.issue", "issuance.reserve"}, recorder.ops)
	assert.Zero(t, recorder.shortfalls, "shortfalls are counted where they are recorded on the run")
}
