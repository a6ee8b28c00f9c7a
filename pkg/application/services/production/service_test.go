package production

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsinha/mes/pkg/application/services/bom"
	"github.com/vsinha/mes/pkg/application/services/issuance"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
	"github.com/vsinha/mes/pkg/infrastructure/events"
	"github.com/vsinha/mes/pkg/infrastructure/repositories/memory"
	testhelpers "github.com/vsinha/mes/pkg/infrastructure/testing"
)

var d = decimal.NewFromInt

type harness struct {
	sc     *testhelpers.Scenario
	svc    *Service
	events *events.InMemoryEventStore
	now    time.Time
}

func sequentialIDs() func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("ID-%d", atomic.AddInt64(&n, 1))
	}
}

func newHarness(t *testing.T, sc *testhelpers.Scenario, gateway repositories.InventoryGateway, opts ...Option) *harness {
	t.Helper()
	if gateway == nil {
		gateway = sc.Inventory
	}
	h := &harness{sc: sc, events: events.NewInMemoryEventStore(), now: testhelpers.BaseDate}

	resolver := bom.NewResolver(sc.Products, sc.BOMs, sc.Prices)
	engine := issuance.NewEngine(resolver, gateway)
	base := []Option{
		WithClock(func() time.Time { return h.now }),
		WithIDGenerator(sequentialIDs()),
		WithEventStore(h.events),
	}
	h.svc = NewService(sc.Products, sc.Routings, sc.Runs, engine, gateway, append(base, opts...)...)
	return h
}

func (h *harness) createBikeRun(t *testing.T, quantity int64) *entities.ProductionRun {
	t.Helper()
	run, err := h.svc.CreateRun(context.Background(), CreateRunRequest{
		ProductID:          "BIKE",
		Quantity:           d(quantity),
		FacilityID:         testhelpers.Plant,
		RoutingID:          "BIKE-ROUTING",
		EstimatedStartDate: testhelpers.BaseDate,
	})
	require.NoError(t, err)
	return run
}

func (h *harness) eventTypes(t *testing.T, runID entities.RunID) []string {
	t.Helper()
	evts, err := h.events.ReadEvents(string(runID), 0)
	require.NoError(t, err)
	types := make([]string, 0, len(evts))
	for _, e := range evts {
		types = append(types, e.Type())
	}
	return types
}

// finishTask starts and completes a task with the given output
func finishTask(t *testing.T, svc *Service, taskID entities.TaskID, produced, rejected int64) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.StartTask(ctx, taskID)
	require.NoError(t, err)
	_, err = svc.CompleteTask(ctx, taskID, entities.TaskDeclaration{
		SetupMillis:      1000,
		RunMillis:        5000,
		QuantityProduced: d(produced),
		QuantityRejected: d(rejected),
	})
	require.NoError(t, err)
}

func TestService_CreateRun(t *testing.T) {
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)

	run := h.createBikeRun(t, 3)

	assert.Equal(t, entities.RunCreated, run.Status)
	require.Len(t, run.Tasks, 3)
	assert.Equal(t, []int{10, 20, 30}, []int{run.Tasks[0].SequenceNum, run.Tasks[1].SequenceNum, run.Tasks[2].SequenceNum})
	for _, task := range run.Tasks {
		assert.Equal(t, run.ID, task.RunID)
		assert.Equal(t, entities.TaskCreated, task.Status)
	}

	// (10 + 3x2) + (5 + 3x1) + 0 minutes
	assert.Equal(t, testhelpers.BaseDate.Add(24*time.Minute), run.EstimatedCompletionDate)
	assert.Equal(t, []string{events.RunCreatedEvent}, h.eventTypes(t, run.ID))

	stored, err := h.svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.EstimatedCompletionDate, stored.EstimatedCompletionDate)
}

func TestService_CreateRunRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)

	tests := []struct {
		name string
		req  CreateRunRequest
		want error
	}{
		{"zero quantity", CreateRunRequest{ProductID: "BIKE", Quantity: decimal.Zero, FacilityID: testhelpers.Plant, RoutingID: "BIKE-ROUTING"}, entities.ErrInvalidArgument},
		{"missing facility", CreateRunRequest{ProductID: "BIKE", Quantity: d(1), RoutingID: "BIKE-ROUTING"}, entities.ErrInvalidArgument},
		{"unknown product", CreateRunRequest{ProductID: "TRIKE", Quantity: d(1), FacilityID: testhelpers.Plant, RoutingID: "BIKE-ROUTING"}, entities.ErrNotFound},
		{"unknown routing", CreateRunRequest{ProductID: "BIKE", Quantity: d(1), FacilityID: testhelpers.Plant, RoutingID: "NONE"}, entities.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreateRun(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_TaskOrdering(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)
	run := h.createBikeRun(t, 2)
	task1, task2 := run.Tasks[0].ID, run.Tasks[1].ID

	_, err := h.svc.StartTask(ctx, task2)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	started, err := h.svc.StartTask(ctx, task1)
	require.NoError(t, err)
	assert.Equal(t, entities.RunRunning, started.Status)
	require.NotNil(t, started.ActualStartDate)
	assert.Equal(t, testhelpers.BaseDate, *started.ActualStartDate)

	_, err = h.svc.StartTask(ctx, task1)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition, "duplicate start")
	_, err = h.svc.StartTask(ctx, task2)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition, "start while task 1 runs")

	_, err = h.svc.CompleteTask(ctx, task1, entities.TaskDeclaration{})
	require.NoError(t, err)

	_, err = h.svc.StartTask(ctx, task2)
	assert.NoError(t, err)

	_, err = h.svc.StartTask(ctx, "missing")
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestService_ConcurrentStartHasOneWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)
	run := h.createBikeRun(t, 1)

	var wg sync.WaitGroup
	var wins, refused int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		taskID := run.Tasks[i%2].ID
		go func() {
			defer wg.Done()
			_, err := h.svc.StartTask(ctx, taskID)
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case errors.Is(err, entities.ErrInvalidTransition):
				atomic.AddInt64(&refused, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, 19, refused)

	stored, err := h.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskRunning, stored.Tasks[0].Status)
	assert.Equal(t, entities.TaskCreated, stored.Tasks[1].Status)
}

// lockstepRuns holds every GetRun until two callers have read the run
type lockstepRuns struct {
	*memory.ProductionRunRepository
	arrived sync.WaitGroup
}

func (l *lockstepRuns) GetRun(ctx context.Context, id entities.RunID) (*entities.ProductionRun, error) {
	run, err := l.ProductionRunRepository.GetRun(ctx, id)
	l.arrived.Done()
	l.arrived.Wait()
	return run, err
}

func TestService_VersionCheckAcrossServices(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildBikeShopScenario()
	h := newHarness(t, sc, nil)
	run := h.createBikeRun(t, 1)

	// two services with separate locks share one store, like two processes
	shared := &lockstepRuns{ProductionRunRepository: sc.Runs}
	shared.arrived.Add(2)
	resolver := bom.NewResolver(sc.Products, sc.BOMs, sc.Prices)
	newSvc := func() *Service {
		return NewService(sc.Products, sc.Routings, shared, issuance.NewEngine(resolver, sc.Inventory), sc.Inventory)
	}
	a, b := newSvc(), newSvc()

	errs := make(chan error, 2)
	go func() { _, err := a.StartTask(ctx, run.Tasks[0].ID); errs <- err }()
	go func() { _, err := b.StartTask(ctx, run.Tasks[0].ID); errs <- err }()

	first, second := <-errs, <-errs
	results := []error{first, second}
	var ok, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, entities.ErrConcurrentUpdate):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	stored, err := sc.Runs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.Version)
}

func TestService_DeclareAndCompleteBooksOutput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)
	run := h.createBikeRun(t, 2)
	task1, task2, task3 := run.Tasks[0].ID, run.Tasks[1].ID, run.Tasks[2].ID

	finishTask(t, h.svc, task1, 2, 1)
	finishTask(t, h.svc, task2, 2, 0)
	assert.True(t, h.sc.Available("BIKE").IsZero(), "non-terminal output stays off inventory")

	_, err := h.svc.StartTask(ctx, task3)
	require.NoError(t, err)

	declared, err := h.svc.DeclareTask(ctx, task3, entities.TaskDeclaration{RunMillis: 60000, QuantityProduced: d(1)})
	require.NoError(t, err)
	assert.Equal(t, entities.TaskRunning, declared.Tasks[2].Status)
	assert.Equal(t, entities.RunRunning, declared.Status)
	assert.True(t, declared.QuantityProduced.Equal(d(1)))
	assert.True(t, h.sc.Available("BIKE").Equal(d(1)))

	completed, err := h.svc.CompleteTask(ctx, task3, entities.TaskDeclaration{RunMillis: 30000, QuantityProduced: d(1), QuantityRejected: d(1)})
	require.NoError(t, err)

	assert.Equal(t, entities.RunCompleted, completed.Status)
	assert.NotNil(t, completed.ActualCompletionDate)
	assert.EqualValues(t, 90000, completed.Tasks[2].ActualMilliSeconds)
	assert.True(t, completed.QuantityProduced.Equal(d(2)), "run produced follows the terminal task")
	assert.True(t, completed.QuantityRejected.Equal(d(2)), "run rejected sums all tasks")
	assert.True(t, h.sc.Available("BIKE").Equal(d(2)))

	types := h.eventTypes(t, run.ID)
	assert.Contains(t, types, events.OutputDeclaredEvent)
	assert.Equal(t, events.RunCompletedEvent, types[len(types)-1])

	_, err = h.svc.DeclareTask(ctx, task3, entities.TaskDeclaration{QuantityProduced: d(1)})
	assert.ErrorIs(t, err, entities.ErrInvalidTransition, "declare on completed run")
}

func TestService_DeclareRejectsBadDeltas(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)
	run := h.createBikeRun(t, 1)

	_, err := h.svc.DeclareTask(ctx, run.Tasks[0].ID, entities.TaskDeclaration{QuantityProduced: d(1)})
	assert.ErrorIs(t, err, entities.ErrInvalidTransition, "task not running")

	_, err = h.svc.StartTask(ctx, run.Tasks[0].ID)
	require.NoError(t, err)

	_, err = h.svc.DeclareTask(ctx, run.Tasks[0].ID, entities.TaskDeclaration{QuantityRejected: d(-1)})
	assert.ErrorIs(t, err, entities.ErrInvalidArgument)
	_, err = h.svc.CompleteTask(ctx, run.Tasks[0].ID, entities.TaskDeclaration{SetupMillis: -5})
	assert.ErrorIs(t, err, entities.ErrInvalidArgument)
}

// stockFailingGateway refuses AddStock
type stockFailingGateway struct {
	*memory.InventoryLedger
}

func (g stockFailingGateway) AddStock(context.Context, entities.ProductID, entities.FacilityID, decimal.Decimal, string) error {
	return errors.New("ledger unavailable")
}

func TestService_OutputFailureLeavesTaskUnchanged(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildBikeShopScenario()
	h := newHarness(t, sc, stockFailingGateway{sc.Inventory})
	run, err := h.svc.CreateRun(ctx, CreateRunRequest{ProductID: "BIKE", Quantity: d(1), FacilityID: testhelpers.Plant, RoutingID: "BIKE-ROUTING"})
	require.NoError(t, err)

	finishTask(t, h.svc, run.Tasks[0].ID, 1, 0)
	finishTask(t, h.svc, run.Tasks[1].ID, 1, 0)
	_, err = h.svc.StartTask(ctx, run.Tasks[2].ID)
	require.NoError(t, err)

	_, err = h.svc.CompleteTask(ctx, run.Tasks[2].ID, entities.TaskDeclaration{QuantityProduced: d(1)})
	require.Error(t, err)

	stored, err := h.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskRunning, stored.Tasks[2].Status)
	assert.True(t, stored.Tasks[2].QuantityProduced.IsZero())
	assert.Nil(t, stored.CommitClaimedAt, "a failed booking releases its claim")
}

func TestService_WipRunGrowsCapacity(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildPanelWipScenario()
	h := newHarness(t, sc, nil)

	run, err := h.svc.CreateRun(ctx, CreateRunRequest{
		ProductID:  "PANEL-WIP",
		Quantity:   d(100),
		FacilityID: testhelpers.Plant,
		RoutingID:  "PANEL-ROUTING",
	})
	require.NoError(t, err)
	require.True(t, run.IsWipRun)

	_, err = h.svc.StartTask(ctx, run.Tasks[0].ID)
	require.NoError(t, err)
	_, err = h.svc.DeclareTask(ctx, run.Tasks[0].ID, entities.TaskDeclaration{QuantityProduced: d(60)})
	require.NoError(t, err)
	completed, err := h.svc.CompleteTask(ctx, run.Tasks[0].ID, entities.TaskDeclaration{QuantityProduced: d(40)})
	require.NoError(t, err)

	assert.True(t, completed.WipCapacity.Equal(d(100)))
	assert.True(t, sc.Available("PANEL-WIP").IsZero(), "wip output is not stocked")
}

func TestService_IssueMaterials(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildBikeShopScenario()
	h := newHarness(t, sc, nil)
	run := h.createBikeRun(t, 2)

	result, err := h.svc.IssueMaterials(ctx, run.ID)
	require.NoError(t, err)

	assert.True(t, result.Complete())
	assert.True(t, result.IssuedQuantity("TUBE").Equal(d(6)))
	assert.True(t, result.IssuedQuantity("SPOKE").Equal(d(128)))
	assert.True(t, result.IssuedQuantity("RIM").Equal(d(3)))
	require.Len(t, result.Shortfalls, 1)
	assert.Equal(t, entities.ProductID("RIM"), result.Shortfalls[0].ProductID)
	assert.True(t, result.Shortfalls[0].Short().Equal(d(1)))

	assert.True(t, sc.Available("TUBE").Equal(d(44)))
	assert.True(t, sc.Available("RIM").IsZero())

	stored, err := h.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.MaterialsIssued, stored.MaterialMode)
	assert.Len(t, stored.Issuances, 3)

	again, err := h.svc.IssueMaterials(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, again.IssuedQuantity("TUBE").Equal(d(6)))
	assert.True(t, sc.Available("TUBE").Equal(d(44)), "repeat issue is a no-op")

	unchanged, err := h.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Version, unchanged.Version)

	_, err = h.svc.ReserveMaterials(ctx, run.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	types := h.eventTypes(t, run.ID)
	assert.Contains(t, types, events.MaterialsIssuedEvent)
	assert.Contains(t, types, events.ShortageIdentifiedEvent)
}

// issueFailingGateway fails issuance of selected products until healed
type issueFailingGateway struct {
	*memory.InventoryLedger
	mu     sync.Mutex
	failOn map[entities.ProductID]bool
	fail   bool
}

func (g *issueFailingGateway) Issue(ctx context.Context, p entities.ProductID, f entities.FacilityID, q decimal.Decimal, lot string) (string, error) {
	g.mu.Lock()
	failing := g.failOn[p]
	g.mu.Unlock()
	if failing {
		return "", errors.New("ledger unavailable")
	}
	return g.InventoryLedger.Issue(ctx, p, f, q, lot)
}

func (g *issueFailingGateway) Release(ctx context.Context, id string) error {
	g.mu.Lock()
	failing := g.fail
	g.mu.Unlock()
	if failing {
		return errors.New("ledger unavailable")
	}
	return g.InventoryLedger.Release(ctx, id)
}

func (g *issueFailingGateway) heal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failOn = map[entities.ProductID]bool{}
	g.fail = false
}

func TestService_IssueRetriesOnlyFailedProducts(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildBikeShopScenario()
	gateway := &issueFailingGateway{InventoryLedger: sc.Inventory, failOn: map[entities.ProductID]bool{"SPOKE": true}}
	m := newRecordingMetrics()
	h := newHarness(t, sc, gateway, WithMetrics(m))
	run := h.createBikeRun(t, 1)

	// rims are out of stock, so the first issue records them short
	_, err := sc.Inventory.Issue(ctx, "RIM", testhelpers.Plant, d(3), "")
	require.NoError(t, err)

	first, err := h.svc.IssueMaterials(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, first.Complete())
	assert.Len(t, first.Errors, 1)
	require.Len(t, first.Shortfalls, 1)
	assert.Equal(t, entities.ProductID("RIM"), first.Shortfalls[0].ProductID)

	stored, err := h.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, stored.MaterialsComplete)

	require.NoError(t, sc.Inventory.AddStock(ctx, "RIM", testhelpers.Plant, d(5), ""))
	gateway.heal()
	second, err := h.svc.IssueMaterials(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, second.Complete())
	assert.ElementsMatch(t, []entities.ProductID{"RIM", "TUBE"}, second.Skipped)
	assert.True(t, second.IssuedQuantity("SPOKE").Equal(d(64)))
	assert.Empty(t, second.Shortfalls)

	assert.True(t, sc.Available("TUBE").Equal(d(47)), "tubes issued exactly once")
	assert.True(t, sc.Available("SPOKE").Equal(d(436)))
	assert.True(t, sc.Available("RIM").Equal(d(5)), "short products are not topped up")

	stored, err = h.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, stored.MaterialsComplete)
	assert.Len(t, stored.Issuances, 2)
	require.Len(t, stored.Shortfalls, 1)
	assert.True(t, stored.Shortfalls[0].Short().Equal(d(2)))

	shortages := 0
	for _, typ := range h.eventTypes(t, run.ID) {
		if typ == events.ShortageIdentifiedEvent {
			shortages++
		}
	}
	assert.Equal(t, 1, shortages)
	assert.Equal(t, []string{"RIM"}, m.shortfalls)
}

func TestService_IssueAfterReserveReplacesShortfalls(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildBikeShopScenario()
	h := newHarness(t, sc, nil)
	run := h.createBikeRun(t, 2)

	reserved, err := h.svc.ReserveMaterials(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, reserved.Shortfalls, 1)

	require.NoError(t, sc.Inventory.AddStock(ctx, "RIM", testhelpers.Plant, d(1), ""))
	issued, err := h.svc.IssueMaterials(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, issued.IssuedQuantity("RIM").Equal(d(4)))
	assert.Empty(t, issued.Shortfalls)

	stored, err := h.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Shortfalls, "reserve shortfalls do not survive a full issue")
}

func TestService_ConcurrentIssueAcrossServicesConsumesOnce(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildBikeShopScenario()
	h := newHarness(t, sc, nil)
	run := h.createBikeRun(t, 1)

	shared := &lockstepRuns{ProductionRunRepository: sc.Runs}
	shared.arrived.Add(2)
	resolver := bom.NewResolver(sc.Products, sc.BOMs, sc.Prices)
	newSvc := func() *Service {
		return NewService(sc.Products, sc.Routings, shared, issuance.NewEngine(resolver, sc.Inventory), sc.Inventory)
	}
	a, b := newSvc(), newSvc()

	errs := make(chan error, 2)
	go func() { _, err := a.IssueMaterials(ctx, run.ID); errs <- err }()
	go func() { _, err := b.IssueMaterials(ctx, run.ID); errs <- err }()

	var ok, conflicts int
	for _, err := range []error{<-errs, <-errs} {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, entities.ErrConcurrentUpdate):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	assert.Len(t, sc.Inventory.Issuances(), 3, "the losing writer touched no stock")
	assert.True(t, sc.Available("TUBE").Equal(d(47)))
	assert.True(t, sc.Available("SPOKE").Equal(d(436)))
	assert.True(t, sc.Available("RIM").Equal(d(1)))

	stored, err := sc.Runs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Issuances, 3)
	assert.Nil(t, stored.CommitClaimedAt)

	again, err := h.svc.IssueMaterials(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, again.IssuedQuantity("TUBE").Equal(d(3)))
	assert.True(t, sc.Available("TUBE").Equal(d(47)), "retry after the conflict is a no-op")
}

func TestService_CommitClaimBlocksOtherWriters(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildBikeShopScenario()
	h := newHarness(t, sc, nil)
	run := h.createBikeRun(t, 1)

	// a writer elsewhere claimed the run and has not finished
	claimed, err := sc.Runs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	claimed.CommitClaimedAt = timePtr(h.now)
	require.NoError(t, sc.Runs.UpdateRun(ctx, claimed))

	_, err = h.svc.IssueMaterials(ctx, run.ID)
	assert.ErrorIs(t, err, entities.ErrConcurrentUpdate)
	_, err = h.svc.StartTask(ctx, run.Tasks[0].ID)
	assert.ErrorIs(t, err, entities.ErrConcurrentUpdate)
	assert.True(t, sc.Available("TUBE").Equal(d(50)))

	// an abandoned claim is taken over once stale
	h.now = h.now.Add(DefaultClaimTTL)
	result, err := h.svc.IssueMaterials(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, result.IssuedQuantity("TUBE").Equal(d(3)))

	stored, err := h.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CommitClaimedAt)
}

func TestService_ReserveThenIssue(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildBikeShopScenario()
	h := newHarness(t, sc, nil)
	run := h.createBikeRun(t, 2)

	reserved, err := h.svc.ReserveMaterials(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, reserved.ReservedQuantity("TUBE").Equal(d(6)))
	assert.Equal(t, 3, sc.Inventory.ReservationCount())
	assert.True(t, sc.Available("TUBE").Equal(d(44)))
	assert.True(t, sc.Inventory.OnHand("TUBE", testhelpers.Plant).Equal(d(50)))

	issued, err := h.svc.IssueMaterials(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, issued.IssuedQuantity("TUBE").Equal(d(6)))
	assert.Zero(t, sc.Inventory.ReservationCount())
	assert.True(t, sc.Inventory.OnHand("TUBE", testhelpers.Plant).Equal(d(44)))

	stored, err := h.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Reservations)
	assert.Equal(t, entities.MaterialsIssued, stored.MaterialMode)
	assert.Contains(t, h.eventTypes(t, run.ID), events.MaterialsReleasedEvent)
}

func TestService_MaterialsRefusedAfterFirstTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)
	run := h.createBikeRun(t, 1)

	finishTask(t, h.svc, run.Tasks[0].ID, 1, 0)

	_, err := h.svc.IssueMaterials(ctx, run.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
	_, err = h.svc.ReserveMaterials(ctx, run.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
}

func TestService_CancelReleasesReservations(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildBikeShopScenario()
	h := newHarness(t, sc, nil)
	run := h.createBikeRun(t, 2)

	_, err := h.svc.ReserveMaterials(ctx, run.ID)
	require.NoError(t, err)

	cancelled, err := h.svc.Cancel(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RunCancelled, cancelled.Status)
	assert.Empty(t, cancelled.Reservations)
	assert.Zero(t, sc.Inventory.ReservationCount())
	assert.True(t, sc.Available("TUBE").Equal(d(50)))

	_, err = h.svc.StartTask(ctx, run.Tasks[0].ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
	_, err = h.svc.Cancel(ctx, run.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
	_, err = h.svc.QuickComplete(ctx, run.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
}

func TestService_CancelKeepsIssuances(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildBikeShopScenario()
	h := newHarness(t, sc, nil)
	run := h.createBikeRun(t, 1)

	_, err := h.svc.IssueMaterials(ctx, run.ID)
	require.NoError(t, err)

	cancelled, err := h.svc.Cancel(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, cancelled.Issuances, 3)
	assert.True(t, sc.Available("TUBE").Equal(d(47)), "issuances are not reversed")
}

func TestService_CancelRefusedAfterActualTime(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)
	run := h.createBikeRun(t, 1)
	task1 := run.Tasks[0].ID

	_, err := h.svc.StartTask(ctx, task1)
	require.NoError(t, err)
	flags, err := h.svc.TaskFlags(ctx, task1)
	require.NoError(t, err)
	assert.True(t, flags.CanDeclare)

	_, err = h.svc.DeclareTask(ctx, task1, entities.TaskDeclaration{SetupMillis: 1000})
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, run.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	stored, err := h.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RunRunning, stored.Status)
}

func TestService_CancelRefusedAfterDeclaredOutput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)
	run := h.createBikeRun(t, 1)
	task1 := run.Tasks[0].ID

	_, err := h.svc.StartTask(ctx, task1)
	require.NoError(t, err)
	_, err = h.svc.DeclareTask(ctx, task1, entities.TaskDeclaration{QuantityProduced: d(1)})
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, run.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
}

func TestService_CancelAllowedWhileRunningWithoutTime(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)
	run := h.createBikeRun(t, 1)

	_, err := h.svc.StartTask(ctx, run.Tasks[0].ID)
	require.NoError(t, err)

	cancelled, err := h.svc.Cancel(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RunCancelled, cancelled.Status)
}

func TestService_CancelReleaseFailureKeepsRunOpen(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildBikeShopScenario()
	gateway := &issueFailingGateway{InventoryLedger: sc.Inventory, failOn: map[entities.ProductID]bool{}}
	h := newHarness(t, sc, gateway)
	run := h.createBikeRun(t, 1)

	_, err := h.svc.ReserveMaterials(ctx, run.ID)
	require.NoError(t, err)

	gateway.fail = true
	_, err = h.svc.Cancel(ctx, run.ID)
	require.Error(t, err)

	stored, err := h.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RunCreated, stored.Status)
	assert.Len(t, stored.Reservations, 3)

	gateway.heal()
	cancelled, err := h.svc.Cancel(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RunCancelled, cancelled.Status)
	assert.Zero(t, sc.Inventory.ReservationCount())
}

func TestService_QuickCompleteAndClose(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)

	run := h.createBikeRun(t, 1)
	_, err := h.svc.CloseRun(ctx, run.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition, "close before completion")

	_, err = h.svc.StartTask(ctx, run.Tasks[0].ID)
	require.NoError(t, err)

	completed, err := h.svc.QuickComplete(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RunCompleted, completed.Status)
	for _, task := range completed.Tasks {
		assert.Equal(t, entities.TaskCompleted, task.Status)
		assert.NotNil(t, task.ActualCompletionDate)
	}
	assert.True(t, completed.QuantityProduced.Equal(d(1)), "remaining quantity is credited")
	assert.True(t, h.sc.Available("BIKE").Equal(d(1)))

	closed, err := h.svc.CloseRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RunClosed, closed.Status)

	_, err = h.svc.QuickComplete(ctx, run.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	other := h.createBikeRun(t, 1)
	quickClosed, err := h.svc.QuickClose(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RunClosed, quickClosed.Status)
	assert.Equal(t, []string{
		events.RunCreatedEvent,
		events.OutputDeclaredEvent,
		events.TaskCompletedEvent,
		events.TaskCompletedEvent,
		events.TaskCompletedEvent,
		events.RunCompletedEvent,
		events.RunClosedEvent,
	}, h.eventTypes(t, other.ID))
}

func TestService_QuickCompleteCreditsWipCapacity(t *testing.T) {
	ctx := context.Background()
	sc := testhelpers.BuildPanelWipScenario()
	h := newHarness(t, sc, nil)

	run, err := h.svc.CreateRun(ctx, CreateRunRequest{
		ProductID:  "PANEL-WIP",
		Quantity:   d(100),
		FacilityID: testhelpers.Plant,
		RoutingID:  "PANEL-ROUTING",
	})
	require.NoError(t, err)

	_, err = h.svc.StartTask(ctx, run.Tasks[0].ID)
	require.NoError(t, err)
	_, err = h.svc.DeclareTask(ctx, run.Tasks[0].ID, entities.TaskDeclaration{QuantityProduced: d(30)})
	require.NoError(t, err)

	completed, err := h.svc.QuickComplete(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, completed.QuantityProduced.Equal(d(100)))
	assert.True(t, completed.WipCapacity.Equal(d(100)))
	assert.True(t, sc.Available("PANEL-WIP").IsZero())
}

func TestService_PlanningTransitions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)
	run := h.createBikeRun(t, 3)

	_, err := h.svc.ConfirmRun(ctx, run.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition, "confirm before schedule")

	scheduled, err := h.svc.ScheduleRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RunScheduled, scheduled.Status)
	for _, task := range scheduled.Tasks {
		assert.Equal(t, entities.TaskScheduled, task.Status)
	}
	_, err = h.svc.ScheduleRun(ctx, run.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	confirmed, err := h.svc.ConfirmRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RunConfirmed, confirmed.Status)

	later := testhelpers.BaseDate.Add(time.Hour)
	rescheduled, err := h.svc.RescheduleRun(ctx, run.ID, later)
	require.NoError(t, err)
	assert.Equal(t, later.Add(24*time.Minute), rescheduled.EstimatedCompletionDate)

	// cut drops to 1 minute setup, 1 minute per unit: (1 + 3) + (5 + 3)
	updated, err := h.svc.UpdateTaskEstimates(ctx, run.Tasks[0].ID, time.Minute.Milliseconds(), time.Minute.Milliseconds())
	require.NoError(t, err)
	assert.Equal(t, later.Add(12*time.Minute), updated.EstimatedCompletionDate)

	_, err = h.svc.UpdateTaskEstimates(ctx, run.Tasks[0].ID, -1, 0)
	assert.ErrorIs(t, err, entities.ErrInvalidArgument)

	started, err := h.svc.StartTask(ctx, run.Tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RunRunning, started.Status)

	_, err = h.svc.RescheduleRun(ctx, run.ID, later.Add(time.Hour))
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
}

func TestService_Summary(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testhelpers.BuildBikeShopScenario(), nil)
	run := h.createBikeRun(t, 1)

	_, err := h.svc.StartTask(ctx, run.Tasks[0].ID)
	require.NoError(t, err)

	summary, err := h.svc.Summary(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "Running", summary.Status)
	require.Len(t, summary.Tasks, 3)
	assert.True(t, summary.Tasks[0].CanComplete)
	assert.False(t, summary.Tasks[1].CanStart)

	_, err = h.svc.Summary(ctx, "missing")
	assert.ErrorIs(t, err, entities.ErrNotFound)
}
