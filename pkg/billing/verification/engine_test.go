package verification

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/pkg/logger"
	"course-subscription-be/internal/repository/implementation"
	"course-subscription-be/internal/repository/specification"
	"course-subscription-be/internal/repository/unitofwork"
	"course-subscription-be/pkg/billing/activation"
	"course-subscription-be/pkg/chain"
	"course-subscription-be/pkg/chain/chaintest"
	"course-subscription-be/pkg/database/dbtest"
	"course-subscription-be/pkg/payment/provider"
	"course-subscription-be/pkg/payment/recognition"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	tokenAddr    = common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")
	treasuryAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	payerAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type fakeProvider struct {
	mu     sync.Mutex
	orders map[string]*provider.OrderDetails
	errs   map[string]error
	calls  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		orders: make(map[string]*provider.OrderDetails),
		errs:   make(map[string]error),
	}
}

func (p *fakeProvider) GetOrderStatus(ctx context.Context, orderId string) (*provider.OrderDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if err, ok := p.errs[orderId]; ok {
		return nil, err
	}
	if details, ok := p.orders[orderId]; ok {
		if details == nil {
			return nil, nil
		}
		copied := *details
		return &copied, nil
	}
	return nil, provider.ErrOrderNotFound
}

func (p *fakeProvider) settle(orderId, recognitionId, amount string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders[orderId] = &provider.OrderDetails{
		OrderId:               orderId,
		MerchantRecognitionId: recognitionId,
		StatusCode:            "200",
		Status:                "settlement",
		Successful:            true,
		ActualAmount:          decimal.NewNullDecimal(decimal.RequireFromString(amount)),
	}
}

type importantEntry struct {
	userId   uuid.UUID
	evidence entity.Evidence
	details  map[string]interface{}
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []importantEntry
}

func (a *fakeAuditor) Important(ctx context.Context, userId uuid.UUID, evidence entity.Evidence, message string, details map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, importantEntry{userId: userId, evidence: evidence, details: details})
}

type fixture struct {
	engine   *Engine
	db       *gorm.DB
	provider *fakeProvider
	reader   *chaintest.Reader
	auditor  *fakeAuditor
}

func newFixture(t *testing.T, strategies ...entity.VerificationMethod) *fixture {
	t.Helper()
	db := dbtest.New(t)
	uowFactory := unitofwork.NewRepositoryFactory(db)
	log := logger.NewNopLogger()

	f := &fixture{
		db:       db,
		provider: newFakeProvider(),
		reader:   chaintest.NewReader(),
		auditor:  &fakeAuditor{},
	}
	coordinator := activation.NewCoordinator(uowFactory, log, nil, activation.Options{
		Plan:   "annual_course_access",
		Period: 365 * 24 * time.Hour,
	})
	f.engine = NewEngine(Dependencies{
		UnitOfWork: uowFactory,
		Provider:   f.provider,
		Chain:      chain.NewInspector(f.reader, tokenAddr.Hex(), treasuryAddr.Hex(), 6, time.Second),
		Activator:  coordinator,
		Auditor:    f.auditor,
		Logger:     log,
	}, Config{
		Price:            decimal.NewFromInt(10),
		Tolerance:        decimal.RequireFromString("0.5"),
		PublicStrategies: strategies,
	})
	return f
}

func (f *fixture) seedPending(t *testing.T, userId uuid.UUID, createdAt time.Time) *entity.OnrampTransaction {
	t.Helper()
	return f.seed(t, userId, recognition.KindSubscription, createdAt)
}

func (f *fixture) seed(t *testing.T, userId uuid.UUID, kind recognition.Kind, createdAt time.Time) *entity.OnrampTransaction {
	t.Helper()
	paymentType := entity.PaymentTypeSubscription
	if kind != recognition.KindSubscription {
		paymentType = entity.PaymentTypeOnramp
	}
	row := &entity.OnrampTransaction{
		UserId:                userId,
		MerchantRecognitionId: recognition.New(kind, userId, createdAt),
		Status:                entity.TransactionStatusInitiated,
		Type:                  paymentType,
		Plan:                  "annual_course_access",
		Metadata:              map[string]interface{}{"type": string(paymentType), "expected_amount": "10"},
		CreatedAt:             createdAt.UTC(),
	}
	require.NoError(t, implementation.NewOnrampTransactionRepository(f.db).Create(context.Background(), row))
	return row
}

func (f *fixture) row(t *testing.T, recognitionId string) *entity.OnrampTransaction {
	t.Helper()
	row, err := implementation.NewOnrampTransactionRepository(f.db).FindByRecognitionId(context.Background(), recognitionId)
	require.NoError(t, err)
	require.NotNil(t, row)
	return row
}

func (f *fixture) subscriptions(t *testing.T, userId uuid.UUID) []*entity.Subscription {
	t.Helper()
	subs, err := implementation.NewSubscriptionRepository(f.db).FindAllSubscriptions(context.Background(), specification.UserOwnedBy{UserID: userId})
	require.NoError(t, err)
	return subs
}

func (f *fixture) events(t *testing.T, subId uuid.UUID) []*entity.SubscriptionEvent {
	t.Helper()
	evts, err := implementation.NewSubscriptionRepository(f.db).FindEvents(context.Background(), specification.Filter("subscription_id", subId))
	require.NoError(t, err)
	return evts
}

// mine registers a successful USDC transfer of amount (in whole token units
// times 1e6) to the treasury, mined at blockTime, and returns its hash.
func (f *fixture) mine(n byte, micros int64, blockTime time.Time) common.Hash {
	hash := common.BytesToHash([]byte{0xab, n})
	f.reader.AddMined(hash, 1, uint64(1000+int(n)), blockTime,
		chaintest.TransferLog(tokenAddr, payerAddr, treasuryAddr, big.NewInt(micros)))
	return hash
}
