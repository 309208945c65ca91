package usecases_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"sepolia-wallet.backend/internal/domain/entities"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
	"sepolia-wallet.backend/internal/usecases"
)

const (
	strangerAddress = "0x1111111111111111111111111111111111111111"
	externalHash    = "0x00000000000000000000000000000000000000000000000000000000000000e1"
	unrelatedHash   = "0x00000000000000000000000000000000000000000000000000000000000000e2"
)

type monitorFixture struct {
	stores *testStores
	chain  *MockChainGateway
	uc     *usecases.MonitorUsecase
}

func newMonitorFixture(t *testing.T, wallets ...string) *monitorFixture {
	t.Helper()
	stores := newTestStores(t)
	chain := new(MockChainGateway)
	for _, address := range wallets {
		require.NoError(t, stores.wallets.Save(context.Background(), &entities.Wallet{Address: address, Balance: "0"}))
	}
	cursor := usecases.NewScanCursor(stores.cursor, chain)
	return &monitorFixture{
		stores: stores,
		chain:  chain,
		uc:     usecases.NewMonitorUsecase(chain, stores.wallets, stores.txs, cursor, 2),
	}
}

func (f *monitorFixture) setCursor(t *testing.T, height string) {
	t.Helper()
	require.NoError(t, f.stores.srv.Set("monitor:lastScannedBlock", height))
}

func (f *monitorFixture) cursorValue(t *testing.T) string {
	t.Helper()
	v, err := f.stores.srv.Get("monitor:lastScannedBlock")
	require.NoError(t, err)
	return v
}

func block(height uint64, transfers ...entities.ChainTransfer) *entities.ChainBlock {
	return &entities.ChainBlock{Number: height, Transactions: transfers}
}

func TestMonitorUsecase_FirstRunStartsAtHead(t *testing.T) {
	f := newMonitorFixture(t, testAddress)
	f.chain.On("GetBlockNumber", mock.Anything).Return(uint64(500), nil)

	report, err := f.uc.ScanNewBlocks(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, "500", f.cursorValue(t))
	f.chain.AssertNotCalled(t, "GetBlock", mock.Anything, mock.Anything)
}

func TestMonitorUsecase_NoWalletsStillAdvances(t *testing.T) {
	f := newMonitorFixture(t)
	f.setCursor(t, "90")
	f.chain.On("GetBlockNumber", mock.Anything).Return(uint64(100), nil)

	report, err := f.uc.ScanNewBlocks(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Advanced)
	assert.Equal(t, 0, report.Wallets)
	assert.Equal(t, "100", f.cursorValue(t))
	f.chain.AssertNotCalled(t, "GetBlock", mock.Anything, mock.Anything)
}

func TestMonitorUsecase_TracksExternalTransfersOnce(t *testing.T) {
	f := newMonitorFixture(t, testAddress)
	ctx := context.Background()
	f.setCursor(t, "10")

	incoming := entities.ChainTransfer{Hash: externalHash, From: strangerAddress, To: testAddress, Value: big.NewInt(250_000_000_000_000_000)}
	unrelated := entities.ChainTransfer{Hash: unrelatedHash, From: strangerAddress, To: otherAddress, Value: big.NewInt(1)}

	f.chain.On("GetBlockNumber", mock.Anything).Return(uint64(12), nil)
	f.chain.On("GetBlock", mock.Anything, uint64(11)).Return(block(11, incoming), nil)
	f.chain.On("GetBlock", mock.Anything, uint64(12)).Return(block(12, unrelated), nil)
	f.chain.On("GetReceipt", mock.Anything, externalHash).Return(&entities.ChainReceipt{
		TxHash:            externalHash,
		Status:            1,
		BlockNumber:       11,
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(3),
	}, nil)

	report, err := f.uc.ScanNewBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), report.FromBlock)
	assert.Equal(t, uint64(12), report.ToBlock)
	assert.Equal(t, 1, report.Count(entities.ScanOutcomeTracked))
	require.Len(t, report.Items, 1)
	assert.Equal(t, "12", f.cursorValue(t))

	id, err := f.stores.txs.FindIDByHash(ctx, externalHash)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	ext, err := f.stores.txs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusConfirmed, ext.Status)
	assert.Equal(t, entities.TransactionSourceExternal, ext.Source)
	assert.Equal(t, "250000000000000000", ext.Amount)
	require.NotNil(t, ext.BlockNumber)
	assert.Equal(t, uint64(11), *ext.BlockNumber)

	// rewinding the cursor by hand must not produce a second record
	f.setCursor(t, "10")
	report, err = f.uc.ScanNewBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(entities.ScanOutcomeDuplicate))
	assert.Equal(t, 0, report.Count(entities.ScanOutcomeTracked))

	count, err := f.stores.wallets.CountTransactions(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	f.chain.AssertNotCalled(t, "GetReceipt", mock.Anything, unrelatedHash)
}

func TestMonitorUsecase_RescanRepairsMissingIndexEntry(t *testing.T) {
	f := newMonitorFixture(t, testAddress)
	ctx := context.Background()
	f.setCursor(t, "10")

	incoming := entities.ChainTransfer{Hash: externalHash, From: strangerAddress, To: testAddress, Value: big.NewInt(7)}
	f.chain.On("GetBlockNumber", mock.Anything).Return(uint64(11), nil)
	f.chain.On("GetBlock", mock.Anything, uint64(11)).Return(block(11, incoming), nil)
	f.chain.On("GetReceipt", mock.Anything, externalHash).Return(&entities.ChainReceipt{Status: 1, BlockNumber: 11}, nil)

	report, err := f.uc.ScanNewBlocks(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Count(entities.ScanOutcomeTracked))
	id, err := f.stores.txs.FindIDByHash(ctx, externalHash)
	require.NoError(t, err)

	// record and hash claim survived, the index append did not
	f.stores.srv.Del("wallet:" + testAddress + ":txs")

	f.setCursor(t, "10")
	report, err = f.uc.ScanNewBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(entities.ScanOutcomeDuplicate))

	ids, err := f.stores.wallets.ListTransactions(ctx, testAddress, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestMonitorUsecase_SendBetweenTwoWalletsIndexesBoth(t *testing.T) {
	f := newMonitorFixture(t, testAddress, otherAddress)
	ctx := context.Background()
	f.setCursor(t, "20")

	transfer := entities.ChainTransfer{Hash: externalHash, From: testAddress, To: otherAddress, Value: big.NewInt(5)}
	f.chain.On("GetBlockNumber", mock.Anything).Return(uint64(21), nil)
	f.chain.On("GetBlock", mock.Anything, uint64(21)).Return(block(21, transfer), nil)
	f.chain.On("GetReceipt", mock.Anything, externalHash).Return(&entities.ChainReceipt{Status: 1, BlockNumber: 21}, nil)

	_, err := f.uc.ScanNewBlocks(ctx)
	require.NoError(t, err)

	for _, address := range []string{testAddress, otherAddress} {
		count, err := f.stores.wallets.CountTransactions(ctx, address)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, address)
	}
}

func TestMonitorUsecase_ResolvesPendingLocalRecord(t *testing.T) {
	f := newMonitorFixture(t, testAddress)
	ctx := context.Background()
	f.setCursor(t, "30")

	require.NoError(t, f.stores.txs.Create(ctx, &entities.Transaction{
		ID:              "local-1",
		From:            testAddress,
		To:              otherAddress,
		Amount:          "5",
		Status:          entities.TransactionStatusPending,
		TransactionHash: externalHash,
	}))
	claimed, err := f.stores.txs.ClaimHash(ctx, externalHash, "local-1")
	require.NoError(t, err)
	require.True(t, claimed)

	transfer := entities.ChainTransfer{Hash: externalHash, From: testAddress, To: otherAddress, Value: big.NewInt(5)}
	f.chain.On("GetBlockNumber", mock.Anything).Return(uint64(31), nil)
	f.chain.On("GetBlock", mock.Anything, uint64(31)).Return(block(31, transfer), nil)
	f.chain.On("GetReceipt", mock.Anything, externalHash).Return(&entities.ChainReceipt{Status: 1, BlockNumber: 31, GasUsed: 21000}, nil)

	report, err := f.uc.ScanNewBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(entities.ScanOutcomeDuplicate))

	local, err := f.stores.txs.GetByID(ctx, "local-1")
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusConfirmed, local.Status)
	assert.Equal(t, "21000", local.GasUsed)
	assert.Empty(t, local.Source)
}

func TestMonitorUsecase_PerItemFailuresDoNotBlockCursor(t *testing.T) {
	f := newMonitorFixture(t, testAddress)
	ctx := context.Background()
	f.setCursor(t, "40")

	unmined := entities.ChainTransfer{Hash: externalHash, From: strangerAddress, To: testAddress, Value: big.NewInt(1)}
	f.chain.On("GetBlockNumber", mock.Anything).Return(uint64(43), nil)
	f.chain.On("GetBlock", mock.Anything, uint64(41)).Return(nil, domainerrors.ErrChainUnavailable)
	f.chain.On("GetBlock", mock.Anything, uint64(42)).Return(block(42, unmined), nil)
	f.chain.On("GetBlock", mock.Anything, uint64(43)).Return(block(43, entities.ChainTransfer{
		Hash: unrelatedHash, From: testAddress, To: strangerAddress, Value: big.NewInt(1),
	}), nil)
	f.chain.On("GetReceipt", mock.Anything, externalHash).Return(nil, nil)
	f.chain.On("GetReceipt", mock.Anything, unrelatedHash).Return(nil, errors.New("rpc timeout"))

	report, err := f.uc.ScanNewBlocks(ctx)
	require.NoError(t, err)
	assert.True(t, report.Advanced)
	assert.Equal(t, 2, report.Count(entities.ScanOutcomeError))
	assert.Equal(t, 1, report.Count(entities.ScanOutcomePending))
	assert.Equal(t, "43", f.cursorValue(t))

	id, err := f.stores.txs.FindIDByHash(ctx, externalHash)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestMonitorUsecase_CancelledScanKeepsCursor(t *testing.T) {
	f := newMonitorFixture(t, testAddress)
	f.setCursor(t, "50")
	ctx, cancel := context.WithCancel(context.Background())

	f.chain.On("GetBlockNumber", mock.Anything).Return(uint64(60), nil)
	f.chain.On("GetBlock", mock.Anything, uint64(51)).Run(func(mock.Arguments) { cancel() }).Return(block(51), nil)

	_, err := f.uc.ScanNewBlocks(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "50", f.cursorValue(t))
}

func TestMonitorUsecase_OverlappingScanIsSkipped(t *testing.T) {
	f := newMonitorFixture(t)
	f.setCursor(t, "70")

	entered := make(chan struct{})
	release := make(chan struct{})
	f.chain.On("GetBlockNumber", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(uint64(70), nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.uc.ScanNewBlocks(context.Background())
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first scan never started")
	}
	assert.True(t, f.uc.IsScanning())

	report, err := f.uc.ScanNewBlocks(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, domainerrors.ErrScanInProgress.Error(), report.Reason)

	close(release)
	wg.Wait()
	assert.False(t, f.uc.IsScanning())
}

func TestMonitorUsecase_Status(t *testing.T) {
	f := newMonitorFixture(t, testAddress, otherAddress)
	f.setCursor(t, "100")
	f.chain.On("GetBlockNumber", mock.Anything).Return(uint64(105), nil)

	status, err := f.uc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), status.LastScannedBlock)
	assert.Equal(t, uint64(105), status.CurrentBlock)
	assert.Equal(t, uint64(5), status.BlocksBehind)
	assert.Equal(t, 2, status.MonitoredWallets)
}

func TestScanCursor_NeverRegresses(t *testing.T) {
	stores := newTestStores(t)
	chain := new(MockChainGateway)
	cursor := usecases.NewScanCursor(stores.cursor, chain)
	ctx := context.Background()

	current, err := cursor.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), current)

	stored, err := cursor.Advance(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), stored)

	stored, err = cursor.Advance(ctx, 150)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), stored)

	loaded, err := cursor.LoadOrInitialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), loaded)
	chain.AssertNotCalled(t, "GetBlockNumber", mock.Anything)
}
