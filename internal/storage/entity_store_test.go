package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletcache/internal/cache"
	"walletcache/internal/filter"
)

var baseTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return baseTime }

func newTestTransactionStore(t *testing.T, config EntityStoreConfig) *TransactionStore {
	t.Helper()
	if config.Now == nil {
		config.Now = fixedClock
	}
	store, err := NewTransactionStore(config)
	require.NoError(t, err)
	return store
}

func tx(id, typ string, at time.Time, description string) *Transaction {
	return &Transaction{ID: id, Type: typ, Amount: 100, Currency: "usd", Description: description, CreatedAt: at}
}

func ids(txs []*Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

func TestEntityStore_EndToEnd(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{})

	require.NoError(t, store.Add(tx("t0", TxCredit, baseTime, "salary")))
	require.NoError(t, store.Add(tx("t1", TxDebit, baseTime.Add(-time.Minute), "coffee")))
	require.NoError(t, store.Add(tx("t2", TxCredit, baseTime.Add(-2*time.Minute), "refund from shop")))

	credits := store.GetFiltered("", "credit", "all")
	assert.Equal(t, []string{"t0", "t2"}, ids(credits))

	// Identical query returns the memoized slice
	again := store.GetFiltered("", "credit", "all")
	require.Len(t, again, 2)
	assert.True(t, &credits[0] == &again[0], "expected the cached slice")

	require.NoError(t, store.Add(tx("t3", TxCredit, baseTime.Add(-30*time.Second), "bonus")))
	after := store.GetFiltered("", "credit", "all")
	assert.Equal(t, []string{"t0", "t3", "t2"}, ids(after))
}

func TestEntityStore_GetByID(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{})
	require.NoError(t, store.Add(tx("a", TxDebit, baseTime, "rent")))

	got, ok := store.GetByID("a")
	require.True(t, ok)
	assert.Equal(t, "rent", got.Description)

	_, ok = store.GetByID("missing")
	assert.False(t, ok)
}

func TestEntityStore_AddRejectsEmptyID(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{})
	err := store.Add(tx("", TxDebit, baseTime, "x"))
	assert.True(t, errors.Is(err, ErrMissingID))
	assert.Equal(t, 0, store.Size())
}

func TestEntityStore_OverwriteKeepsPositionAndDropsStaleTerms(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{})
	require.NoError(t, store.Add(tx("a", TxDebit, baseTime, "groceries")))
	require.NoError(t, store.Add(tx("b", TxDebit, baseTime, "taxi")))

	require.NoError(t, store.Add(tx("a", TxDebit, baseTime, "cinema")))

	assert.Equal(t, 2, store.Size())
	assert.Equal(t, []string{"a", "b"}, ids(store.Sorted()))
	assert.Empty(t, store.GetFiltered("groc", "", ""))
	assert.Equal(t, []string{"a"}, ids(store.GetFiltered("cine", "", "")))
}

func TestEntityStore_Search(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{})
	first := tx("a", TxPayment, baseTime, "Coffee at Blue Bottle")
	first.Counterparty = Counterparty{Name: "Alice Smith", Email: "alice@example.com"}
	second := tx("b", TxPayment, baseTime.Add(-time.Hour), "Lunch")
	second.Counterparty = Counterparty{Name: "Alicia Keys", Phone: "+1 555 0100"}
	require.NoError(t, store.AddMany([]*Transaction{first, second}))

	t.Run("prefix over words", func(t *testing.T) {
		assert.Equal(t, []string{"a", "b"}, ids(store.GetFiltered("ali", "", "")))
		assert.Equal(t, []string{"a"}, ids(store.GetFiltered("BLUE", "", "")))
	})

	t.Run("substring fallback", func(t *testing.T) {
		assert.Equal(t, []string{"a"}, ids(store.GetFiltered("example.com", "", "")))
		assert.Equal(t, []string{"b"}, ids(store.GetFiltered("555 01", "", "")))
	})

	t.Run("no match is empty not nil", func(t *testing.T) {
		got := store.GetFiltered("zzz", "", "")
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestEntityStore_TypeFilter(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{})
	require.NoError(t, store.AddMany([]*Transaction{
		tx("a", TxCredit, baseTime, ""),
		tx("b", TxDebit, baseTime.Add(-time.Second), ""),
	}))

	assert.Equal(t, []string{"b"}, ids(store.GetFiltered("", "DEBIT", "")))
	assert.Equal(t, []string{"a", "b"}, ids(store.GetFiltered("", "all", "")))
	// Unknown type means no filtering
	assert.Equal(t, []string{"a", "b"}, ids(store.GetFiltered("", "bogus", "")))
}

func TestEntityStore_DateFilter(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{})
	require.NoError(t, store.AddMany([]*Transaction{
		tx("now", TxDebit, baseTime, ""),
		tx("morning", TxDebit, time.Date(2024, 6, 15, 1, 0, 0, 0, time.UTC), ""),
		tx("days", TxDebit, baseTime.AddDate(0, 0, -3), ""),
		tx("weeks", TxDebit, baseTime.AddDate(0, 0, -20), ""),
		tx("months", TxDebit, baseTime.AddDate(0, 0, -200), ""),
		tx("ancient", TxDebit, baseTime.AddDate(-2, 0, 0), ""),
	}))

	tests := []struct {
		date string
		want []string
	}{
		{DateToday, []string{"now", "morning"}},
		{DateWeek, []string{"now", "morning", "days"}},
		{DateMonth, []string{"now", "morning", "days", "weeks"}},
		{DateYear, []string{"now", "morning", "days", "weeks", "months"}},
		{FilterAll, []string{"now", "morning", "days", "weeks", "months", "ancient"}},
		{"fortnight", []string{"now", "morning", "days", "weeks", "months", "ancient"}},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(store.GetFiltered("", "", tt.date)))
		})
	}
}

func TestEntityStore_MaxRecordsEvictionKeepsIndexesCoherent(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{MaxRecords: 2})

	require.NoError(t, store.Add(tx("a", TxDebit, baseTime, "alpha")))
	require.NoError(t, store.Add(tx("b", TxDebit, baseTime.Add(-time.Second), "beta")))
	_, _ = store.GetByID("a") // b becomes least recently used
	require.NoError(t, store.Add(tx("c", TxDebit, baseTime.Add(-2*time.Second), "gamma")))

	assert.Equal(t, 2, store.Size())
	_, ok := store.GetByID("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "c"}, ids(store.Sorted()))
	assert.Empty(t, store.GetFiltered("beta", "", ""))
	assert.Equal(t, uint64(1), store.Stats().Evictions)
}

func TestEntityStore_DeleteAndClear(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{})
	require.NoError(t, store.AddMany([]*Transaction{
		tx("a", TxDebit, baseTime, "alpha"),
		tx("b", TxDebit, baseTime, "beta"),
	}))
	require.Len(t, store.GetFiltered("", "", ""), 2)

	assert.True(t, store.Delete("a"))
	assert.False(t, store.Delete("a"))
	assert.Equal(t, []string{"b"}, ids(store.GetFiltered("", "", "")))

	store.Clear()
	assert.Equal(t, 0, store.Size())
	assert.Empty(t, store.GetFiltered("", "", ""))
	assert.Empty(t, store.GetFiltered("beta", "", ""))
}

func TestEntityStore_TrimAndClearQueryCache(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{})
	for i := 0; i < 10; i++ {
		require.NoError(t, store.Add(tx(fmt.Sprintf("t%d", i), TxDebit, baseTime.Add(-time.Duration(i)*time.Second), "")))
	}
	store.GetFiltered("", "", "")
	store.GetFiltered("", "debit", "")
	assert.Equal(t, 2, store.ClearQueryCache())

	assert.Equal(t, 6, store.Trim(4))
	assert.Equal(t, 4, store.Size())
	assert.Len(t, store.GetFiltered("", "", ""), 4)
}

func TestEntityStore_AdmissionFilter(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{
		AdmissionFilter: filter.DefaultBloomConfig("tx-admission", 1000),
	})
	require.NoError(t, store.Add(tx("known", TxDebit, baseTime, "")))

	_, ok := store.GetByID("known")
	assert.True(t, ok)
	_, ok = store.GetByID("unknown")
	assert.False(t, ok)

	stats := store.Stats()
	require.NotNil(t, stats.Admission)
	assert.Equal(t, uint64(1), stats.Admission.Items)
}

func TestEntityStore_InvalidConfiguration(t *testing.T) {
	_, err := NewTransactionStore(EntityStoreConfig{MaxRecords: -1})
	assert.True(t, errors.Is(err, cache.ErrInvalidConfiguration))

	_, err = NewEntityStore(Schema[*Transaction]{}, EntityStoreConfig{})
	assert.True(t, errors.Is(err, cache.ErrInvalidConfiguration))

	_, err = NewTransactionStore(EntityStoreConfig{AdmissionFilter: &filter.FilterConfig{Name: "bad"}})
	assert.True(t, errors.Is(err, cache.ErrInvalidConfiguration))
}

func TestEntityStore_Stats(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{Name: "tx"})
	require.NoError(t, store.Add(tx("a", TxDebit, baseTime, "alpha")))
	store.GetFiltered("alp", "", "")
	store.GetFiltered("alp", "", "")

	stats := store.Stats()
	assert.Equal(t, "tx", stats.Name)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, DefaultMaxRecords, stats.MaxRecords)
	assert.Equal(t, uint64(2), stats.Queries)
	assert.Equal(t, uint64(1), stats.QueryCacheHits)
	assert.Equal(t, uint64(1), stats.Scratch.Created)
}

func TestTransactionStore_Totals(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{})
	require.NoError(t, store.AddMany([]*Transaction{
		{ID: "1", Type: TxCredit, Amount: 1000, Currency: "usd", CreatedAt: baseTime},
		{ID: "2", Type: TxDebit, Amount: 250, Currency: "USD", CreatedAt: baseTime},
		{ID: "3", Type: TxRefund, Amount: 50, Currency: "usd", CreatedAt: baseTime},
		{ID: "4", Type: TxPayment, Amount: 700, Currency: "eur", CreatedAt: baseTime},
		{ID: "5", Type: TxCredit, Amount: 999, Currency: "usd", CreatedAt: baseTime.AddDate(-1, 0, -1)},
	}))

	totals := store.Totals("", DateYear)
	require.Len(t, totals, 2)
	assert.Equal(t, Totals{Currency: "USD", Inflow: 1050, Outflow: 250, Net: 800, Count: 3}, totals["USD"])
	assert.Equal(t, Totals{Currency: "EUR", Outflow: 700, Net: -700, Count: 1}, totals["EUR"])

	credits := store.Totals(TxCredit, FilterAll)
	assert.Equal(t, int64(1999), credits["USD"].Inflow)
}

func TestEntityStore_ChurnKeepsIndexBounded(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{MaxRecords: 10})
	for i := 0; i < 5000; i++ {
		require.NoError(t, store.Add(tx(fmt.Sprintf("t%d", i), TxPayment, baseTime, fmt.Sprintf("payment uniqueword%d", i))))
	}

	stats := store.Stats()
	assert.Equal(t, 10, stats.Records)
	// two distinct terms per live record plus the shared "payment"
	assert.Equal(t, 21, stats.IndexedTerms)
	assert.Empty(t, store.search.PrefixSearch("uniqueword1"))
	assert.Len(t, store.search.PrefixSearch("uniqueword49"), 10)
	assert.Empty(t, store.GetFiltered("uniqueword1", "", ""))

	for i := 4990; i < 5000; i++ {
		require.True(t, store.Delete(fmt.Sprintf("t%d", i)))
	}
	assert.Equal(t, 0, store.Stats().IndexedTerms)
	assert.Empty(t, store.search.PrefixSearch(""))
}

func TestEntityStore_Hooks(t *testing.T) {
	store := newTestTransactionStore(t, EntityStoreConfig{MaxRecords: 2})
	var added, removed []string
	clears := 0
	store.SetHooks(StoreHooks[*Transaction]{
		OnClear:  func() { clears++ },
		OnAdd:    func(rec *Transaction) { added = append(added, rec.ID+":"+rec.Description) },
		OnRemove: func(rec *Transaction) { removed = append(removed, rec.ID+":"+rec.Description) },
	})

	require.NoError(t, store.Add(tx("a", TxDebit, baseTime, "first")))
	require.NoError(t, store.Add(tx("a", TxDebit, baseTime, "second")))
	require.NoError(t, store.Add(tx("b", TxDebit, baseTime, "beta")))
	require.NoError(t, store.Add(tx("c", TxDebit, baseTime, "gamma"))) // evicts a
	require.True(t, store.Delete("b"))
	store.Clear()

	assert.Equal(t, []string{"a:first", "a:second", "b:beta", "c:gamma"}, added)
	assert.Equal(t, []string{"a:first", "a:second", "b:beta"}, removed)
	assert.Equal(t, 1, clears)
}
