package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hmuraoka/kabuto/internal/contracts"
)

func TestBuildFeaturesStandalone(t *testing.T) {
	r := demoRunner(t, 8, t.TempDir())

	table, err := r.BuildFeatures(context.Background(), testAsOf)
	require.NoError(t, err)
	require.NotEmpty(t, table.Rows)
	require.Equal(t, "2025-03-07", table.Cutoff.Format("2006-01-02"))

	// 台帳も成果物も作らない
	lastDate, _ := table.LastDate()
	latest := table.RowsAt(lastDate)
	require.Len(t, latest, 8)
}

func TestEvaluateGatesStandalone(t *testing.T) {
	r := demoRunner(t, 8, t.TempDir())

	rep, err := r.EvaluateGates(context.Background(), testAsOf)
	require.NoError(t, err)
	require.Equal(t, "2025-03-10", rep.TradeDate)
	require.Empty(t, rep.RunID)

	for _, name := range contracts.GateOrder {
		require.Contains(t, rep.Gates, name)
	}
	require.Equal(t, rep.AllPassed, len(rep.Reasons) == 0)
}
