package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSim/internal/domain/models"
	"FinSim/internal/domain/service"
)

type stubEngine struct{}

func (stubEngine) Name() string { return "STUB" }
func (stubEngine) Evaluate(_, _ []models.Bar, _ float64, _ models.StrategyConfig) *models.TradeSignal {
	return nil
}

func TestFactory(t *testing.T) {
	f := NewFactory()
	assert.Equal(t, []string{ORBFVGName}, f.Available())

	e, err := f.Create(ORBFVGName)
	require.NoError(t, err)
	assert.Equal(t, ORBFVGName, e.Name())

	_, err = f.Create("MEAN_REVERSION")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnknownStrategy))
	assert.Contains(t, err.Error(), "MEAN_REVERSION")

	f.Register("STUB", func() service.StrategyEngine { return stubEngine{} })
	assert.Equal(t, []string{ORBFVGName, "STUB"}, f.Available())
}
