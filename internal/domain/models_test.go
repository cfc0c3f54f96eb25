package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		input    string
		expected Action
		wantErr  bool
	}{
		{input: "buy", expected: ActionBuy},
		{input: "hold", expected: ActionHold},
		{input: "sell", expected: ActionSell},
		{input: "", expected: ActionNone},
		{input: "short", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAction(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			if tt.input != "" {
				assert.Equal(t, tt.input, got.String())
			}
		})
	}
}

func TestAction_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Action Action `json:"action"`
	}{ActionSell})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"sell"}`, string(data))

	var decoded struct {
		Action Action `json:"action"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"action":"hold"}`), &decoded))
	assert.Equal(t, ActionHold, decoded.Action)
}

func TestPortfolioState_CloneIsDeep(t *testing.T) {
	date := time.Date(2020, 5, 7, 0, 0, 0, 0, time.UTC)
	state := NewPortfolioState(date, 1000)
	state.Holdings["A"] = Holding{Symbol: "A", NumShares: 60, Close: 10}

	clone := state.Clone()
	clone.Holdings["A"] = Holding{Symbol: "A", NumShares: 1, Close: 99}
	clone.Holdings["B"] = Holding{Symbol: "B", NumShares: 2, Close: 3}

	assert.Equal(t, Shares(60), state.Holdings["A"].NumShares)
	assert.Len(t, state.Holdings, 1)
}

func TestPortfolioState_MarkToMarket(t *testing.T) {
	state := NewPortfolioState(time.Time{}, 0)
	state.Holdings["B"] = Holding{Symbol: "B", NumShares: 13, Close: 30}
	state.Holdings["A"] = Holding{Symbol: "A", NumShares: 60, Close: 10}

	assert.Equal(t, []string{"A", "B"}, state.Symbols())
	assert.InDelta(t, 990.0, state.MarkToMarket(), 1e-9)
}

func TestPriceObservation_Price(t *testing.T) {
	obs := PriceObservation{Symbol: "A", Open: 9.5, Close: 10}
	assert.Equal(t, 9.5, obs.Price(PriceOpen))
	assert.Equal(t, 10.0, obs.Price(PriceClose))
	assert.True(t, PriceOpen.Valid())
	assert.False(t, PriceField("high").Valid())
}

func TestDay(t *testing.T) {
	ts := time.Date(2021, 2, 12, 15, 30, 0, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, time.Date(2021, 2, 12, 0, 0, 0, 0, time.UTC), Day(ts))

	parsed, err := ParseDate("2021-02-12")
	require.NoError(t, err)
	assert.Equal(t, Day(ts), parsed)

	_, err = ParseDate("12/02/2021")
	assert.Error(t, err)
}
