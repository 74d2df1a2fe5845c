package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_EveryScenarioLoads(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			router := newTestRouter(t)

			rec := do(t, router, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "`+s.ID+`"}`)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			loans := decode[[]LoanDTO](t, rec)
			require.Len(t, loans, len(s.loans))

			for i, sl := range s.loans {
				assert.Equal(t, sl.loan.ID, loans[i].ID)
				assert.Equal(t, len(sl.payments), loans[i].PaymentCount)
			}

			// Append-only journal: a second load conflicts
			rec = do(t, router, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "`+s.ID+`"}`)
			assert.Equal(t, http.StatusConflict, rec.Code)
		})
	}
}

func TestScenarios_LatePayerCarriesFine(t *testing.T) {
	// GIVEN: the late-payer scenario
	// WHEN: its settlements are read
	// THEN: the first payment went to fine and mora before interest

	router := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "late-payer"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/loans/late-payer-1/settlements", "")
	settlements := decode[[]SettlementDTO](t, rec)
	require.Len(t, settlements, 2)
	assert.Equal(t, "67.21", settlements[0].FinePaid.String())
	assert.Equal(t, "12.09", settlements[0].MoraPaid.String())
	assert.Equal(t, "partial", settlements[0].Description)
}

func TestScenarios_ListAndUnknown(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(scenarios))
	assert.Equal(t, []string{"on-time-1"}, list[0].LoanIDs)

	rec = do(t, router, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "bankruptcy"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
