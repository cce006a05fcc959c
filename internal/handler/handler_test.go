package handler

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/service"
)

func TestStatusForErrorKinds(t *testing.T) {
	cases := []struct {
		err  *domain.Error
		want int
	}{
		{domain.Validation("bad"), http.StatusBadRequest},
		{domain.Authorization(domain.CodeInvalidPin, "no"), http.StatusForbidden},
		{domain.State(domain.CodeFolioNotFound, "gone"), http.StatusNotFound},
		{domain.State(domain.CodeFolioNotOpen, "closed"), http.StatusConflict},
		{domain.Conflict(domain.CodeRoomConflict, "taken"), http.StatusConflict},
		{domain.RateLimited(domain.CodeAccountLocked, "wait"), http.StatusTooManyRequests},
		{domain.External("db", errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Code)
	}
}

func TestWriteDomainErrorHidesExternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, nil, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Contains(t, rec.Body.String(), `"message":"internal error"`)
}

func TestWriteDomainErrorCarriesFlatCode(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, nil, domain.State(domain.CodeFolioOutstandingBalance, "folio has an outstanding balance").
		With("folio_id", "f-1").
		With("balance", int64(5000)))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Data  map[string]any `json:"data"`
		Error struct {
			Reason string `json:"reason"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.CodeFolioOutstandingBalance, body.Error.Reason)
	assert.Equal(t, domain.CodeFolioOutstandingBalance, body.Data["error"])
	assert.Equal(t, "folio has an outstanding balance", body.Data["message"])
	assert.Equal(t, "f-1", body.Data["folio_id"])
	assert.EqualValues(t, 5000, body.Data["balance"])

	rec = httptest.NewRecorder()
	writeDomainError(rec, nil, domain.External("db", errors.New("boom")).With("dsn", "postgres://secret"))
	body.Data = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.CodeExternal, body.Data["error"])
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestDecodeBodyReportsJSONFieldNames(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action_type":"write_off"}`))
	var body adjustmentRequest
	err := decodeBody(req, &body)
	require.Error(t, err)
	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindValidation, de.Kind)
	assert.Contains(t, de.Message, "reason")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	assert.Error(t, decodeBody(req, &body))
}

func TestAdjustmentRequestVariants(t *testing.T) {
	adj, err := adjustmentRequest{ActionType: "room_rebate", Amount: 3000, Reason: "noisy room"}.toAdjustment()
	require.NoError(t, err)
	assert.Equal(t, service.Rebate{Amount: 3000, Reason: "noisy room"}, adj)

	adj, err = adjustmentRequest{ActionType: "overpayment", Amount: 700, Method: "cash", Reason: "change due"}.toAdjustment()
	require.NoError(t, err)
	assert.Equal(t, service.Overpayment{Amount: 700, Method: "cash", Reason: "change due"}, adj)

	adj, err = adjustmentRequest{ActionType: "reverse_transaction", EntryID: "e-1", Reason: "posted twice"}.toAdjustment()
	require.NoError(t, err)
	assert.Equal(t, service.ReverseTransaction{EntryID: "e-1", Reason: "posted twice"}, adj)

	_, err = adjustmentRequest{ActionType: "reverse_transaction", Reason: "posted twice"}.toAdjustment()
	assert.True(t, domain.HasCode(err, domain.CodeValidationFailed))

	_, err = adjustmentRequest{ActionType: "write_off", Reason: "bad debt"}.toAdjustment()
	assert.Error(t, err)

	_, err = adjustmentRequest{ActionType: "force_cancel", Amount: 10, Reason: "not here"}.toAdjustment()
	assert.True(t, domain.HasCode(err, domain.CodeInvalidActionType))

	_, err = adjustmentRequest{ActionType: "teleport", Amount: 10, Reason: "no"}.toAdjustment()
	assert.True(t, domain.HasCode(err, domain.CodeInvalidActionType))
}

func statementFixture() (*domain.Folio, []domain.LedgerEntry) {
	at := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	ref := domain.RefRoomCharge
	f := &domain.Folio{FolioNumber: "FOL-202604-00007", Currency: "NGN", TotalCharges: 40000, TotalPayments: 15000, Balance: 20000}
	return f, []domain.LedgerEntry{
		{Kind: domain.EntryCharge, Amount: 40000, Description: "Room charge (2 night(s))", ReferenceType: &ref, CreatedAt: at},
		{Kind: domain.EntryPayment, Amount: 15000, Description: "Card payment", CreatedAt: at.Add(time.Hour)},
		{Kind: domain.EntryCredit, Amount: -5000, Description: "Write-off", CreatedAt: at.Add(2 * time.Hour)},
	}
}

func TestStatementLinesRunningBalance(t *testing.T) {
	_, entries := statementFixture()
	lines := statementLines(entries)
	require.Len(t, lines, 3)

	assert.EqualValues(t, 40000, lines[0].Debit)
	assert.EqualValues(t, 40000, lines[0].Balance)
	assert.Equal(t, domain.RefRoomCharge, lines[0].Reference)

	assert.EqualValues(t, 15000, lines[1].Credit)
	assert.EqualValues(t, 25000, lines[1].Balance)

	assert.EqualValues(t, 5000, lines[2].Credit)
	assert.Zero(t, lines[2].Debit)
	assert.EqualValues(t, 20000, lines[2].Balance)
}

func TestExportStatementCSV(t *testing.T) {
	f, entries := statementFixture()
	data, err := exportStatementCSV(f, statementLines(entries))
	require.NoError(t, err)

	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"folio", "FOL-202604-00007", "currency", "NGN"}, rows[0])
	assert.Equal(t, "2026-04-02 09:30", rows[2][0])
	assert.Equal(t, "20000", rows[4][6])
	assert.Equal(t, "20000", rows[5][5])
}

func TestExportStatementXLSX(t *testing.T) {
	f, entries := statementFixture()
	data, err := exportStatementXLSX(f, statementLines(entries))
	require.NoError(t, err)
	assert.True(t, len(data) > 4 && string(data[:2]) == "PK")
}

func TestParseOptionalDate(t *testing.T) {
	got, err := parseOptionalDate("check_out", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseOptionalDate("check_out", "2026-06-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseOptionalDate("check_out", "2026-06-01T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 12, got.Hour())

	_, err = parseOptionalDate("check_out", "01/06/2026")
	assert.True(t, domain.HasCode(err, domain.CodeValidationFailed))
}
