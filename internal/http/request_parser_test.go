package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flynance/internal/core"
	"flynance/internal/period"
	"flynance/internal/query"
)

func parse(t *testing.T, body string) (*RequestError, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPatch, "/api/filters/draft", strings.NewReader(body))
	_, err := ParsePatch(httptest.NewRecorder(), req)
	if err == nil {
		return nil, nil
	}
	reqErr, ok := err.(*RequestError)
	require.True(t, ok, "ParsePatch must return *RequestError, got %T", err)
	return reqErr, err
}

func TestParsePatch_Normalizes(t *testing.T) {
	body := `{"mode":" MONTH ","typeFilter":"income","searchTerm":"  market\u0007 ","selectedMonth":" 3 ",
		"selectedCategories":[{"id":" food ","name":"Food\u0000"}]}`
	req := httptest.NewRequest(http.MethodPatch, "/api/filters/draft", strings.NewReader(body))

	p, err := ParsePatch(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, period.ModeMonth, *p.Mode)
	assert.Equal(t, core.TypeIncome, *p.Type)
	assert.Equal(t, "market", *p.SearchTerm)
	assert.Equal(t, "3", *p.Month)
	require.Len(t, *p.Categories, 1)
	assert.Equal(t, core.CategoryRef{ID: "food", Name: "Food"}, (*p.Categories)[0])
	assert.Nil(t, p.DateRange)
}

func TestParsePatch_KeepsEmptySelection(t *testing.T) {
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"selectedCategories":[],"searchTerm":""}`))
	p, err := ParsePatch(httptest.NewRecorder(), req)
	require.NoError(t, err)
	require.NotNil(t, p.Categories)
	assert.Empty(t, *p.Categories)
	assert.Equal(t, "", *p.SearchTerm)
}

func TestParsePatch_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"array", `[1]`, http.StatusBadRequest},
		{"trailing object", `{"dateRange":1}{"dateRange":2}`, http.StatusBadRequest},
		{"unknown mode", `{"mode":"quarter"}`, http.StatusUnprocessableEntity},
		{"too many categories", `{"selectedCategories":[` + strings.TrimSuffix(strings.Repeat(`{"id":"c"},`, maxCategories+1), ",") + `]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqErr, err := parse(t, tt.body)
			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, reqErr.Status)
		})
	}
}

func TestParsePatch_TruncatesSearch(t *testing.T) {
	long := strings.Repeat("é", maxSearchLength+50)
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"searchTerm":"`+long+`"}`))
	p, err := ParsePatch(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, maxSearchLength, len([]rune(*p.SearchTerm)))
}

func TestCallerParams(t *testing.T) {
	v := url.Values{
		"page":    {"2"},
		"limit":   {" 50 "},
		"search":  {""},
		"sort":    {"amount"},
		"type":    {"INCOME"},
		"garbage": {"x"},
	}
	got := CallerParams(v)
	assert.Equal(t, query.Params{"page": "2", "limit": "50", "type": "INCOME"}, got)
}

func TestPeriodInput(t *testing.T) {
	v := url.Values{
		"mode":          {"range"},
		"rangeStart":    {" 2024-01-01 "},
		"rangeEnd":      {"2024-01-31"},
		"timezone":      {"America/Sao_Paulo"},
		"includeFuture": {"true"},
		"days":          {"abc"},
	}
	in := PeriodInput(v)
	assert.Equal(t, period.ModeRange, in.Mode)
	assert.Equal(t, "2024-01-01", in.RangeStart)
	assert.Equal(t, "2024-01-31", in.RangeEnd)
	assert.Equal(t, "America/Sao_Paulo", in.Timezone)
	assert.True(t, in.IncludeFuture)
	assert.Zero(t, in.Days)
}

func TestJSONResponseBuilder(t *testing.T) {
	rec := httptest.NewRecorder()
	UnprocessableEntityError("bad mode", "mode").RequestID("req_1").Header("X-Test", "1").Write(rec)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Test"))
	assert.JSONEq(t, `{"error":"bad mode","status":422,"fields":["mode"],"requestId":"req_1"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = httptest.NewRecorder()
	NewJSONResponse().Body(map[string]any{"bad": make(chan int)}).Write(rec)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
