package phase

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
)

func TestConversionRecordPage(t *testing.T) {
	r := NewConversionResult()
	r.RecordPage(&model.Page{ID: "1", Conversion: model.ConversionResult{Status: model.ConversionSuccess}})
	r.RecordPage(&model.Page{ID: "2", Conversion: model.ConversionResult{Status: model.ConversionPartial}})
	r.RecordPage(&model.Page{ID: "3", Title: "Broken", Conversion: model.ConversionResult{
		Status: model.ConversionFailed,
		Errors: []string{"boom"},
	}})

	assert.Equal(t, 3, r.Processed)
	assert.Equal(t, 1, r.Succeeded)
	assert.Equal(t, 1, r.Partial)
	assert.Equal(t, 1, r.Failures)
	assert.Equal(t, 1, r.ErrorCount())
	assert.False(t, r.Failed())
	assert.Equal(t, ErrorEntry{Phase: KeyConversion, PageID: "3", PageTitle: "Broken", Message: "boom"}, r.Errors[0])
}

func TestNewFailed(t *testing.T) {
	for _, k := range AllKeys {
		t.Run(string(k), func(t *testing.T) {
			res, err := NewFailed(k, errors.New("kaput"))
			require.NoError(t, err)
			assert.Equal(t, k, res.Key())
			assert.True(t, res.Failed())
			assert.Equal(t, 1, res.ErrorCount())
			assert.Equal(t, "kaput", res.ErrorList()[0].Message)
		})
	}

	_, err := NewFailed("bogus", errors.New("x"))
	assert.Error(t, err)
}

func TestVerificationThreshold(t *testing.T) {
	report := &model.IntegrityReport{Summary: model.IntegritySummary{Score: 0.4, TotalIssues: 3}}

	low := NewVerificationResult(report, 0.5)
	assert.True(t, low.BelowThreshold)
	assert.Equal(t, 0.4, low.Summary.Score)

	ok := NewVerificationResult(report, 0.3)
	assert.False(t, ok.BelowThreshold)
}

func TestResultsAppendOnly(t *testing.T) {
	rs := NewResults()
	require.NoError(t, rs.Set(NewConversionResult()))

	err := rs.Set(NewConversionResult())
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.Equal(t, 1, rs.Len())
}

func TestResultsOrderAndTotals(t *testing.T) {
	rs := NewResults()
	conv := NewConversionResult()
	conv.RecordPage(&model.Page{ID: "1", Conversion: model.ConversionResult{Status: model.ConversionFailed}})
	export := NewExportResult("/tmp/out")
	export.AddPageError("2", "Two", "disk full")
	export.AddPageError("3", "Three", "disk full")

	require.NoError(t, rs.Set(conv))
	require.NoError(t, rs.Set(export))

	assert.Equal(t, []Key{KeyConversion, KeyMarkdownExport}, rs.Keys())
	assert.Equal(t, 3, rs.TotalErrors())
}

func TestResultsJSONRoundTrip(t *testing.T) {
	rs := NewResults()
	verify := NewVerificationResult(&model.IntegrityReport{Summary: model.IntegritySummary{Score: 0.9}}, 0.5)
	conv := NewConversionResult()
	conv.RecordPage(&model.Page{ID: "7", Conversion: model.ConversionResult{Status: model.ConversionSuccess}})
	wiki := NewWikiJSImportResult()
	wiki.Created = 4
	wiki.AddPageError("9", "Nine", "conflict")

	require.NoError(t, rs.Set(wiki))
	require.NoError(t, rs.Set(verify))
	require.NoError(t, rs.Set(conv))

	data, err := json.Marshal(rs)
	require.NoError(t, err)

	decoded := NewResults()
	require.NoError(t, json.Unmarshal(data, decoded))

	assert.Equal(t, rs.Keys(), decoded.Keys())
	got, ok := decoded.Get(KeyWikiJSImport)
	require.True(t, ok)
	assert.Equal(t, wiki, got)
	got, _ = decoded.Get(KeyVerification)
	assert.Equal(t, verify, got)
}

func TestResultsUnmarshalUnknownKind(t *testing.T) {
	decoded := NewResults()
	err := json.Unmarshal([]byte(`{"teleport": {}}`), decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown phase kind")
}

func TestPhaseErrorUnwrap(t *testing.T) {
	cause := errors.New("network down")
	err := error(&PhaseError{Phase: KeyWikiJSImport, Err: cause})

	assert.True(t, errors.Is(err, cause))
	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KeyWikiJSImport, pe.Phase)
}
