package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(loginTotal.WithLabelValues("success"))
	RecordLogin("success")
	assert.Equal(t, before+1, testutil.ToFloat64(loginTotal.WithLabelValues("success")))

	before = testutil.ToFloat64(resetRequests)
	RecordResetRequest()
	assert.Equal(t, before+1, testutil.ToFloat64(resetRequests))

	before = testutil.ToFloat64(resetRedeem.WithLabelValues("invalid"))
	RecordResetRedeem("invalid")
	assert.Equal(t, before+1, testutil.ToFloat64(resetRedeem.WithLabelValues("invalid")))

	before = testutil.ToFloat64(authzDecisions.WithLabelValues("forbidden"))
	RecordAuthzDecision("forbidden")
	assert.Equal(t, before+1, testutil.ToFloat64(authzDecisions.WithLabelValues("forbidden")))

	acc := testutil.ToFloat64(totpVerifications.WithLabelValues("accepted"))
	rej := testutil.ToFloat64(totpVerifications.WithLabelValues("rejected"))
	RecordTotp(true)
	RecordTotp(false)
	assert.Equal(t, acc+1, testutil.ToFloat64(totpVerifications.WithLabelValues("accepted")))
	assert.Equal(t, rej+1, testutil.ToFloat64(totpVerifications.WithLabelValues("rejected")))
}
